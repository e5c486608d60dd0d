package triage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// Fallback treatment lists.
var (
	NoTreatmentsFound     = []string{"No specific treatments found for this disease."}
	TreatmentsUnavailable = []string{"Unable to load treatments at this time."}
)

// TreatmentStore looks up stored treatments. A miss returns a nil entry and a nil error.
type TreatmentStore interface {
	FindTreatment(ctx context.Context, disease, plantType string) (*models.TreatmentEntry, error)
}

// TreatmentResolver fetches treatments for a disease on a plant type. Results are not cached.
type TreatmentResolver struct {
	Store TreatmentStore
}

// Resolve returns the stored treatments verbatim, or NoTreatmentsFound on a miss.
func (r *TreatmentResolver) Resolve(ctx context.Context, disease, plantType string) ([]string, error) {
	entry, err := r.Store.FindTreatment(ctx, disease, plantType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch treatments for %s/%s: %w", disease, plantType, err)
	}
	if entry == nil || len(entry.Treatment) == 0 {
		return slices.Clone(NoTreatmentsFound), nil
	}
	return slices.Clone(entry.Treatment), nil
}

// ResolveOrUnavailable is Resolve for read-only views: lookup errors are logged and
// replaced by TreatmentsUnavailable.
func (r *TreatmentResolver) ResolveOrUnavailable(ctx context.Context, disease, plantType string) []string {
	t, err := r.Resolve(ctx, disease, plantType)
	if err != nil {
		slog.Warn("Treatment lookup failed.", "disease", disease, "plantType", plantType, "error", err)
		return slices.Clone(TreatmentsUnavailable)
	}
	return t
}
