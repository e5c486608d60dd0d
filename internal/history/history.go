// Package history lists a grower's past predictions with their follow-up answers.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

// ErrNotOwner is returned when a user opens someone else's prediction.
var ErrNotOwner = errors.New("prediction belongs to another user")

// joinLimit bounds concurrent follow-up lookups.
const joinLimit = 8

// Store reads predictions and follow-ups.
type Store interface {
	ListPredictions(ctx context.Context, userID string) ([]*models.PredictionRecord, error)
	RecentPredictions(ctx context.Context, userID string, n int) ([]*models.PredictionRecord, error)
	GetPrediction(ctx context.Context, id string) (*models.PredictionRecord, error)
	FindFollowUp(ctx context.Context, userID, predictionID string) (*models.FollowUpRecord, error)
}

// Entry is one prediction with its follow-up, which is nil if none was found.
type Entry struct {
	Prediction *models.PredictionRecord `json:"prediction"`
	FollowUp   *models.FollowUpRecord   `json:"followUp,omitempty"`
}

// Detail is an Entry plus its treatments.
type Detail struct {
	Entry
	Treatments []string `json:"treatments"`
}

// Recent is a dashboard entry.
type Recent struct {
	*models.PredictionRecord
	IsNew bool `json:"isNew"`
}

// Service reads prediction history.
type Service struct {
	Store      Store
	Treatments *triage.TreatmentResolver
	Now        func() time.Time
}

// List returns every prediction of the user joined to its follow-up, newest first.
// A failed follow-up lookup leaves that entry's FollowUp nil.
func (s *Service) List(ctx context.Context, sess auth.Session) ([]Entry, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	preds, err := s.Store.ListPredictions(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction history: %w", err)
	}

	entries := make([]Entry, len(preds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(joinLimit)
	for i, p := range preds {
		entries[i].Prediction = p
		g.Go(func() error {
			fu, err := s.Store.FindFollowUp(gctx, sess.UserID, p.ID)
			if err != nil {
				slog.Warn("Failed to load follow-up.", "predictionId", p.ID, "error", err)
				return nil
			}
			entries[i].FollowUp = fu
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.Prediction.Captured().Compare(a.Prediction.Captured())
	})
	return entries, nil
}

// Detail returns one prediction with its follow-up and treatments. Treatment lookup
// failures yield the unavailable notice instead of an error.
func (s *Service) Detail(ctx context.Context, sess auth.Session, predictionID string) (*Detail, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	p, err := s.Store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != sess.UserID {
		return nil, ErrNotOwner
	}
	fu, err := s.Store.FindFollowUp(ctx, sess.UserID, predictionID)
	if err != nil {
		slog.Warn("Failed to load follow-up.", "predictionId", predictionID, "error", err)
		fu = nil
	}
	return &Detail{
		Entry:      Entry{Prediction: p, FollowUp: fu},
		Treatments: s.Treatments.ResolveOrUnavailable(ctx, p.Disease, p.PlantType),
	}, nil
}

// Bundle builds a dispatch bundle from a stored prediction.
func (s *Service) Bundle(ctx context.Context, sess auth.Session, predictionID string) (*triage.Bundle, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	p, err := s.Store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != sess.UserID {
		return nil, ErrNotOwner
	}
	fu, err := s.Store.FindFollowUp(ctx, sess.UserID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load follow-up answers: %w", err)
	}
	return triage.BundleFromRecord(p, fu), nil
}

// Recent returns the newest n predictions, flagging those younger than a day.
func (s *Service) Recent(ctx context.Context, sess auth.Session, n int) ([]Recent, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	preds, err := s.Store.RecentPredictions(ctx, sess.UserID, n)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-24 * time.Hour)
	out := make([]Recent, 0, len(preds))
	for _, p := range preds {
		out = append(out, Recent{PredictionRecord: p, IsNew: p.Captured().After(cutoff)})
	}
	return out, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
