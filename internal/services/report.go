package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/report"
)

// maxPhotoBytes caps photos read back from storage.
const maxPhotoBytes = 32 << 20

// ReportConfig holds all configuration for the report service.
type ReportConfig struct {
	ProjectID     string
	ReportsBucket string
}

// ReportFunction exports diagnosis reports as PDFs.
type ReportFunction struct {
	exporter *report.Exporter
	config   ReportConfig
}

func loadReportConfig() (*ReportConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	reportsBucket := gcp.GetEnv("REPORTS_BUCKET", "")
	if reportsBucket == "" {
		return nil, fmt.Errorf("REPORTS_BUCKET environment variable must be set")
	}
	return &ReportConfig{ProjectID: projectID, ReportsBucket: reportsBucket}, nil
}

// NewReport creates a new ReportFunction instance.
func NewReport(ctx context.Context) (*ReportFunction, error) {
	config, err := loadReportConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Report exporter initialized.", "reportsBucket", config.ReportsBucket)
	return &ReportFunction{
		exporter: &report.Exporter{
			History: newHistory(firestoreClient),
			Images:  &gcp.Reader{Client: storageClient, Limit: maxPhotoBytes},
			Reports: gcp.NewBucket(storageClient, config.ReportsBucket),
		},
		config: *config,
	}, nil
}

// ServeHTTP renders and stores the report named by the request's predictionId.
func (f *ReportFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authenticated(func(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
		if r.Method != http.MethodPost {
			writeJSON(w, logCtx, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})
			return
		}
		var req models.ExportReportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logCtx, err)
			return
		}
		if req.PredictionID == "" {
			writeError(w, logCtx, models.Invalid("predictionId is required"))
			return
		}
		out, err := f.exporter.Export(r.Context(), sess, req.PredictionID)
		if err != nil {
			writeError(w, logCtx, err)
			return
		}
		writeJSON(w, logCtx, http.StatusCreated, out)
	}).ServeHTTP(w, r)
}
