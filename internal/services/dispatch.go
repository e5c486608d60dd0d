package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

// BundleSource loads the dispatch bundle of a stored prediction.
type BundleSource interface {
	Bundle(ctx context.Context, sess auth.Session, predictionID string) (*triage.Bundle, error)
}

// DispatchFunction renders a diagnosis for the chat assistant or a community post.
type DispatchFunction struct {
	history BundleSource
}

// NewDispatcher creates a new DispatchFunction instance.
func NewDispatcher(ctx context.Context) (*DispatchFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &DispatchFunction{history: newHistory(firestoreClient)}, nil
}

// Dispatch builds the bundle from a stored prediction when PredictionID is set, and from
// the live session fields otherwise. A live session needs every question answered.
func (f *DispatchFunction) Dispatch(ctx context.Context, sess auth.Session, req *models.DispatchRequest) (*triage.Handoff, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	target := triage.Target(req.Target)

	var b *triage.Bundle
	if req.PredictionID != "" {
		var err error
		b, err = f.history.Bundle(ctx, sess, req.PredictionID)
		if err != nil {
			return nil, err
		}
	} else {
		if req.Prediction == nil || req.Prediction.Disease == "" {
			return nil, triage.ErrNoPrediction
		}
		plantType, err := triage.PlantTypeOrDefault(req.PlantType)
		if err != nil {
			return nil, err
		}
		b, err = triage.NewBundle(plantType, *req.Prediction, triage.AnswersFrom(req.Questions, req.Answers))
		if err != nil {
			return nil, err
		}
	}
	return triage.Dispatch(b, target)
}

// ServeHTTP is the HTTP entry point for Dispatch.
func (f *DispatchFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authenticated(func(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
		if r.Method != http.MethodPost {
			writeJSON(w, logCtx, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})
			return
		}
		var req models.DispatchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logCtx, err)
			return
		}
		h, err := f.Dispatch(r.Context(), sess, &req)
		if err != nil {
			writeError(w, logCtx, err)
			return
		}
		writeJSON(w, logCtx, http.StatusOK, h)
	}).ServeHTTP(w, r)
}
