package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

// WorkflowTrigger starts a downstream workflow execution.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, payload any) (string, error)
}

// TriageConfig holds all configuration for the triage service.
type TriageConfig struct {
	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
}

// TriageFunction saves a prediction with its answers and returns treatments.
type TriageFunction struct {
	questions  *triage.QuestionResolver
	treatments *triage.TreatmentResolver
	writer     *triage.Writer
	// trigger is nil when no workflow is configured.
	trigger WorkflowTrigger
	config  TriageConfig
}

func loadTriageConfig() (*TriageConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	return &TriageConfig{
		ProjectID:        projectID,
		WorkflowID:       gcp.GetEnv("TRIAGE_WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}, nil
}

// NewTriage creates a new TriageFunction instance.
func NewTriage(ctx context.Context) (*TriageFunction, error) {
	config, err := loadTriageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	st := store.New(firestoreClient)

	f := &TriageFunction{
		questions:  &triage.QuestionResolver{Store: st},
		treatments: &triage.TreatmentResolver{Store: st},
		writer:     triage.NewWriter(st),
		config:     *config,
	}
	if config.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
		f.trigger = trigger
	}
	slog.Info("Triage submitter initialized.", "workflowId", config.WorkflowID)
	return f, nil
}

// Submit re-resolves the questions for the prediction so the answer gate is enforced on
// the server, saves the prediction then its follow-up, and loads treatments. A treatment
// lookup failure or a failed workflow start does not fail the save.
func (f *TriageFunction) Submit(ctx context.Context, sess auth.Session, req *models.SubmitTriageRequest) (*models.SubmitTriageResponse, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	plantType, err := triage.PlantTypeOrDefault(req.PlantType)
	if err != nil {
		return nil, err
	}
	if req.Prediction.Disease == "" {
		return nil, triage.ErrNoPrediction
	}
	logCtx := slog.With("userId", sess.UserID, "plantType", plantType, "disease", req.Prediction.Disease)

	questions, err := f.questions.Resolve(ctx, req.Prediction.Disease, plantType)
	if err != nil {
		return nil, fmt.Errorf("failed to load follow-up questions: %w", err)
	}
	answers := triage.AnswersFrom(questions, req.Answers)
	if !answers.AllAnswered() {
		return nil, triage.ErrUnanswered
	}

	saved, err := f.writer.Save(ctx, sess, plantType, req.Prediction, answers, req.ImageURI)
	if err != nil {
		return nil, err
	}
	logCtx = logCtx.With("predictionId", saved.PredictionID, "followUpId", saved.FollowUpID)
	logCtx.Info("Triage saved.")

	treatments, err := f.treatments.Resolve(ctx, req.Prediction.Disease, plantType)
	if err != nil {
		logCtx.Error("Failed to load treatments after save.", "error", err)
		treatments = triage.TreatmentsUnavailable
	}

	resp := &models.SubmitTriageResponse{
		PredictionID: saved.PredictionID,
		FollowUpID:   saved.FollowUpID,
		Treatments:   treatments,
	}
	if f.trigger != nil {
		exec, err := f.trigger.Trigger(ctx, models.TriageWorkflowArgs{
			PredictionID: saved.PredictionID,
			FollowUpID:   saved.FollowUpID,
			UserID:       sess.UserID,
		})
		if err != nil {
			logCtx.Error("Failed to start triage workflow.", "error", err)
		} else {
			logCtx.Info("Triage workflow started.", "execution", exec)
			resp.ExecutionID = exec
		}
	}
	return resp, nil
}

// Treatments looks up treatments for a disease and plant type.
func (f *TriageFunction) Treatments(ctx context.Context, disease, plantType string) (*models.TreatmentsResponse, error) {
	plantType, err := triage.PlantTypeOrDefault(plantType)
	if err != nil {
		return nil, err
	}
	if disease == "" {
		return nil, models.Invalid("disease is required")
	}
	t, err := f.treatments.Resolve(ctx, disease, plantType)
	if err != nil {
		return nil, err
	}
	return &models.TreatmentsResponse{Disease: disease, PlantType: plantType, Treatments: t}, nil
}

// HandleSubmit is the HTTP entry point for Submit.
func (f *TriageFunction) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	authenticated(func(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
		if r.Method != http.MethodPost {
			writeJSON(w, logCtx, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})
			return
		}
		var req models.SubmitTriageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, logCtx, err)
			return
		}
		res, err := f.Submit(r.Context(), sess, &req)
		if err != nil {
			writeError(w, logCtx, err)
			return
		}
		writeJSON(w, logCtx, http.StatusCreated, res)
	}).ServeHTTP(w, r)
}

// HandleTreatments is the HTTP entry point for Treatments.
func (f *TriageFunction) HandleTreatments(w http.ResponseWriter, r *http.Request) {
	authenticated(func(w http.ResponseWriter, r *http.Request, _ auth.Session, logCtx *slog.Logger) {
		q := r.URL.Query()
		res, err := f.Treatments(r.Context(), q.Get("disease"), q.Get("plantType"))
		if err != nil {
			writeError(w, logCtx, err)
			return
		}
		writeJSON(w, logCtx, http.StatusOK, res)
	}).ServeHTTP(w, r)
}
