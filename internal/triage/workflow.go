package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/imaging"
	"github.com/Lllllllleong/croppulse/internal/inference"
	"github.com/Lllllllleong/croppulse/internal/models"
)

// Errors returned by Workflow steps taken out of order.
var (
	ErrNoImage      = errors.New("please select an image first")
	ErrNoPrediction = errors.New("no prediction available")
)

// DefaultPlantType is assumed when the workflow has no plant type.
const DefaultPlantType = "apple"

// PlantTypeOrDefault normalizes a plant type and checks it against the classifier's
// plant types. An empty one becomes DefaultPlantType.
func PlantTypeOrDefault(plantType string) (string, error) {
	plantType = strings.ToLower(strings.TrimSpace(plantType))
	if plantType == "" {
		return DefaultPlantType, nil
	}
	if !slices.Contains(inference.PlantTypes, plantType) {
		return "", models.Invalid(fmt.Sprintf("Unsupported plant type %q", plantType))
	}
	return plantType, nil
}

// Classifier is the remote disease classifier.
type Classifier interface {
	Predict(ctx context.Context, image []byte, plantType string) (*models.Prediction, error)
}

// Workflow drives one photo from capture to dispatch. A Workflow belongs to a single
// session and is not safe for concurrent use.
type Workflow struct {
	Session    auth.Session
	PlantType  string
	Acquirer   *imaging.Acquirer
	Classifier Classifier

	QuestionResolver  *QuestionResolver
	TreatmentResolver *TreatmentResolver
	Writer            *Writer

	image      *imaging.Image
	prediction *models.Prediction
	questions  []string
	answers    *Answers
	treatments []string
	saved      *Saved
}

// Acquire runs a picker result through the Acquirer and installs the image. A canceled
// pick keeps the current state and returns false.
func (w *Workflow) Acquire(res imaging.PickResult) (bool, error) {
	img, err := w.Acquirer.Acquire(res)
	if err != nil {
		return false, fmt.Errorf("failed to acquire image: %w", err)
	}
	if img == nil {
		return false, nil
	}
	w.SetImage(img)
	return true, nil
}

// SetImage installs a new photo and discards everything derived from the previous one.
func (w *Workflow) SetImage(img *imaging.Image) {
	w.image = img
	w.prediction = nil
	w.questions = nil
	w.answers = nil
	w.treatments = nil
	w.saved = nil
}

// Predict classifies the current image and loads its follow-up questions. On a classifier
// error the prediction stays nil. If only the question lookup fails, the prediction is
// kept and the error is returned.
func (w *Workflow) Predict(ctx context.Context) (*models.Prediction, error) {
	if w.image == nil {
		return nil, ErrNoImage
	}
	logCtx := slog.With("userId", w.Session.UserID, "plantType", w.plantType())

	p, err := w.Classifier.Predict(ctx, w.image.Data, w.plantType())
	if err != nil {
		logCtx.Error("Prediction failed.", "error", err)
		return nil, fmt.Errorf("failed to predict disease: %w", err)
	}
	w.prediction = p
	w.treatments = nil
	w.saved = nil
	logCtx.Info("Prediction received.", "disease", p.Disease, "confidence", p.Confidence)

	qs, err := w.QuestionResolver.Resolve(ctx, p.Disease, w.plantType())
	if err != nil {
		w.questions = nil
		w.answers = nil
		logCtx.Error("Failed to load follow-up questions.", "error", err)
		return p, err
	}
	w.questions = qs
	w.answers = NewAnswers(qs)
	return p, nil
}

// Answers returns the answer collector for the current prediction, or nil before Predict.
func (w *Workflow) Answers() *Answers { return w.answers }

// Prediction returns the current prediction, or nil.
func (w *Workflow) Prediction() *models.Prediction { return w.prediction }

// Questions returns the current follow-up questions.
func (w *Workflow) Questions() []string { return slices.Clone(w.questions) }

// Treatments returns the treatments fetched by SaveAndFetchTreatments.
func (w *Workflow) Treatments() []string { return slices.Clone(w.treatments) }

// Image returns the current image, or nil.
func (w *Workflow) Image() *imaging.Image { return w.image }

// Submit saves the prediction and answers, then clears the session for the next photo.
func (w *Workflow) Submit(ctx context.Context, imageURI string) (*Saved, error) {
	saved, err := w.save(ctx, imageURI)
	if err != nil {
		return nil, err
	}
	w.Reset()
	return saved, nil
}

// SaveAndFetchTreatments saves the prediction and answers and loads treatments, keeping
// the session so the result can be dispatched.
func (w *Workflow) SaveAndFetchTreatments(ctx context.Context, imageURI string) ([]string, error) {
	if _, err := w.save(ctx, imageURI); err != nil {
		return nil, err
	}
	t, err := w.TreatmentResolver.Resolve(ctx, w.prediction.Disease, w.plantType())
	if err != nil {
		return nil, err
	}
	w.treatments = t
	return slices.Clone(t), nil
}

func (w *Workflow) save(ctx context.Context, imageURI string) (*Saved, error) {
	if w.prediction == nil {
		return nil, ErrNoPrediction
	}
	if w.answers == nil || !w.answers.AllAnswered() {
		return nil, ErrUnanswered
	}
	if w.saved != nil {
		return w.saved, nil
	}
	saved, err := w.Writer.Save(ctx, w.Session, w.plantType(), *w.prediction, w.answers, imageURI)
	if err != nil {
		return nil, err
	}
	w.saved = saved
	slog.Info("Triage saved.", "userId", w.Session.UserID, "predictionId", saved.PredictionID)
	return saved, nil
}

// Saved returns the ids written by the last successful save, or nil.
func (w *Workflow) Saved() *Saved { return w.saved }

// Bundle summarizes the current session for dispatch. Every question must be answered.
func (w *Workflow) Bundle() (*Bundle, error) {
	if w.prediction == nil {
		return nil, ErrNoPrediction
	}
	return NewBundle(w.plantType(), *w.prediction, w.answers)
}

// Dispatch renders the current session for target.
func (w *Workflow) Dispatch(target Target) (*Handoff, error) {
	b, err := w.Bundle()
	if err != nil {
		return nil, err
	}
	return Dispatch(b, target)
}

// Reset drops the image and everything derived from it.
func (w *Workflow) Reset() {
	w.SetImage(nil)
}

func (w *Workflow) plantType() string {
	if w.PlantType == "" {
		return DefaultPlantType
	}
	return w.PlantType
}
