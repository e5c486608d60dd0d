package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
)

// RecordStore persists predictions and their follow-up answers.
type RecordStore interface {
	CreatePrediction(ctx context.Context, rec *models.PredictionRecord) (string, error)
	CreateFollowUp(ctx context.Context, rec *models.FollowUpRecord) (string, error)
}

// Saved identifies the two documents written by Writer.Save.
type Saved struct {
	PredictionID string `json:"predictionId"`
	FollowUpID   string `json:"followUpId"`
}

// OrphanedPredictionError reports that the prediction was written but its follow-up was not.
type OrphanedPredictionError struct {
	PredictionID string
	Err          error
}

func (e *OrphanedPredictionError) Error() string {
	return fmt.Sprintf("prediction %s saved without follow-up: %v", e.PredictionID, e.Err)
}

func (e *OrphanedPredictionError) Unwrap() error { return e.Err }

// Writer saves a prediction and then its follow-up answers. The two writes are not
// transactional; a failed second write leaves the prediction in place.
type Writer struct {
	Store RecordStore
	Now   func() time.Time
}

// NewWriter returns a Writer using the wall clock.
func NewWriter(store RecordStore) *Writer {
	return &Writer{Store: store, Now: time.Now}
}

// Save writes the prediction and the follow-up record. Every question must be answered.
func (w *Writer) Save(ctx context.Context, s auth.Session, plantType string, p models.Prediction, answers *Answers, imageURI string) (*Saved, error) {
	if !s.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	complete, err := answers.Complete()
	if err != nil {
		return nil, err
	}

	now := models.Timestamp(w.now())
	pred := &models.PredictionRecord{
		UserID:     s.UserID,
		PlantType:  plantType,
		Disease:    p.Disease,
		Confidence: p.Confidence,
		CapturedAt: now,
		ImageURI:   imageURI,
	}
	predID, err := w.Store.CreatePrediction(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("failed to save prediction: %w", err)
	}

	followUp := &models.FollowUpRecord{
		PredictionID: predID,
		UserID:       s.UserID,
		Disease:      p.Disease,
		PlantType:    plantType,
		Answers:      complete,
		Confidence:   p.Confidence,
		CapturedAt:   models.Timestamp(w.now()),
	}
	followUpID, err := w.Store.CreateFollowUp(ctx, followUp)
	if err != nil {
		return nil, &OrphanedPredictionError{PredictionID: predID, Err: err}
	}

	return &Saved{PredictionID: predID, FollowUpID: followUpID}, nil
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
