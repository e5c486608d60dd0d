package store

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// FindQuestionSet returns the first question set for disease and plantType. An empty
// plantType matches any plant type. A miss returns nil, nil.
func (s *Store) FindQuestionSet(ctx context.Context, disease, plantType string) (*models.QuestionSet, error) {
	q := s.client.Collection(models.FollowUpQuestionsCollection).Where("disease", "==", disease)
	if plantType != "" {
		q = q.Where("plantType", "==", plantType)
	}
	doc, err := first(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query question sets: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	var set models.QuestionSet
	if err := doc.DataTo(&set); err != nil {
		return nil, decodeErr(doc, err)
	}
	return &set, nil
}

// FindTreatment returns the treatment entry for disease and plantType, or nil, nil.
func (s *Store) FindTreatment(ctx context.Context, disease, plantType string) (*models.TreatmentEntry, error) {
	q := s.client.Collection(models.TreatmentsCollection).
		Where("disease", "==", disease).
		Where("plantType", "==", plantType)
	doc, err := first(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query treatments: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	var entry models.TreatmentEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, decodeErr(doc, err)
	}
	return &entry, nil
}

// CreatePrediction adds a prediction record and returns its generated id.
func (s *Store) CreatePrediction(ctx context.Context, rec *models.PredictionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(models.PredictionsCollection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create prediction: %w", err)
	}
	return ref.ID, nil
}

// CreateFollowUp adds a follow-up record and returns its generated id.
func (s *Store) CreateFollowUp(ctx context.Context, rec *models.FollowUpRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(models.FollowUpsCollection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create follow-up: %w", err)
	}
	return ref.ID, nil
}

// GetPrediction loads one prediction by id.
func (s *Store) GetPrediction(ctx context.Context, id string) (*models.PredictionRecord, error) {
	doc, err := s.client.Collection(models.PredictionsCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction %s: %w", id, err)
	}
	return predictionFrom(doc)
}

// ListPredictions returns every prediction of userID, newest first.
func (s *Store) ListPredictions(ctx context.Context, userID string) ([]*models.PredictionRecord, error) {
	var out []*models.PredictionRecord
	q := s.client.Collection(models.PredictionsCollection).Where("userId", "==", userID)
	err := each(ctx, q, func(doc *firestore.DocumentSnapshot) error {
		rec, err := predictionFrom(doc)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	SortPredictionsNewestFirst(out)
	return out, nil
}

// RecentPredictions returns the newest n predictions of userID.
func (s *Store) RecentPredictions(ctx context.Context, userID string, n int) ([]*models.PredictionRecord, error) {
	base := s.client.Collection(models.PredictionsCollection).Where("userId", "==", userID)
	docs, _, err := orderedOrFallback(ctx,
		base.OrderBy("dateTime", firestore.Desc).Limit(n),
		base.Limit(n))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent predictions: %w", err)
	}
	out := make([]*models.PredictionRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := predictionFrom(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	SortPredictionsNewestFirst(out)
	return out, nil
}

// FindFollowUp returns the follow-up of predictionID owned by userID, or nil, nil.
func (s *Store) FindFollowUp(ctx context.Context, userID, predictionID string) (*models.FollowUpRecord, error) {
	q := s.client.Collection(models.FollowUpsCollection).
		Where("userId", "==", userID).
		Where("predictionId", "==", predictionID)
	doc, err := first(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query follow-up for %s: %w", predictionID, err)
	}
	if doc == nil {
		return nil, nil
	}
	var rec models.FollowUpRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, decodeErr(doc, err)
	}
	rec.ID = doc.Ref.ID
	return &rec, nil
}

// SortPredictionsNewestFirst orders records by capture time, newest first.
func SortPredictionsNewestFirst(recs []*models.PredictionRecord) {
	slices.SortStableFunc(recs, func(a, b *models.PredictionRecord) int {
		return b.Captured().Compare(a.Captured())
	})
}

func predictionFrom(doc *firestore.DocumentSnapshot) (*models.PredictionRecord, error) {
	var rec models.PredictionRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, decodeErr(doc, err)
	}
	rec.ID = doc.Ref.ID
	return &rec, nil
}
