package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// memStore is an in-memory stand-in for the Firestore repository.
type memStore struct {
	questionSets []models.QuestionSet
	treatments   []models.TreatmentEntry
	predictions  map[string]*models.PredictionRecord
	followUps    map[string]*models.FollowUpRecord

	questionErr  error
	treatmentErr error
	followUpErr  error
	questionHits []string
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		predictions: map[string]*models.PredictionRecord{},
		followUps:   map[string]*models.FollowUpRecord{},
	}
}

func (m *memStore) FindQuestionSet(_ context.Context, disease, plantType string) (*models.QuestionSet, error) {
	m.questionHits = append(m.questionHits, disease+"/"+plantType)
	if m.questionErr != nil {
		return nil, m.questionErr
	}
	for i := range m.questionSets {
		s := m.questionSets[i]
		if s.Disease == disease && (plantType == "" || s.PlantType == plantType) {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindTreatment(_ context.Context, disease, plantType string) (*models.TreatmentEntry, error) {
	if m.treatmentErr != nil {
		return nil, m.treatmentErr
	}
	for i := range m.treatments {
		t := m.treatments[i]
		if t.Disease == disease && t.PlantType == plantType {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreatePrediction(_ context.Context, rec *models.PredictionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	id := m.id("pred")
	cp := *rec
	cp.ID = id
	m.predictions[id] = &cp
	return id, nil
}

func (m *memStore) CreateFollowUp(_ context.Context, rec *models.FollowUpRecord) (string, error) {
	if m.followUpErr != nil {
		return "", m.followUpErr
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if _, ok := m.predictions[rec.PredictionID]; !ok {
		return "", errors.New("follow-up references unknown prediction")
	}
	id := m.id("fu")
	cp := *rec
	cp.ID = id
	m.followUps[id] = &cp
	return id, nil
}

// fakeClassifier returns a fixed prediction or error.
type fakeClassifier struct {
	prediction *models.Prediction
	err        error
	calls      int
	gotPlant   string
}

func (f *fakeClassifier) Predict(_ context.Context, _ []byte, plantType string) (*models.Prediction, error) {
	f.calls++
	f.gotPlant = plantType
	if f.err != nil {
		return nil, f.err
	}
	p := *f.prediction
	return &p, nil
}
