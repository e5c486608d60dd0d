package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu          sync.Mutex
	predictions []*models.PredictionRecord
	followUps   map[string]*models.FollowUpRecord
	failJoin    map[string]bool
	treatments  map[string][]string
	treatErr    error
}

func (f *fakeStore) ListPredictions(_ context.Context, userID string) ([]*models.PredictionRecord, error) {
	var out []*models.PredictionRecord
	for _, p := range f.predictions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentPredictions(ctx context.Context, userID string, n int) ([]*models.PredictionRecord, error) {
	all, _ := f.ListPredictions(ctx, userID)
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (f *fakeStore) GetPrediction(_ context.Context, id string) (*models.PredictionRecord, error) {
	for _, p := range f.predictions {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindFollowUp(_ context.Context, userID, predictionID string) (*models.FollowUpRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failJoin[predictionID] {
		return nil, errors.New("deadline exceeded")
	}
	fu := f.followUps[predictionID]
	if fu == nil || fu.UserID != userID {
		return nil, nil
	}
	return fu, nil
}

func (f *fakeStore) FindTreatment(_ context.Context, disease, plantType string) (*models.TreatmentEntry, error) {
	if f.treatErr != nil {
		return nil, f.treatErr
	}
	t, ok := f.treatments[disease+"/"+plantType]
	if !ok {
		return nil, nil
	}
	return &models.TreatmentEntry{Disease: disease, PlantType: plantType, Treatment: t}, nil
}

func pred(id, user, disease string, age time.Duration) *models.PredictionRecord {
	return &models.PredictionRecord{
		ID: id, UserID: user, PlantType: "tomato", Disease: disease, Confidence: 80,
		CapturedAt: models.Timestamp(now.Add(-age)),
	}
}

func newFixture() (*Service, *fakeStore) {
	fs := &fakeStore{
		predictions: []*models.PredictionRecord{
			pred("p-old", "u1", "Late Blight", 72*time.Hour),
			pred("p-new", "u1", "Early Blight", time.Hour),
			pred("p-mid", "u1", "Leaf Mold", 30*time.Hour),
			pred("p-other", "u2", "Septoria", time.Hour),
		},
		followUps: map[string]*models.FollowUpRecord{
			"p-new": {ID: "f1", PredictionID: "p-new", UserID: "u1", Answers: map[string]bool{"Rings?": true}},
			"p-old": {ID: "f2", PredictionID: "p-old", UserID: "u1", Answers: map[string]bool{"Wet weather?": false}},
		},
		failJoin:   map[string]bool{},
		treatments: map[string][]string{"Early Blight/tomato": {"Prune lower leaves"}},
	}
	return &Service{
		Store:      fs,
		Treatments: &triage.TreatmentResolver{Store: fs},
		Now:        func() time.Time { return now },
	}, fs
}

var u1 = auth.Session{UserID: "u1"}

func TestList_JoinsAndSortsNewestFirst(t *testing.T) {
	svc, fs := newFixture()
	fs.failJoin["p-old"] = true

	entries, err := svc.List(context.Background(), u1)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "p-new", entries[0].Prediction.ID)
	assert.Equal(t, "p-mid", entries[1].Prediction.ID)
	assert.Equal(t, "p-old", entries[2].Prediction.ID)

	require.NotNil(t, entries[0].FollowUp)
	assert.Equal(t, "f1", entries[0].FollowUp.ID)
	assert.Nil(t, entries[1].FollowUp, "no follow-up stored")
	assert.Nil(t, entries[2].FollowUp, "failed join still lists the entry")
}

func TestList_FailedJoinsDoNotFailTheList(t *testing.T) {
	svc, fs := newFixture()
	for _, id := range []string{"p-new", "p-mid", "p-old"} {
		fs.failJoin[id] = true
	}

	entries, err := svc.List(context.Background(), u1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Nil(t, e.FollowUp)
	}
}

func TestDetail(t *testing.T) {
	svc, fs := newFixture()
	ctx := context.Background()

	d, err := svc.Detail(ctx, u1, "p-new")
	require.NoError(t, err)
	assert.Equal(t, []string{"Prune lower leaves"}, d.Treatments)
	assert.Equal(t, "f1", d.FollowUp.ID)

	d, err = svc.Detail(ctx, u1, "p-mid")
	require.NoError(t, err)
	assert.Equal(t, triage.NoTreatmentsFound, d.Treatments)

	fs.treatErr = errors.New("unavailable")
	d, err = svc.Detail(ctx, u1, "p-new")
	require.NoError(t, err)
	assert.Equal(t, []string{"Unable to load treatments at this time."}, d.Treatments)

	_, err = svc.Detail(ctx, u1, "p-other")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = svc.Detail(ctx, u1, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBundle(t *testing.T) {
	svc, _ := newFixture()

	b, err := svc.Bundle(context.Background(), u1, "p-new")
	require.NoError(t, err)
	assert.Equal(t, "Early Blight", b.Disease)
	assert.Equal(t, map[string]bool{"Rings?": true}, b.Answers)

	_, err = svc.Bundle(context.Background(), auth.Session{UserID: "u2"}, "p-new")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestRecent(t *testing.T) {
	svc, _ := newFixture()

	got, err := svc.Recent(context.Background(), u1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].IsNew, "72h old")
	assert.True(t, got[1].IsNew, "1h old")

	_, err = svc.Recent(context.Background(), auth.Session{}, 3)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
