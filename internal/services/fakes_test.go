package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
)

// memStore backs the triage and community fakes.
type memStore struct {
	mu           sync.Mutex
	questionSets map[string][]string
	treatments   map[string][]string
	predictions  map[string]*models.PredictionRecord
	followUps    map[string]*models.FollowUpRecord
	posts        map[string]*models.Post
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		questionSets: map[string][]string{},
		treatments:   map[string][]string{},
		predictions:  map[string]*models.PredictionRecord{},
		followUps:    map[string]*models.FollowUpRecord{},
		posts:        map[string]*models.Post{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) FindQuestionSet(_ context.Context, disease, plantType string) (*models.QuestionSet, error) {
	q, ok := m.questionSets[disease+"/"+plantType]
	if !ok {
		return nil, nil
	}
	return &models.QuestionSet{Disease: disease, PlantType: plantType, Questions: q}, nil
}

func (m *memStore) FindTreatment(_ context.Context, disease, plantType string) (*models.TreatmentEntry, error) {
	t, ok := m.treatments[disease+"/"+plantType]
	if !ok {
		return nil, nil
	}
	return &models.TreatmentEntry{Disease: disease, PlantType: plantType, Treatment: t}, nil
}

func (m *memStore) CreatePrediction(_ context.Context, rec *models.PredictionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.ID = m.id("pred")
	m.predictions[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memStore) CreateFollowUp(_ context.Context, rec *models.FollowUpRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.ID = m.id("fu")
	m.followUps[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memStore) CreatePost(_ context.Context, p *models.Post) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	cp := *p
	cp.ID = m.id("post")
	m.posts[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListPosts(context.Context) ([]*models.Post, error) {
	out := make([]*models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *models.Post) int { return -compareStrings(a.ID, b.ID) })
	return out, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (m *memStore) DeletePost(_ context.Context, id string) error {
	delete(m.posts, id)
	return nil
}

func (m *memStore) MutatePost(_ context.Context, id string, fn func(*models.Post) error) (*models.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *memStore) RecentPostsByAuthor(context.Context, string, int) ([]*models.Post, error) {
	return nil, nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (*models.UserProfile, error) {
	return nil, store.ErrNotFound
}

type fakeClassifier struct {
	pred *models.Prediction
	err  error
	got  string
}

func (f *fakeClassifier) Predict(_ context.Context, image []byte, plantType string) (*models.Prediction, error) {
	f.got = plantType
	if len(image) == 0 {
		return nil, errors.New("no image")
	}
	return f.pred, f.err
}

type fakeSaver struct {
	mu    sync.Mutex
	err   error
	saved map[string][]byte
}

func (f *fakeSaver) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[name] = data
	return "gs://images/" + name, nil
}

type fakeTrigger struct {
	err     error
	payload any
}

func (f *fakeTrigger) Trigger(_ context.Context, payload any) (string, error) {
	f.payload = payload
	if f.err != nil {
		return "", f.err
	}
	return "projects/p/locations/l/workflows/w/executions/e1", nil
}

type replier struct{}

func (replier) CommunityReply(context.Context, string, string) string { return "Try a copper spray." }

func withUser(r *http.Request, userID string) *http.Request {
	r.Header.Set(auth.UserInfoHeader, auth.EncodeUserInfo(auth.Session{UserID: userID, Email: userID + "@example.com", DisplayName: "Grower " + userID}))
	return r
}
