package fertilizer

import (
	"context"
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		crop string
		area float64
		want Result
	}{
		{"corn", 10000, Result{180, 80, 80}},
		{"tomato", 2500, Result{32.5, 16.25, 32.5}},
		{"strawberry", 333, Result{2.33, 1.17, 2.33}},
		{"bellpepper", 1, Result{0.01, 0.01, 0.01}},
	}
	for _, tt := range tests {
		t.Run(tt.crop, func(t *testing.T) {
			got, err := Calculate(tt.crop, tt.area)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_Invalid(t *testing.T) {
	_, err := Calculate("rice", 100)
	assert.ErrorIs(t, err, ErrUnknownCrop)

	for _, area := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := Calculate("corn", area)
		assert.ErrorIs(t, err, ErrBadArea)
		assert.True(t, models.IsValidation(err))
	}
}

func TestCrops(t *testing.T) {
	assert.Equal(t, []string{"apple", "bellpepper", "cherry", "corn", "grape", "peach", "potato", "strawberry", "tomato"}, Crops())
}

type memRatios struct {
	ratios map[string]*models.FertilizerRatio
	seq    int
}

func (m *memRatios) UpsertRatio(_ context.Context, r *models.FertilizerRatio) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	for id, existing := range m.ratios {
		if existing.UserID == r.UserID && existing.Crop == r.Crop {
			cp := *r
			cp.ID = id
			m.ratios[id] = &cp
			return id, nil
		}
	}
	m.seq++
	id := fmt.Sprintf("ratio-%d", m.seq)
	cp := *r
	cp.ID = id
	m.ratios[id] = &cp
	return id, nil
}

func (m *memRatios) GetRatio(_ context.Context, id string) (*models.FertilizerRatio, error) {
	r, ok := m.ratios[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRatios) ListRatios(_ context.Context, userID string) ([]*models.FertilizerRatio, error) {
	var out []*models.FertilizerRatio
	for _, r := range m.ratios {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.FertilizerRatio) int {
		if a.CreatedAt > b.CreatedAt {
			return -1
		}
		if a.CreatedAt < b.CreatedAt {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *memRatios) DeleteRatio(_ context.Context, id string) error {
	if _, ok := m.ratios[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.ratios, id)
	return nil
}

func newService() (*Service, *memRatios) {
	st := &memRatios{ratios: map[string]*models.FertilizerRatio{}}
	clock := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	return &Service{Store: st, Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}}, st
}

var grower = auth.Session{UserID: "grower-1"}

func TestService_SaveUpsertsPerCrop(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	first, err := svc.Save(ctx, grower, "corn", 5000)
	require.NoError(t, err)
	assert.Equal(t, 90.0, first.Nitrogen)

	second, err := svc.Save(ctx, grower, "corn", 10000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := svc.List(ctx, grower)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 180.0, list[0].Nitrogen)
}

func TestService_DeleteRemovesExactlyOne(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	corn, err := svc.Save(ctx, grower, "corn", 1000)
	require.NoError(t, err)
	tomato, err := svc.Save(ctx, grower, "tomato", 1000)
	require.NoError(t, err)
	grape, err := svc.Save(ctx, grower, "grape", 1000)
	require.NoError(t, err)

	remaining, err := svc.Delete(ctx, grower, tomato.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, grape.ID, remaining[0].ID)
	assert.Equal(t, corn.ID, remaining[1].ID)

	refetched, err := svc.List(ctx, grower)
	require.NoError(t, err)
	for _, r := range refetched {
		assert.NotEqual(t, tomato.ID, r.ID)
	}
	assert.Len(t, refetched, 2)
}

func TestService_DeleteOwnership(t *testing.T) {
	svc, st := newService()
	ctx := context.Background()

	r, err := svc.Save(ctx, grower, "apple", 400)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, auth.Session{UserID: "intruder"}, r.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Contains(t, st.ratios, r.ID)

	_, err = svc.Delete(ctx, grower, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Delete(ctx, auth.Session{}, r.ID)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
