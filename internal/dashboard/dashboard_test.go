package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/community"
	"github.com/Lllllllleong/croppulse/internal/history"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/weather"
)

type profiles map[string]*models.UserProfile

func (p profiles) GetProfile(_ context.Context, id string) (*models.UserProfile, error) {
	if v, ok := p[id]; ok {
		return v, nil
	}
	return nil, store.ErrNotFound
}

type forecaster struct {
	err      error
	lat, lon float64
	calls    int
}

func (f *forecaster) Forecast(_ context.Context, lat, lon float64) (*weather.Forecast, error) {
	f.calls++
	f.lat, f.lon = lat, lon
	if f.err != nil {
		return nil, f.err
	}
	fc := &weather.Forecast{}
	fc.Location.Name = "Dubbo"
	fc.Current.TempC = 24
	fc.Current.Condition = weather.Condition{Text: "Partly cloudy", Code: 1003}
	day := weather.Day{Date: "2026-10-19"}
	day.Day.Condition = weather.Condition{Text: "Patchy rain", Code: 1063}
	day.Day.DailyChanceOfRain = 70
	fc.Forecast.ForecastDay = []weather.Day{day}
	return fc, nil
}

type postsFn func() ([]community.RecentPost, error)

func (f postsFn) Recent(context.Context, auth.Session, int) ([]community.RecentPost, error) {
	return f()
}

type predsFn func() ([]history.Recent, error)

func (f predsFn) Recent(context.Context, auth.Session, int) ([]history.Recent, error) {
	return f()
}

func ptr(f float64) *float64 { return &f }

func newService(fc *forecaster) *Service {
	return &Service{
		Profiles: profiles{
			"located":   {Location: models.Location{Latitude: ptr(-32.2), Longitude: ptr(148.6)}},
			"unlocated": {Name: "No Location"},
		},
		Weather: fc,
		Posts: postsFn(func() ([]community.RecentPost, error) {
			return []community.RecentPost{{Post: &models.Post{ID: "post-1"}, IsNew: true}}, nil
		}),
		Predictions: predsFn(func() ([]history.Recent, error) {
			return []history.Recent{{PredictionRecord: &models.PredictionRecord{ID: "pred-1"}}}, nil
		}),
	}
}

func TestLoad(t *testing.T) {
	fc := &forecaster{}
	v, err := newService(fc).Load(context.Background(), auth.Session{UserID: "located"})
	require.NoError(t, err)

	assert.Equal(t, -32.2, fc.lat)
	assert.Equal(t, 148.6, fc.lon)
	require.NotNil(t, v.Weather)
	assert.Equal(t, "Dubbo", v.Weather.Place)
	assert.Equal(t, "partly-sunny", v.Weather.Current.Icon)
	require.Len(t, v.Weather.Forecast, 1)
	assert.Equal(t, "rainy", v.Weather.Forecast[0].Icon)
	assert.Equal(t, 70, v.Weather.Forecast[0].ChanceOfRain)

	require.Len(t, v.RecentPosts, 1)
	assert.True(t, v.RecentPosts[0].IsNew)
	require.Len(t, v.RecentPredictions, 1)
	assert.Equal(t, "pred-1", v.RecentPredictions[0].ID)
}

func TestLoad_NoLocationSkipsWeather(t *testing.T) {
	fc := &forecaster{}
	svc := newService(fc)

	for _, user := range []string{"unlocated", "no-profile"} {
		v, err := svc.Load(context.Background(), auth.Session{UserID: user})
		require.NoError(t, err)
		assert.Nil(t, v.Weather)
		assert.Nil(t, v.Location)
	}
	assert.Zero(t, fc.calls)
}

func TestLoad_PartialFailures(t *testing.T) {
	fc := &forecaster{err: errors.New("weather down")}
	svc := newService(fc)
	svc.Posts = postsFn(func() ([]community.RecentPost, error) { return nil, errors.New("index building") })

	v, err := svc.Load(context.Background(), auth.Session{UserID: "located"})
	require.NoError(t, err)
	assert.Nil(t, v.Weather)
	assert.NotNil(t, v.Location)
	assert.Empty(t, v.RecentPosts)
	assert.Len(t, v.RecentPredictions, 1)

	svc.Predictions = predsFn(func() ([]history.Recent, error) { return nil, errors.New("permission denied") })
	_, err = svc.Load(context.Background(), auth.Session{UserID: "located"})
	assert.ErrorContains(t, err, "permission denied")
}
