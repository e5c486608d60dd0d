// Package dashboard assembles the grower home screen.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/community"
	"github.com/Lllllllleong/croppulse/internal/history"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/weather"
)

// RecentCount is how many posts and predictions the dashboard shows.
const RecentCount = 3

type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

type RecentPosts interface {
	Recent(ctx context.Context, sess auth.Session, n int) ([]community.RecentPost, error)
}

type RecentPredictions interface {
	Recent(ctx context.Context, sess auth.Session, n int) ([]history.Recent, error)
}

// Conditions is a simplified weather reading.
type Conditions struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

// Current is the present weather.
type Current struct {
	Conditions
	TempC    float64 `json:"tempC"`
	Humidity int     `json:"humidity"`
	WindKph  float64 `json:"windKph"`
}

// ForecastDay is one day of the forecast.
type ForecastDay struct {
	Conditions
	Date         string  `json:"date"`
	MaxTempC     float64 `json:"maxTempC"`
	MinTempC     float64 `json:"minTempC"`
	ChanceOfRain int     `json:"chanceOfRain"`
}

// Weather is the dashboard weather card.
type Weather struct {
	Place    string        `json:"place"`
	Current  Current       `json:"current"`
	Forecast []ForecastDay `json:"forecast"`
}

// View is everything the dashboard shows.
type View struct {
	Location          *models.Location       `json:"location,omitempty"`
	Weather           *Weather               `json:"weather,omitempty"`
	RecentPosts       []community.RecentPost `json:"recentPosts"`
	RecentPredictions []history.Recent       `json:"recentPredictions"`
}

// Service loads the dashboard.
type Service struct {
	Profiles    ProfileReader
	Weather     Forecaster
	Posts       RecentPosts
	Predictions RecentPredictions
}

// Load fetches the weather, recent posts and recent predictions concurrently. Weather and
// post failures are logged and leave their section empty; a prediction failure fails the load.
func (s *Service) Load(ctx context.Context, sess auth.Session) (*View, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	logCtx := slog.With("userId", sess.UserID)
	view := &View{RecentPosts: []community.RecentPost{}, RecentPredictions: []history.Recent{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loc, w := s.loadWeather(gctx, logCtx, sess.UserID)
		view.Location, view.Weather = loc, w
		return nil
	})
	g.Go(func() error {
		posts, err := s.Posts.Recent(gctx, sess, RecentCount)
		if err != nil {
			logCtx.Error("Failed to load recent posts.", "error", err)
			return nil
		}
		view.RecentPosts = posts
		return nil
	})
	g.Go(func() error {
		preds, err := s.Predictions.Recent(gctx, sess, RecentCount)
		if err != nil {
			return fmt.Errorf("failed to load recent predictions: %w", err)
		}
		view.RecentPredictions = preds
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) loadWeather(ctx context.Context, logCtx *slog.Logger, userID string) (*models.Location, *Weather) {
	p, err := s.Profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logCtx.Error("Failed to load profile location.", "error", err)
		}
		return nil, nil
	}
	if !p.Location.IsSet() {
		return nil, nil
	}
	loc := p.Location
	if s.Weather == nil {
		return &loc, nil
	}
	f, err := s.Weather.Forecast(ctx, *loc.Latitude, *loc.Longitude)
	if err != nil {
		logCtx.Error("Failed to fetch weather.", "error", err)
		return &loc, nil
	}
	return &loc, toWeather(f)
}

func toWeather(f *weather.Forecast) *Weather {
	w := &Weather{
		Place: f.Location.Name,
		Current: Current{
			Conditions: Conditions{Text: f.Current.Condition.Text, Icon: weather.IconName(f.Current.Condition.Code)},
			TempC:      f.Current.TempC,
			Humidity:   f.Current.Humidity,
			WindKph:    f.Current.WindKph,
		},
		Forecast: make([]ForecastDay, 0, len(f.Forecast.ForecastDay)),
	}
	for _, d := range f.Forecast.ForecastDay {
		w.Forecast = append(w.Forecast, ForecastDay{
			Conditions:   Conditions{Text: d.Day.Condition.Text, Icon: weather.IconName(d.Day.Condition.Code)},
			Date:         d.Date,
			MaxTempC:     d.Day.MaxTempC,
			MinTempC:     d.Day.MinTempC,
			ChanceOfRain: d.Day.DailyChanceOfRain,
		})
	}
	return w
}
