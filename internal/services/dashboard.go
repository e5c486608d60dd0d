package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/community"
	"github.com/Lllllllleong/croppulse/internal/dashboard"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/history"
	"github.com/Lllllllleong/croppulse/internal/profile"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
	"github.com/Lllllllleong/croppulse/internal/weather"
)

// DashboardConfig holds all configuration for the dashboard service.
type DashboardConfig struct {
	ProjectID     string
	WeatherURL    string
	WeatherAPIKey string
}

// DashboardFunction serves the home dashboard, prediction history and the profile.
type DashboardFunction struct {
	dashboard *dashboard.Service
	history   *history.Service
	profiles  *profile.Service
	mux       *http.ServeMux
}

func loadDashboardConfig() (*DashboardConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	return &DashboardConfig{
		ProjectID:     projectID,
		WeatherURL:    gcp.GetEnv("WEATHER_URL", weather.DefaultBaseURL),
		WeatherAPIKey: gcp.GetEnv("WEATHER_API_KEY", ""),
	}, nil
}

func newHistory(client *firestore.Client) *history.Service {
	st := store.New(client)
	return &history.Service{Store: st, Treatments: &triage.TreatmentResolver{Store: st}}
}

// NewDashboard creates a new DashboardFunction instance. Without a weather API key the
// dashboard is served without weather.
func NewDashboard(ctx context.Context) (*DashboardFunction, error) {
	config, err := loadDashboardConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	st := store.New(firestoreClient)
	hist := newHistory(firestoreClient)

	dash := &dashboard.Service{
		Profiles:    st,
		Posts:       &community.Service{Posts: st, Profiles: st},
		Predictions: hist,
	}
	if config.WeatherAPIKey != "" {
		dash.Weather = weather.NewClient(config.WeatherURL, config.WeatherAPIKey)
	} else {
		slog.Warn("WEATHER_API_KEY is not set, dashboard weather is disabled.")
	}
	return newDashboardFunction(dash, hist, &profile.Service{Store: st}), nil
}

func newDashboardFunction(dash *dashboard.Service, hist *history.Service, profiles *profile.Service) *DashboardFunction {
	f := &DashboardFunction{dashboard: dash, history: hist, profiles: profiles, mux: http.NewServeMux()}
	f.mux.Handle("GET /dashboard", authenticated(f.load))
	f.mux.Handle("GET /history", authenticated(f.listHistory))
	f.mux.Handle("GET /history/{id}", authenticated(f.historyDetail))
	f.mux.Handle("GET /profile", authenticated(f.getProfile))
	f.mux.Handle("PUT /profile", authenticated(f.completeProfile))
	return f
}

func (f *DashboardFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

func (f *DashboardFunction) load(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	view, err := f.dashboard.Load(r.Context(), sess)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, view)
}

func (f *DashboardFunction) listHistory(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	entries, err := f.history.List(r.Context(), sess)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, nonNil(entries))
}

func (f *DashboardFunction) historyDetail(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	d, err := f.history.Detail(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, d)
}

func (f *DashboardFunction) getProfile(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	p, err := f.profiles.Get(r.Context(), sess)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, p)
}

func (f *DashboardFunction) completeProfile(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	var req profile.Completion
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	p, err := f.profiles.Complete(r.Context(), sess, req)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	logCtx.Info("Profile completed.")
	writeJSON(w, logCtx, http.StatusOK, p)
}
