package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/fertilizer"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
)

// FertilizerFunction calculates and stores fertilizer ratios.
type FertilizerFunction struct {
	ratios *fertilizer.Service
	mux    *http.ServeMux
}

type calculation struct {
	Crop   string            `json:"crop"`
	AreaM2 float64           `json:"areaM2"`
	Result fertilizer.Result `json:"result"`
	Text   string            `json:"text"`
}

// NewFertilizer creates a new FertilizerFunction instance.
func NewFertilizer(ctx context.Context) (*FertilizerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return newFertilizerFunction(&fertilizer.Service{Store: store.New(firestoreClient)}), nil
}

func newFertilizerFunction(ratios *fertilizer.Service) *FertilizerFunction {
	f := &FertilizerFunction{ratios: ratios, mux: http.NewServeMux()}
	f.mux.HandleFunc("GET /crops", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, slog.Default(), http.StatusOK, fertilizer.Crops())
	})
	f.mux.Handle("POST /calculate", authenticated(f.calculate))
	f.mux.Handle("GET /ratios", authenticated(f.list))
	f.mux.Handle("POST /ratios", authenticated(f.save))
	f.mux.Handle("DELETE /ratios/{id}", authenticated(f.deleteRatio))
	return f
}

func (f *FertilizerFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

func (f *FertilizerFunction) calculate(w http.ResponseWriter, r *http.Request, _ auth.Session, logCtx *slog.Logger) {
	var req models.FertilizerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	res, err := fertilizer.Calculate(req.Crop, req.AreaM2)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, calculation{Crop: req.Crop, AreaM2: req.AreaM2, Result: res, Text: res.String()})
}

func (f *FertilizerFunction) list(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	ratios, err := f.ratios.List(r.Context(), sess)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, nonNil(ratios))
}

func (f *FertilizerFunction) save(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	var req models.FertilizerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	ratio, err := f.ratios.Save(r.Context(), sess, req.Crop, req.AreaM2)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	logCtx.Info("Fertilizer ratio saved.", "ratioId", ratio.ID, "crop", ratio.Crop)
	writeJSON(w, logCtx, http.StatusOK, ratio)
}

func (f *FertilizerFunction) deleteRatio(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	remaining, err := f.ratios.Delete(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, nonNil(remaining))
}
