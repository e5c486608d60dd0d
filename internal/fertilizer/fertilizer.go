// Package fertilizer computes and stores per-crop NPK fertilizer amounts.
package fertilizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
)

// Rate is a recommended application rate in kg per hectare.
type Rate struct {
	N, P, K float64
}

// Rates are the per-crop recommendations.
var Rates = map[string]Rate{
	"apple":      {100, 50, 100},
	"bellpepper": {120, 60, 120},
	"cherry":     {90, 45, 90},
	"corn":       {180, 80, 80},
	"grape":      {110, 55, 110},
	"peach":      {100, 50, 100},
	"potato":     {140, 70, 140},
	"strawberry": {70, 35, 70},
	"tomato":     {130, 65, 130},
}

var (
	ErrUnknownCrop = models.Invalid("Please select a crop")
	ErrBadArea     = models.Invalid("Please enter a valid area")
	// ErrNotOwner is returned when deleting another user's ratio.
	ErrNotOwner = errors.New("you can only delete your own fertilizer ratios")
)

// Result is the amount of each nutrient in kilograms.
type Result struct {
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
}

// Crops returns the supported crops in alphabetical order.
func Crops() []string {
	out := make([]string, 0, len(Rates))
	for c := range Rates {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Calculate returns the nutrient amounts for crop over areaM2 square meters, rounded to
// two decimals.
func Calculate(crop string, areaM2 float64) (Result, error) {
	rate, ok := Rates[crop]
	if !ok {
		return Result{}, ErrUnknownCrop
	}
	if math.IsNaN(areaM2) || math.IsInf(areaM2, 0) || areaM2 <= 0 {
		return Result{}, ErrBadArea
	}
	ha := areaM2 / 10000
	return Result{
		Nitrogen:   round2(rate.N * ha),
		Phosphorus: round2(rate.P * ha),
		Potassium:  round2(rate.K * ha),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Store persists saved ratios.
type Store interface {
	UpsertRatio(ctx context.Context, r *models.FertilizerRatio) (string, error)
	GetRatio(ctx context.Context, id string) (*models.FertilizerRatio, error)
	ListRatios(ctx context.Context, userID string) ([]*models.FertilizerRatio, error)
	DeleteRatio(ctx context.Context, id string) error
}

// Service saves, lists and deletes a user's ratios.
type Service struct {
	Store Store
	Now   func() time.Time
}

// Save calculates and stores the ratio for crop, replacing the user's previous one.
func (s *Service) Save(ctx context.Context, sess auth.Session, crop string, areaM2 float64) (*models.FertilizerRatio, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	res, err := Calculate(crop, areaM2)
	if err != nil {
		return nil, err
	}
	r := &models.FertilizerRatio{
		UserID:     sess.UserID,
		Crop:       crop,
		Area:       areaM2,
		Nitrogen:   res.Nitrogen,
		Phosphorus: res.Phosphorus,
		Potassium:  res.Potassium,
		CreatedAt:  models.Timestamp(s.now()),
	}
	id, err := s.Store.UpsertRatio(ctx, r)
	if err != nil {
		return nil, err
	}
	r.ID = id
	return r, nil
}

// List returns the user's ratios, newest first.
func (s *Service) List(ctx context.Context, sess auth.Session) ([]*models.FertilizerRatio, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	return s.Store.ListRatios(ctx, sess.UserID)
}

// Delete removes one of the user's ratios and returns the remaining ones.
func (s *Service) Delete(ctx context.Context, sess auth.Session, id string) ([]*models.FertilizerRatio, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	r, err := s.Store.GetRatio(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != sess.UserID {
		return nil, ErrNotOwner
	}
	if err := s.Store.DeleteRatio(ctx, id); err != nil {
		return nil, err
	}
	return s.List(ctx, sess)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// String formats a result the way the calculator displays it.
func (r Result) String() string {
	return fmt.Sprintf("N %.2f kg, P %.2f kg, K %.2f kg", r.Nitrogen, r.Phosphorus, r.Potassium)
}
