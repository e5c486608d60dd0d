// Package profile reads and completes grower profiles.
package profile

import (
	"context"
	"strings"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
)

// ErrIncomplete is returned when onboarding fields are missing.
var ErrIncomplete = models.Invalid("Please fill in all fields and set your location")

// Store persists profiles.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	CompleteProfile(ctx context.Context, userID, email, name, plantTypes string, loc models.Location) error
}

// Service reads and updates the caller's profile.
type Service struct {
	Store Store
}

// Completion is the onboarding form.
type Completion struct {
	Name       string          `json:"name"`
	PlantTypes string          `json:"plantTypes"`
	Location   models.Location `json:"location"`
}

// Get returns the caller's profile.
func (s *Service) Get(ctx context.Context, sess auth.Session) (*models.UserProfile, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	return s.Store.GetProfile(ctx, sess.UserID)
}

// Complete stores the onboarding fields. Name, plant types and location are all required.
func (s *Service) Complete(ctx context.Context, sess auth.Session, c Completion) (*models.UserProfile, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	name := strings.TrimSpace(c.Name)
	plants := strings.TrimSpace(c.PlantTypes)
	if name == "" || plants == "" || !c.Location.IsSet() {
		return nil, ErrIncomplete
	}
	if lat, lon := *c.Location.Latitude, *c.Location.Longitude; lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, models.Invalid("Location is out of range")
	}
	if err := s.Store.CompleteProfile(ctx, sess.UserID, sess.Email, name, plants, c.Location); err != nil {
		return nil, err
	}
	return s.Store.GetProfile(ctx, sess.UserID)
}
