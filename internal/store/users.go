package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// GetProfile loads the profile keyed by userID.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	doc, err := s.client.Collection(models.UsersCollection).Doc(userID).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	var p models.UserProfile
	if err := doc.DataTo(&p); err != nil {
		return nil, decodeErr(doc, err)
	}
	p.ID = doc.Ref.ID
	return &p, nil
}

// CompleteProfile merges the onboarding fields into the profile, creating it if needed.
func (s *Store) CompleteProfile(ctx context.Context, userID, email, name, plantTypes string, loc models.Location) error {
	if !loc.IsSet() {
		return fmt.Errorf("invalid profile: location is required")
	}
	data := map[string]interface{}{
		"name":       name,
		"plantTypes": plantTypes,
		"location": map[string]interface{}{
			"latitude":  *loc.Latitude,
			"longitude": *loc.Longitude,
		},
	}
	if email != "" {
		data["email"] = email
	}
	ref := s.client.Collection(models.UsersCollection).Doc(userID)
	if _, err := ref.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to update profile %s: %w", userID, err)
	}
	return nil
}
