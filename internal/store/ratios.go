package store

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// UpsertRatio stores r as the user's ratio for r.Crop, replacing an existing one.
func (s *Store) UpsertRatio(ctx context.Context, r *models.FertilizerRatio) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	col := s.client.Collection(models.FertilizerRatiosCollection)
	q := col.Where("userId", "==", r.UserID).Where("crop", "==", r.Crop).Limit(1)

	var id string
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			id = docs[0].Ref.ID
			return tx.Set(docs[0].Ref, r)
		}
		ref := col.NewDoc()
		id = ref.ID
		return tx.Create(ref, r)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save fertilizer ratio: %w", err)
	}
	return id, nil
}

// GetRatio loads a ratio by id.
func (s *Store) GetRatio(ctx context.Context, id string) (*models.FertilizerRatio, error) {
	doc, err := s.client.Collection(models.FertilizerRatiosCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("fertilizer ratio %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fertilizer ratio %s: %w", id, err)
	}
	return ratioFrom(doc)
}

// ListRatios returns the ratios of userID, newest first.
func (s *Store) ListRatios(ctx context.Context, userID string) ([]*models.FertilizerRatio, error) {
	base := s.client.Collection(models.FertilizerRatiosCollection).Where("userId", "==", userID)
	docs, ordered, err := orderedOrFallback(ctx, base.OrderBy("createdAt", firestore.Desc), base)
	if err != nil {
		return nil, fmt.Errorf("failed to list fertilizer ratios: %w", err)
	}
	out := make([]*models.FertilizerRatio, 0, len(docs))
	for _, doc := range docs {
		r, err := ratioFrom(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if !ordered {
		slices.SortStableFunc(out, func(a, b *models.FertilizerRatio) int {
			ta, _ := models.ParseTimestamp(a.CreatedAt)
			tb, _ := models.ParseTimestamp(b.CreatedAt)
			return tb.Compare(ta)
		})
	}
	return out, nil
}

// DeleteRatio removes a ratio by id.
func (s *Store) DeleteRatio(ctx context.Context, id string) error {
	if _, err := s.client.Collection(models.FertilizerRatiosCollection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if notFound(err) {
			return fmt.Errorf("fertilizer ratio %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete fertilizer ratio %s: %w", id, err)
	}
	return nil
}

func ratioFrom(doc *firestore.DocumentSnapshot) (*models.FertilizerRatio, error) {
	var r models.FertilizerRatio
	if err := doc.DataTo(&r); err != nil {
		return nil, decodeErr(doc, err)
	}
	r.ID = doc.Ref.ID
	return &r, nil
}
