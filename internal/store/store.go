// Package store is the Firestore repository for every CropPulse collection.
// Documents are validated before they are written.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNotFound is returned when a document addressed by id does not exist.
var ErrNotFound = errors.New("document not found")

// Store reads and writes CropPulse documents.
type Store struct {
	client *firestore.Client
}

// New wraps an existing Firestore client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying Firestore client.
func (s *Store) Client() *firestore.Client {
	return s.client
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// missingIndex reports whether a query failed because a composite index is not deployed.
func missingIndex(err error) bool {
	return status.Code(err) == codes.FailedPrecondition
}

// first runs q with a limit of one and returns the first document, or nil.
func first(ctx context.Context, q firestore.Query) (*firestore.DocumentSnapshot, error) {
	docs, err := q.Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// orderedOrFallback runs ordered and, if Firestore reports a missing composite index,
// falls back to unordered. Callers sort the fallback result themselves.
func orderedOrFallback(ctx context.Context, ordered, unordered firestore.Query) ([]*firestore.DocumentSnapshot, bool, error) {
	docs, err := ordered.Documents(ctx).GetAll()
	if err == nil {
		return docs, true, nil
	}
	if !missingIndex(err) {
		return nil, false, err
	}
	slog.Warn("Composite index missing, falling back to unordered query.", "error", err)
	docs, err = unordered.Documents(ctx).GetAll()
	if err != nil {
		return nil, false, err
	}
	return docs, false, nil
}

// each iterates over a query without buffering every snapshot.
func each(ctx context.Context, q firestore.Query, fn func(*firestore.DocumentSnapshot) error) error {
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

func decodeErr(doc *firestore.DocumentSnapshot, err error) error {
	return fmt.Errorf("failed to decode document %s: %w", doc.Ref.Path, err)
}
