package store

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// CreatePost adds a post and returns its id.
func (s *Store) CreatePost(ctx context.Context, p *models.Post) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	normalizePost(p)
	ref, _, err := s.client.Collection(models.PostsCollection).Add(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}
	return ref.ID, nil
}

// GetPost loads a post by id.
func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	doc, err := s.client.Collection(models.PostsCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %s: %w", id, err)
	}
	return postFrom(doc)
}

// ListPosts returns every post, newest first.
func (s *Store) ListPosts(ctx context.Context) ([]*models.Post, error) {
	docs, err := s.postsQuery().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return postsFrom(docs)
}

// RecentPostsByAuthor returns the newest n posts of authorID. Without the composite index
// it falls back to an unordered query.
func (s *Store) RecentPostsByAuthor(ctx context.Context, authorID string, n int) ([]*models.Post, error) {
	base := s.client.Collection(models.PostsCollection).Where("authorId", "==", authorID)
	docs, ordered, err := orderedOrFallback(ctx,
		base.OrderBy("createdAt", firestore.Desc).Limit(n),
		base.Limit(n))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent posts: %w", err)
	}
	posts, err := postsFrom(docs)
	if err != nil {
		return nil, err
	}
	if !ordered {
		SortPostsNewestFirst(posts)
	}
	return posts, nil
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if _, err := s.client.Collection(models.PostsCollection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if notFound(err) {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete post %s: %w", id, err)
	}
	return nil
}

// MutatePost reads a post, applies fn and writes the result back in one transaction.
// fn may be retried if the transaction conflicts.
func (s *Store) MutatePost(ctx context.Context, id string, fn func(*models.Post) error) (*models.Post, error) {
	ref := s.client.Collection(models.PostsCollection).Doc(id)
	var out *models.Post
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if notFound(err) {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		p, err := postFrom(doc)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		normalizePost(p)
		if err := tx.Set(ref, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update post %s: %w", id, err)
	}
	return out, nil
}

// WatchPosts streams full snapshots of the post collection, newest first.
func (s *Store) WatchPosts(ctx context.Context) *PostSnapshots {
	return &PostSnapshots{iter: s.postsQuery().Snapshots(ctx)}
}

func (s *Store) postsQuery() firestore.Query {
	return s.client.Collection(models.PostsCollection).OrderBy("createdAt", firestore.Desc)
}

// PostSnapshots adapts a Firestore snapshot listener to whole-collection post snapshots.
type PostSnapshots struct {
	iter *firestore.QuerySnapshotIterator
}

// Next blocks until the next snapshot is available.
func (p *PostSnapshots) Next() ([]*models.Post, error) {
	snap, err := p.iter.Next()
	if err != nil {
		return nil, err
	}
	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	return postsFrom(docs)
}

// Stop releases the listener.
func (p *PostSnapshots) Stop() {
	p.iter.Stop()
}

// SortPostsNewestFirst orders posts by createdAt, newest first.
func SortPostsNewestFirst(posts []*models.Post) {
	slices.SortStableFunc(posts, func(a, b *models.Post) int {
		ta, _ := models.ParseTimestamp(a.CreatedAt)
		tb, _ := models.ParseTimestamp(b.CreatedAt)
		return tb.Compare(ta)
	})
}

// normalizePost stores empty arrays instead of nulls so the mobile client can
// use array-contains on them.
func normalizePost(p *models.Post) {
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Dislikes == nil {
		p.Dislikes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	for i := range p.Comments {
		if p.Comments[i].Likes == nil {
			p.Comments[i].Likes = []string{}
		}
		if p.Comments[i].Dislikes == nil {
			p.Comments[i].Dislikes = []string{}
		}
	}
}

func postFrom(doc *firestore.DocumentSnapshot) (*models.Post, error) {
	var p models.Post
	if err := doc.DataTo(&p); err != nil {
		return nil, decodeErr(doc, err)
	}
	p.ID = doc.Ref.ID
	return &p, nil
}

func postsFrom(docs []*firestore.DocumentSnapshot) ([]*models.Post, error) {
	out := make([]*models.Post, 0, len(docs))
	for _, doc := range docs {
		p, err := postFrom(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
