// Package community implements the grower community board: posts, comments,
// reactions, filters and the live feed.
package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
)

// Tags are the plant tags a post can carry.
var Tags = []string{"Apple", "Bell pepper", "Cherry", "Corn", "Grape", "Peach", "Potato", "Strawberry", "Tomato"}

// Identity of the automatic expert comment.
const (
	AIAuthorID    = "AI_SYSTEM"
	AIAuthorName  = "Plant Expert AI"
	AIAuthorEmail = "ai@system"
	anonymous     = "Anonymous"
)

// NotAuthorMessage is the user-facing text for ErrNotAuthor.
const NotAuthorMessage = "You can only delete your own posts"

var (
	ErrEmptyPost    = models.Invalid("Post cannot be empty")
	ErrMissingTag   = models.Invalid("Please select a plant tag")
	ErrEmptyComment = models.Invalid("Comment cannot be empty")
	// ErrNotAuthor is returned when a user deletes someone else's post. Clients are
	// shown NotAuthorMessage.
	ErrNotAuthor = errors.New("post belongs to another user")
	// ErrNoComment is returned for a comment index outside the post's comments.
	ErrNoComment = errors.New("comment not found")
)

// PostStore is the persistence the board needs.
type PostStore interface {
	CreatePost(ctx context.Context, p *models.Post) (string, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context) ([]*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	MutatePost(ctx context.Context, id string, fn func(*models.Post) error) (*models.Post, error)
	RecentPostsByAuthor(ctx context.Context, authorID string, n int) ([]*models.Post, error)
}

// ProfileStore resolves author names.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Replier drafts the expert comment for a new post.
type Replier interface {
	CommunityReply(ctx context.Context, tag, content string) string
}

// Service implements the board's operations.
type Service struct {
	Posts    PostStore
	Profiles ProfileStore
	Replier  Replier
	Now      func() time.Time
}

// CreatePost validates and publishes a post with the expert reply as its first comment.
func (s *Service) CreatePost(ctx context.Context, sess auth.Session, content, tag string) (*models.Post, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyPost
	}
	if !ValidTag(tag) {
		return nil, ErrMissingTag
	}

	aiReply := s.Replier.CommunityReply(ctx, tag, content)
	now := models.Timestamp(s.now())
	post := &models.Post{
		Content:     content,
		AuthorID:    sess.UserID,
		AuthorEmail: sess.Email,
		AuthorName:  s.authorName(ctx, sess),
		Tag:         tag,
		CreatedAt:   now,
		Comments: []models.Comment{{
			Content:      aiReply,
			AuthorID:     AIAuthorID,
			AuthorName:   AIAuthorName,
			AuthorEmail:  AIAuthorEmail,
			CreatedAt:    now,
			Likes:        []string{},
			Dislikes:     []string{},
			IsAIResponse: true,
		}},
		Likes:    []string{},
		Dislikes: []string{},
	}

	id, err := s.Posts.CreatePost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to add post: %w", err)
	}
	post.ID = id
	return post, nil
}

// authorName prefers the profile name and falls back to "Anonymous".
func (s *Service) authorName(ctx context.Context, sess auth.Session) string {
	if s.Profiles == nil {
		return anonymous
	}
	p, err := s.Profiles.GetProfile(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Failed to load author profile.", "userId", sess.UserID, "error", err)
		}
		return anonymous
	}
	if strings.TrimSpace(p.Name) == "" {
		return anonymous
	}
	return p.Name
}

// Reaction is a like or a dislike.
type Reaction string

const (
	Like    Reaction = "like"
	Dislike Reaction = "dislike"
)

// React toggles the user's like or dislike on a post.
func (s *Service) React(ctx context.Context, sess auth.Session, postID string, r Reaction) (*models.Post, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	if r != Like && r != Dislike {
		return nil, models.Invalid(fmt.Sprintf("unknown reaction %q", r))
	}
	return s.Posts.MutatePost(ctx, postID, func(p *models.Post) error {
		p.Likes, p.Dislikes = toggleReaction(p.Likes, p.Dislikes, sess.UserID, r)
		return nil
	})
}

// ReactToComment toggles the user's like or dislike on the comment at index.
func (s *Service) ReactToComment(ctx context.Context, sess auth.Session, postID string, index int, r Reaction) (*models.Post, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	if r != Like && r != Dislike {
		return nil, models.Invalid(fmt.Sprintf("unknown reaction %q", r))
	}
	return s.Posts.MutatePost(ctx, postID, func(p *models.Post) error {
		if index < 0 || index >= len(p.Comments) {
			return fmt.Errorf("%w: index %d", ErrNoComment, index)
		}
		c := &p.Comments[index]
		c.Likes, c.Dislikes = toggleReaction(c.Likes, c.Dislikes, sess.UserID, r)
		return nil
	})
}

// toggleReaction applies r for user. Likes and dislikes exclude each other and repeating
// the active reaction removes it.
func toggleReaction(likes, dislikes []string, user string, r Reaction) ([]string, []string) {
	on, off := likes, dislikes
	if r == Dislike {
		on, off = dislikes, likes
	}
	if slices.Contains(on, user) {
		on = remove(on, user)
	} else {
		on = append(remove(on, user), user)
		off = remove(off, user)
	}
	if r == Dislike {
		return off, on
	}
	return on, off
}

func remove(ids []string, user string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != user {
			out = append(out, id)
		}
	}
	return out
}

// Delete removes a post written by the session's user.
func (s *Service) Delete(ctx context.Context, sess auth.Session, postID string) error {
	if !sess.Valid() {
		return auth.ErrUnauthenticated
	}
	p, err := s.Posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != sess.UserID {
		return ErrNotAuthor
	}
	if err := s.Posts.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// AddComment appends a comment to a post.
func (s *Service) AddComment(ctx context.Context, sess auth.Session, postID, content string) (*models.Post, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyComment
	}
	c := models.Comment{
		Content:     content,
		AuthorID:    sess.UserID,
		AuthorEmail: sess.Email,
		AuthorName:  sess.NameOr(anonymous),
		CreatedAt:   models.Timestamp(s.now()),
		Likes:       []string{},
		Dislikes:    []string{},
	}
	return s.Posts.MutatePost(ctx, postID, func(p *models.Post) error {
		p.Comments = append(p.Comments, c)
		return nil
	})
}

// Get loads one post.
func (s *Service) Get(ctx context.Context, postID string) (*models.Post, error) {
	return s.Posts.GetPost(ctx, postID)
}

// List returns the posts matching f, newest first unless f sorts otherwise.
func (s *Service) List(ctx context.Context, sess auth.Session, f Filter) ([]*models.Post, error) {
	posts, err := s.Posts.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return f.Apply(posts, sess.UserID), nil
}

// RecentPost is a dashboard entry for one of the user's own posts.
type RecentPost struct {
	*models.Post
	IsNew bool `json:"isNew"`
}

// Recent returns the user's newest n posts, flagging those younger than a day.
func (s *Service) Recent(ctx context.Context, sess auth.Session, n int) ([]RecentPost, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	posts, err := s.Posts.RecentPostsByAuthor(ctx, sess.UserID, n)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-24 * time.Hour)
	out := make([]RecentPost, 0, len(posts))
	for _, p := range posts {
		created, _ := models.ParseTimestamp(p.CreatedAt)
		out = append(out, RecentPost{Post: p, IsNew: created.After(cutoff)})
	}
	return out, nil
}

// ValidTag reports whether tag is one of Tags.
func ValidTag(tag string) bool {
	return slices.Contains(Tags, tag)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
