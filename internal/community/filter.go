package community

import (
	"fmt"
	"slices"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// FilterKind selects which posts the board shows.
type FilterKind string

const (
	FilterAll       FilterKind = "all"
	FilterMyPosts   FilterKind = "myPosts"
	FilterByTag     FilterKind = "byTag"
	FilterMostLiked FilterKind = "mostLiked"
)

// Filter narrows or reorders a post list.
type Filter struct {
	Kind FilterKind
	// Tag is used by FilterByTag. An empty tag leaves the list unfiltered.
	Tag string
}

// ParseFilter builds a Filter from request parameters. An empty kind means all posts.
func ParseFilter(kind, tag string) (Filter, error) {
	switch FilterKind(kind) {
	case "", FilterAll:
		return Filter{Kind: FilterAll}, nil
	case FilterMyPosts, FilterMostLiked:
		return Filter{Kind: FilterKind(kind)}, nil
	case FilterByTag:
		return Filter{Kind: FilterByTag, Tag: tag}, nil
	}
	return Filter{}, models.Invalid(fmt.Sprintf("unknown filter %q", kind))
}

// Apply returns the posts f selects for userID. The input slice is not modified.
func (f Filter) Apply(posts []*models.Post, userID string) []*models.Post {
	out := slices.Clone(posts)
	switch f.Kind {
	case FilterMyPosts:
		out = slices.DeleteFunc(out, func(p *models.Post) bool { return p.AuthorID != userID })
	case FilterByTag:
		if f.Tag != "" {
			out = slices.DeleteFunc(out, func(p *models.Post) bool { return p.Tag != f.Tag })
		}
	case FilterMostLiked:
		slices.SortStableFunc(out, func(a, b *models.Post) int {
			return len(b.Likes) - len(a.Likes)
		})
	}
	return out
}
