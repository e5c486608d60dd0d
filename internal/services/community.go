package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/community"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
)

// feedHeartbeat keeps idle event streams open through proxies.
const feedHeartbeat = 25 * time.Second

// CommunityFunction serves the community board and its live feed.
type CommunityFunction struct {
	board *community.Service
	feed  *community.Feed
	mux   *http.ServeMux
}

// NewCommunity creates a new CommunityFunction instance.
func NewCommunity(ctx context.Context) (*CommunityFunction, error) {
	cfg := loadModelConfig()
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	replier, err := newAssistant(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create expert replier: %w", err)
	}
	st := store.New(firestoreClient)
	f := newCommunityFunction(
		&community.Service{Posts: st, Profiles: st, Replier: replier},
		&community.Feed{Watch: func(ctx context.Context) community.SnapshotSource { return st.WatchPosts(ctx) }},
	)
	slog.Info("Community board initialized.")
	return f, nil
}

func newCommunityFunction(board *community.Service, feed *community.Feed) *CommunityFunction {
	f := &CommunityFunction{board: board, feed: feed, mux: http.NewServeMux()}
	f.mux.Handle("GET /tags", authenticated(f.tags))
	f.mux.Handle("GET /posts", authenticated(f.list))
	f.mux.Handle("POST /posts", authenticated(f.create))
	f.mux.Handle("GET /posts/{id}", authenticated(f.get))
	f.mux.Handle("DELETE /posts/{id}", authenticated(f.deletePost))
	f.mux.Handle("POST /posts/{id}/reactions", authenticated(f.react))
	f.mux.Handle("POST /posts/{id}/comments", authenticated(f.comment))
	f.mux.Handle("POST /posts/{id}/comments/{index}/reactions", authenticated(f.reactToComment))
	f.mux.Handle("GET /feed", authenticated(f.stream))
	return f
}

func (f *CommunityFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

func (f *CommunityFunction) tags(w http.ResponseWriter, _ *http.Request, _ auth.Session, logCtx *slog.Logger) {
	writeJSON(w, logCtx, http.StatusOK, community.Tags)
}

func (f *CommunityFunction) list(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	filter, err := community.ParseFilter(r.URL.Query().Get("filter"), r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	posts, err := f.board.List(r.Context(), sess, filter)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, nonNil(posts))
}

func (f *CommunityFunction) create(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	var req models.CreatePostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	post, err := f.board.CreatePost(r.Context(), sess, req.Content, req.Tag)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	logCtx.Info("Post created.", "postId", post.ID, "tag", post.Tag)
	writeJSON(w, logCtx, http.StatusCreated, post)
}

func (f *CommunityFunction) get(w http.ResponseWriter, r *http.Request, _ auth.Session, logCtx *slog.Logger) {
	post, err := f.board.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, post)
}

func (f *CommunityFunction) deletePost(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	if err := f.board.Delete(r.Context(), sess, r.PathValue("id")); err != nil {
		writeError(w, logCtx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *CommunityFunction) react(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	var req models.ReactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	post, err := f.board.React(r.Context(), sess, r.PathValue("id"), community.Reaction(req.Reaction))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, post)
}

func (f *CommunityFunction) comment(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	var req models.CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	post, err := f.board.AddComment(r.Context(), sess, r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusCreated, post)
}

func (f *CommunityFunction) reactToComment(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, logCtx, models.Invalid("comment index must be a number"))
		return
	}
	var req models.ReactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, logCtx, err)
		return
	}
	post, err := f.board.ReactToComment(r.Context(), sess, r.PathValue("id"), index, community.Reaction(req.Reaction))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, post)
}

// stream writes every feed snapshot as a server-sent "posts" event until the client
// disconnects or the listener fails.
func (f *CommunityFunction) stream(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	filter, err := community.ParseFilter(r.URL.Query().Get("filter"), r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logCtx.Error("Streaming is not supported by the response writer.", "error", err)
		return
	}

	sub := f.feed.Subscribe(r.Context(), sess.UserID, filter)
	defer sub.Close()
	logCtx.Info("Feed subscriber connected.", "filter", filter.Kind)

	heartbeat := time.NewTicker(feedHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case posts, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					logCtx.Error("Feed listener failed.", "error", err)
					fmt.Fprint(w, "event: error\ndata: {\"error\":\"feed unavailable\"}\n\n")
					_ = rc.Flush()
				}
				return
			}
			data, err := json.Marshal(nonNil(posts))
			if err != nil {
				logCtx.Error("Failed to encode feed snapshot.", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: posts\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
