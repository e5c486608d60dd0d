package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/community"
	"github.com/Lllllllleong/croppulse/internal/fertilizer"
	"github.com/Lllllllleong/croppulse/internal/history"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// statusFor maps an error to the HTTP status and message the client sees. Anything
// unrecognized is a 500 with a generic message.
func statusFor(err error) (int, string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, triage.ErrUnanswered),
		errors.Is(err, triage.ErrUnknownTarget),
		errors.Is(err, triage.ErrNoPrediction),
		errors.Is(err, triage.ErrNoImage),
		errors.Is(err, community.ErrNoComment):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, community.ErrNotAuthor):
		return http.StatusForbidden, community.NotAuthorMessage
	case errors.Is(err, fertilizer.ErrNotOwner),
		errors.Is(err, history.ErrNotOwner):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	}
	return http.StatusInternalServerError, "Internal Server Error: processing failed"
}

// writeError logs err once and sends its mapped status. Client errors are logged at
// warn level, server errors at error level.
func writeError(w http.ResponseWriter, logCtx *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logCtx.Error("Request failed.", "status", status, "error", err)
	} else {
		logCtx.Warn("Request rejected.", "status", status, "error", err)
	}
	writeJSON(w, logCtx, status, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, logCtx *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logCtx.Error("Failed to write response.", "error", err)
	}
}

// decodeJSON reads a JSON body into v. Failures are validation errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Message: fmt.Sprintf("Bad Request: could not parse JSON: %v", err)}
	}
	return nil
}

// requestLogger returns a logger scoped to the request and its caller.
func requestLogger(r *http.Request, sess auth.Session) *slog.Logger {
	return slog.With("method", r.Method, "path", r.URL.Path, "userId", sess.UserID)
}

// authenticated wraps a handler that needs the gateway identity.
func authenticated(next func(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := auth.FromRequest(r)
		if err != nil {
			writeError(w, requestLogger(r, sess), err)
			return
		}
		next(w, r, sess, requestLogger(r, sess))
	}
}
