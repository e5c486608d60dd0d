// Package auth carries the caller identity established by the external identity
// service. Functions sit behind API Gateway, which verifies the Firebase ID token
// and forwards its claims; nothing here verifies signatures.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserInfoHeader is set by API Gateway to the base64url-encoded JWT payload.
const UserInfoHeader = "X-Apigateway-Api-Userinfo"

// ErrUnauthenticated is returned when no usable identity accompanies a request.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is the explicit identity passed into every workflow and service call.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
}

// Valid reports whether the session identifies a user.
func (s Session) Valid() bool {
	return s.UserID != ""
}

// NameOr returns the display name, or fallback when none is known.
func (s Session) NameOr(fallback string) string {
	if strings.TrimSpace(s.DisplayName) == "" {
		return fallback
	}
	return s.DisplayName
}

type claims struct {
	UserID  string `json:"user_id"`
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// FromRequest decodes the gateway-forwarded identity of r.
func FromRequest(r *http.Request) (Session, error) {
	raw := strings.TrimSpace(r.Header.Get(UserInfoHeader))
	if raw == "" {
		return Session{}, ErrUnauthenticated
	}
	return decodeUserInfo(raw)
}

func decodeUserInfo(raw string) (Session, error) {
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return Session{}, fmt.Errorf("%w: bad userinfo encoding: %v", ErrUnauthenticated, err)
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Session{}, fmt.Errorf("%w: bad userinfo payload: %v", ErrUnauthenticated, err)
	}
	s := Session{UserID: c.UserID, Email: c.Email, DisplayName: c.Name}
	if s.UserID == "" {
		s.UserID = c.Subject
	}
	if !s.Valid() {
		return Session{}, fmt.Errorf("%w: userinfo has no subject", ErrUnauthenticated)
	}
	return s, nil
}

// EncodeUserInfo produces a header value for s. Used by the CLI when it talks to
// functions directly and by tests.
func EncodeUserInfo(s Session) string {
	b, _ := json.Marshal(claims{UserID: s.UserID, Subject: s.UserID, Email: s.Email, Name: s.DisplayName})
	return base64.RawURLEncoding.EncodeToString(b)
}
