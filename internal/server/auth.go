package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/me/hibernate/pkg/model"
)

// SessionDuration is the lifetime of an API session.
const SessionDuration = 7 * 24 * time.Hour

const ctxKeyUserID ctxKey = "user_id"

// UserIDFromContext extracts the authenticated user's ID from request
// context, empty if the request is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}

// createSession issues a new opaque bearer token for the user and persists
// it. The token is only ever returned to the caller once.
func (s *Server) createSession(ctx context.Context, userID string) (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:        "ses_" + uuid.New().String(),
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionDuration),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// authMiddleware validates the Authorization bearer token against the
// sessions table and stores the user ID in context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestIDFromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
				Code: model.ErrUnauthorized, Message: "missing bearer token",
			})
			return
		}

		sess, err := s.store.GetSessionByToken(r.Context(), token)
		if err != nil {
			respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
				Code: model.ErrInternal, Message: "session lookup failed",
			})
			return
		}
		if sess == nil || sess.IsExpired() {
			if sess != nil {
				_ = s.store.DeleteSessionByToken(r.Context(), token)
			}
			respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
				Code: model.ErrUnauthorized, Message: "invalid or expired session",
			})
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
