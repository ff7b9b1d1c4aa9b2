package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/me/hibernate/pkg/model"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrValidation, Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("email and password are required"))
		return
	}

	existing, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "user lookup failed",
		})
		return
	}
	if existing != nil {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code: model.ErrConflict, Message: "email already registered",
		})
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "password hashing failed",
		})
		return
	}

	user := &model.User{
		ID:           "usr_" + uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code: model.ErrConflict, Message: "email already registered",
		})
		return
	}

	s.logger.Info("user registered", "user_id", user.ID)
	respondCreated(w, reqID, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrValidation, Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "user lookup failed",
		})
		return
	}

	ok := false
	if user != nil {
		ok, err = verifyPassword(user.PasswordHash, req.Password)
		if err != nil {
			respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
				Code: model.ErrInternal, Message: "password verification failed",
			})
			return
		}
	}
	if !ok {
		respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
			Code: model.ErrUnauthorized, Message: "invalid credentials",
		})
		return
	}

	sess, err := s.createSession(r.Context(), user.ID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "session creation failed",
		})
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	respondOK(w, reqID, map[string]any{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"user":       user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if token := bearerToken(r); token != "" {
		if err := s.store.DeleteSessionByToken(r.Context(), token); err != nil {
			respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
				Code: model.ErrInternal, Message: "session deletion failed",
			})
			return
		}
	}
	respondOK(w, reqID, map[string]string{"message": "logged out"})
}
