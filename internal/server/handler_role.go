package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/me/hibernate/pkg/model"
)

// defaultRegion is used when a role binding omits its region.
const defaultRegion = "ap-south-1"

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())

	binding, err := s.store.GetActiveRoleBinding(r.Context(), userID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "role binding lookup failed",
		})
		return
	}
	// nil data means no role configured yet; clients treat it as unset.
	respondOK(w, reqID, binding)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())

	var req struct {
		RoleARN string `json:"role_arn"`
		Region  string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrValidation, Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	req.RoleARN = strings.TrimSpace(req.RoleARN)
	if req.RoleARN == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("role_arn is required"))
		return
	}
	if !strings.HasPrefix(req.RoleARN, "arn:aws:iam::") {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("role_arn must be an IAM role ARN"))
		return
	}
	if req.Region == "" {
		req.Region = defaultRegion
	}

	binding := &model.RoleBinding{
		ID:        "rb_" + uuid.New().String(),
		UserID:    userID,
		RoleARN:   req.RoleARN,
		Region:    req.Region,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.ReplaceRoleBinding(r.Context(), binding); err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "role binding update failed",
		})
		return
	}

	s.logger.Info("role binding replaced", "user_id", userID, "region", binding.Region)
	respondCreated(w, reqID, binding)
}
