package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/hibernate/internal/cloud"
	"github.com/me/hibernate/pkg/model"
)

// requireBinding loads the caller's active role binding, writing the
// error response itself when there is none.
func (s *Server) requireBinding(w http.ResponseWriter, r *http.Request) *model.RoleBinding {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())

	binding, err := s.store.GetActiveRoleBinding(r.Context(), userID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "role binding lookup failed",
		})
		return nil
	}
	if binding == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("AWS role not configured"))
		return nil
	}
	return binding
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	binding := s.requireBinding(w, r)
	if binding == nil {
		return
	}

	creds, err := s.broker.Assume(r.Context(), binding.RoleARN, binding.Region)
	if err != nil {
		s.respondCloudError(w, reqID, err)
		return
	}

	instances, err := s.instances.ListInstances(r.Context(), creds, binding.Region)
	if err != nil {
		s.respondCloudError(w, reqID, err)
		return
	}
	if instances == nil {
		instances = []model.Instance{}
	}
	respondOK(w, reqID, instances)
}

func (s *Server) handleToggleInstance(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	instanceID := chi.URLParam(r, "id")

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrValidation, Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	action, err := model.ParseAction(req.Action)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError(err.Error()))
		return
	}

	binding := s.requireBinding(w, r)
	if binding == nil {
		return
	}

	creds, err := s.broker.Assume(r.Context(), binding.RoleARN, binding.Region)
	if err != nil {
		s.respondCloudError(w, reqID, err)
		return
	}

	if err := s.instances.SetInstanceState(r.Context(), creds, instanceID, action, binding.Region); err != nil {
		s.respondCloudError(w, reqID, err)
		return
	}

	s.logger.Info("manual instance action",
		"user_id", UserIDFromContext(r.Context()),
		"instance_id", instanceID,
		"action", action,
	)
	respondOK(w, reqID, map[string]any{
		"instance_id": instanceID,
		"action":      action,
	})
}

// respondCloudError maps cloud-boundary failures onto the API error
// envelope.
func (s *Server) respondCloudError(w http.ResponseWriter, reqID string, err error) {
	var authErr *cloud.AuthorizationError
	var actionErr *cloud.InstanceActionError
	var inventoryErr *cloud.InventoryError
	var timeoutErr *cloud.TimeoutError

	switch {
	case errors.As(err, &authErr):
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code: model.ErrProvider, Message: "role assumption failed: " + authErr.Error(),
		})
	case errors.As(err, &timeoutErr):
		respondError(w, reqID, http.StatusGatewayTimeout, &model.APIError{
			Code: model.ErrProvider, Message: "provider call timed out",
		})
	case errors.As(err, &actionErr):
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code: model.ErrProvider, Message: actionErr.Error(),
		})
	case errors.As(err, &inventoryErr):
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code: model.ErrProvider, Message: inventoryErr.Error(),
		})
	default:
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
	}
}
