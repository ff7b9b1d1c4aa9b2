package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/hibernate/pkg/model"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())

	schedules, err := s.store.ListSchedulesByUser(r.Context(), userID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "schedule listing failed",
		})
		return
	}
	if schedules == nil {
		schedules = []*model.Schedule{}
	}
	respondOK(w, reqID, schedules)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())

	var req struct {
		InstanceID string         `json:"instance_id"`
		StartTime  string         `json:"start_time"`
		StopTime   string         `json:"stop_time"`
		Days       []time.Weekday `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrValidation, Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	sch := &model.Schedule{
		ID:         "sch_" + uuid.New().String(),
		UserID:     userID,
		InstanceID: req.InstanceID,
		StartTime:  req.StartTime,
		StopTime:   req.StopTime,
		Days:       req.Days,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := sch.Validate(); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError(err.Error()))
		return
	}

	if err := s.store.CreateSchedule(r.Context(), sch); err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "schedule creation failed",
		})
		return
	}

	s.logger.Info("schedule created",
		"user_id", userID, "schedule_id", sch.ID, "instance_id", sch.InstanceID)
	respondCreated(w, reqID, sch)
}

func (s *Server) handlePatchSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrValidation, Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Active == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("active is required"))
		return
	}

	ok, err := s.store.SetScheduleActive(r.Context(), id, userID, *req.Active)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "schedule update failed",
		})
		return
	}
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}

	sch, err := s.store.GetSchedule(r.Context(), id)
	if err != nil || sch == nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "schedule reload failed",
		})
		return
	}
	respondOK(w, reqID, sch)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ok, err := s.store.DeleteSchedule(r.Context(), id, userID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: "schedule deletion failed",
		})
		return
	}
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}

	s.logger.Info("schedule deleted", "user_id", userID, "schedule_id", id)
	respondOK(w, reqID, map[string]string{"deleted": id})
}
