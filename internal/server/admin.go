package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/alfredjeanlab/laurel/internal/engine"
	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/scheduler"
)

var validate = validator.New()

type dispatchRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	EventType string `json:"event_type" validate:"required"`
	Increment int64  `json:"increment" validate:"gte=0"`
	ContestID *int64 `json:"contest_id" validate:"omitempty,gte=1"`
}

// handleDispatch handles POST /v1/admin/dispatch.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatch unavailable")
		return
	}
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ev := model.ActivityEvent{
		UserID:    req.UserID,
		Type:      model.EventType(req.EventType),
		Increment: req.Increment,
		ContestID: req.ContestID,
	}
	if err := s.dispatcher.Dispatch(r.Context(), ev); err != nil {
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, engine.ErrInvalidIncrement):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("admin dispatch", "user_id", req.UserID, "event_type", req.EventType, "err", err)
			writeError(w, http.StatusInternalServerError, "dispatch failed")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

// handleListJobs handles GET /v1/admin/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.Stats()})
}

// handleRunJob handles POST /v1/admin/jobs/{name}/run. The run is
// synchronous; the response carries its error, if any.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	name := r.PathValue("name")
	err := s.jobs.Trigger(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "ok"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "failed", "error": err.Error()})
	}
}

// handleConnections handles GET /v1/admin/connections. An optional user_id
// query parameter narrows the roster.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	entries := s.Presence.Roster(r.URL.Query().Get("user_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(entries),
		"connections": entries,
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fe.Field() + ": failed " + fe.Tag()
}
