package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/doomclock/internal/analysis"
	"github.com/kalambet/doomclock/internal/storage"
)

// ReasonDispatch is recorded when a session was stored but could not be
// handed to the worker.
const ReasonDispatch = "dispatch_error"

type SurveyRequest struct {
	SessionID string `json:"session_id" validate:"notblank,max=128"`
	Name      string `json:"name" validate:"notblank"`
	Role      string `json:"role" validate:"notblank"`
	Strengths string `json:"strengths" validate:"notblank"`
	Hobbies   string `json:"hobbies" validate:"notblank"`
}

// UnmarshalJSON also accepts job_title for role, as older clients send it.
func (s *SurveyRequest) UnmarshalJSON(data []byte) error {
	type plain SurveyRequest
	var raw struct {
		plain
		JobTitle string `json:"job_title"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SurveyRequest(raw.plain)
	if strings.TrimSpace(s.Role) == "" {
		s.Role = raw.JobTitle
	}
	return nil
}

type SurveyResponse struct {
	SessionID string         `json:"session_id"`
	Status    storage.Status `json:"status"`
}

func (h *handlers) handleSurvey(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req SurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "invalid request body: %v", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "missing or invalid fields: %s", invalidFields(err))
		return
	}

	ctx := r.Context()
	err := h.sessions.Start(ctx, storage.Session{
		ID:        req.SessionID,
		Name:      req.Name,
		Role:      req.Role,
		Strengths: req.Strengths,
		Hobbies:   req.Hobbies,
	})
	if errors.Is(err, storage.ErrSessionExists) {
		httpError(w, http.StatusConflict, errTypeConflict, "session %s already submitted", req.SessionID)
		return
	}
	if err != nil {
		h.logger.Error("starting session", zap.String("session_id", req.SessionID), zap.Error(err))
		httpError(w, http.StatusInternalServerError, errTypeAPI, "internal server error")
		return
	}

	profile := analysis.Profile{Name: req.Name, Role: req.Role, Strengths: req.Strengths, Hobbies: req.Hobbies}
	if err := h.dispatcher.Dispatch(ctx, req.SessionID, profile); err != nil {
		h.logger.Error("dispatching analysis", zap.String("session_id", req.SessionID), zap.Error(err))
		h.sessions.Fail(ctx, req.SessionID, ReasonDispatch)
		httpError(w, http.StatusInternalServerError, errTypeAPI, "internal server error")
		return
	}

	h.logger.Info("survey accepted", zap.String("session_id", req.SessionID))
	writeJSON(w, http.StatusOK, SurveyResponse{SessionID: req.SessionID, Status: storage.StatusAnalyzing})
}

func (h *handlers) handleResult(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if strings.TrimSpace(sid) == "" {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "session id is required")
		return
	}

	out, err := h.sessions.Read(r.Context(), sid)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, errTypeNotFound, "session %s not found", sid)
		return
	}
	if err != nil {
		h.logger.Error("reading session", zap.String("session_id", sid), zap.Error(err))
		httpError(w, http.StatusInternalServerError, errTypeAPI, "internal server error")
		return
	}

	switch out.Status {
	case storage.StatusAnalyzing:
		writeJSON(w, http.StatusAccepted, SurveyResponse{SessionID: out.SessionID, Status: out.Status})
	case storage.StatusError:
		httpError(w, http.StatusInternalServerError, errTypeAnalysis, "analysis failed")
	default:
		writeJSON(w, http.StatusOK, out)
	}
}
