package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/storage"
)

type PostEntryRequest struct {
	SessionID string  `json:"session_id" validate:"notblank"`
	Role      string  `json:"role"`
	Horizon   float64 `json:"horizon" validate:"gte=0"`
	Message   string  `json:"message" validate:"notblank,max=1000"`
}

// UnmarshalJSON also accepts job_title and dday, as older clients send them.
func (p *PostEntryRequest) UnmarshalJSON(data []byte) error {
	type plain PostEntryRequest
	var raw struct {
		plain
		JobTitle string   `json:"job_title"`
		DDay     *float64 `json:"dday"`
		Horizon  *float64 `json:"horizon"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PostEntryRequest(raw.plain)
	if p.Role == "" {
		p.Role = raw.JobTitle
	}
	switch {
	case raw.Horizon != nil:
		p.Horizon = *raw.Horizon
	case raw.DDay != nil:
		p.Horizon = *raw.DDay
	}
	return nil
}

type PostEntryResponse struct {
	EntryID   string `json:"entry_id"`
	CreatedAt string `json:"created_at"`
}

type ReactionRequest struct {
	Emoji     string `json:"emoji" validate:"emoji"`
	CreatedAt string `json:"created_at" validate:"notblank"`
}

type ReactionResponse struct {
	Reactions map[string]int64 `json:"reactions"`
}

func (h *handlers) handlePostEntry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req PostEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "invalid request body: %v", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "missing or invalid fields: %s", invalidFields(err))
		return
	}

	e, err := h.poster.Post(r.Context(), guestbook.NewEntry{
		SessionID: req.SessionID,
		Role:      req.Role,
		Horizon:   req.Horizon,
		Message:   req.Message,
	})
	if errors.Is(err, guestbook.ErrInvalidEntry) {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "%v", err)
		return
	}
	if err != nil {
		h.logger.Error("posting guestbook entry", zap.String("session_id", req.SessionID), zap.Error(err))
		httpError(w, http.StatusInternalServerError, errTypeAPI, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, PostEntryResponse{EntryID: e.EntryID, CreatedAt: e.CreatedAt})
}

// handleListEntries serves one feed page. last_key is the older name of the
// cursor parameter.
func (h *handlers) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor := q.Get("cursor")
	if cursor == "" {
		cursor = q.Get("last_key")
	}

	page, err := h.feed.List(r.Context(), guestbook.ClampLimit(q.Get("limit")), cursor)
	if errors.Is(err, guestbook.ErrInvalidCursor) {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "invalid cursor")
		return
	}
	if err != nil {
		h.logger.Error("listing guestbook", zap.Error(err))
		httpError(w, http.StatusInternalServerError, errTypeAPI, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) handleReaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "invalid request body: %v", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, http.StatusBadRequest, errTypeInvalidRequest, "missing or invalid fields: %s", invalidFields(err))
		return
	}

	key := storage.EntryKey{EntryID: chi.URLParam(r, "id"), CreatedAt: req.CreatedAt}
	reactions, err := h.counter.Increment(r.Context(), key, req.Emoji)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, errTypeNotFound, "guestbook entry %s not found", key.EntryID)
		return
	}
	if err != nil {
		h.logger.Error("incrementing reaction", zap.String("entry_id", key.EntryID), zap.Error(err))
		httpError(w, http.StatusInternalServerError, errTypeAPI, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, ReactionResponse{Reactions: reactions})
}
