// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// SessionsHandler handles session lifecycle and playback control.
type SessionsHandler struct {
	deps Dependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps Dependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// createSessionRequest mirrors the POST /sessions body.
type createSessionRequest struct {
	ScoreID string `json:"score_id"`
}

// seekRequest mirrors the POST /sessions/{id}/seek body.
type seekRequest struct {
	Beat int `json:"beat"`
}

// inputRequest mirrors the POST /sessions/{id}/input body. Either a raw
// MIDI pitch or a computer-keyboard key is accepted.
type inputRequest struct {
	Pitch       *uint8 `json:"pitch,omitempty"`
	Velocity    uint8  `json:"velocity,omitempty"`
	Key         string `json:"key,omitempty"`
	Down        *bool  `json:"down,omitempty"`
	OctaveShift int    `json:"octave_shift,omitempty"`
}

// HandleCreate handles POST /sessions requests.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.ScoreID) == "" {
		writeError(w, http.StatusBadRequest, "missing_score_id", NewKind(op, ErrBadRequest))
		return
	}
	snap, err := h.deps.OpenSession(r.Context(), req.ScoreID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "unprocessable", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleSnapshot handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.SessionSnapshot(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleClose handles DELETE /sessions/{id} requests.
func (h *SessionsHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CloseSession(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "closed"})
}

// HandlePlay handles POST /sessions/{id}/play requests.
func (h *SessionsHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "playing", func(id string) error {
		return h.deps.PlaySession(r.Context(), id)
	})
}

// HandlePause handles POST /sessions/{id}/pause requests.
func (h *SessionsHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "paused", h.deps.PauseSession)
}

// HandleResume handles POST /sessions/{id}/resume requests.
func (h *SessionsHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "playing", h.deps.ResumeSession)
}

// HandleStop handles POST /sessions/{id}/stop requests.
func (h *SessionsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "stopped", h.deps.StopSession)
}

// HandleSeek handles POST /sessions/{id}/seek requests.
func (h *SessionsHandler) HandleSeek(w http.ResponseWriter, r *http.Request) {
	const op = "api.seek"
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	h.transition(w, r, "stopped", func(id string) error {
		return h.deps.SeekSession(id, req.Beat)
	})
}

// HandleInput handles POST /sessions/{id}/input requests.
func (h *SessionsHandler) HandleInput(w http.ResponseWriter, r *http.Request) {
	const op = "api.input"
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := mux.Vars(r)["id"]

	var err error
	switch {
	case req.Pitch != nil:
		velocity := req.Velocity
		if velocity == 0 {
			velocity = 64
		}
		err = h.deps.SessionInput(id, *req.Pitch, velocity)
	case req.Key != "":
		down := true
		if req.Down != nil {
			down = *req.Down
		}
		err = h.deps.SessionKeyInput(id, req.Key, down, req.OctaveShift)
	default:
		writeError(w, http.StatusBadRequest, "missing_input", NewKind(op, ErrBadRequest))
		return
	}
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandleResult handles GET /sessions/{id}/result requests.
func (h *SessionsHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.SessionResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// transition runs a playback state change and maps its errors.
func (h *SessionsHandler) transition(w http.ResponseWriter, r *http.Request, status string, fn func(id string) error) {
	if err := fn(mux.Vars(r)["id"]); err != nil {
		switch {
		case isNotFound(err):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, ErrConflict):
			writeError(w, http.StatusConflict, "conflict", err)
		default:
			// busy sessions and invalid transitions both map to conflict
			writeError(w, http.StatusConflict, "conflict", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: status})
}
