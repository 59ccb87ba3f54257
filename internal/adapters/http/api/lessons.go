// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/etudekit/etude/internal/adapters/repository"
)

// LessonsHandler handles practice history reads.
type LessonsHandler struct {
	deps Dependencies
}

// NewLessonsHandler creates a new lessons handler.
func NewLessonsHandler(deps Dependencies) *LessonsHandler {
	return &LessonsHandler{deps: deps}
}

// HandleStats handles GET /lessons/{uid}/stats requests.
func (h *LessonsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	agg, err := h.deps.LessonStats(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HandleHistory handles GET /lessons/{uid}/history requests.
func (h *LessonsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.deps.LessonHistory(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// HandleActivity handles GET /activity?bucket=day|week|month requests.
func (h *LessonsHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.activity"
	bucket := repository.Bucket(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = repository.BucketDay
	}
	if !repository.ValidBucket(bucket) {
		writeError(w, http.StatusBadRequest, "invalid_bucket", NewKind(op, ErrBadRequest))
		return
	}
	points, err := h.deps.Activity(r.Context(), bucket)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}
