// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/etudekit/etude/internal/adapters/convert"
	"github.com/etudekit/etude/internal/domain/score"
)

// ScoresHandler handles score upload, lookup, and image conversion.
type ScoresHandler struct {
	deps     Dependencies
	maxBytes int64
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies, maxBytes int64) *ScoresHandler {
	return &ScoresHandler{deps: deps, maxBytes: maxBytes}
}

// HandlePostScore handles POST /scores requests. The body is a MusicXML
// document; title and source come from query parameters.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	doc, err := io.ReadAll(io.LimitReader(r.Body, h.maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if int64(len(doc)) > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", NewKind(op, ErrBadRequest))
		return
	}
	if len(doc) == 0 {
		writeError(w, http.StatusBadRequest, "empty_body", NewKind(op, ErrBadRequest))
		return
	}

	info, err := h.deps.LoadScore(r.Context(),
		r.URL.Query().Get("title"),
		r.URL.Query().Get("source"),
		doc,
	)
	if err != nil {
		if errors.Is(err, score.ErrMalformedDocument) {
			writeError(w, http.StatusBadRequest, "malformed_score", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// HandleListScores handles GET /scores requests.
func (h *ScoresHandler) HandleListScores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ListScores())
}

// HandleGetScore handles GET /scores/{id} requests, returning the score
// info together with its derived beat sequence.
func (h *ScoresHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, beats, err := h.deps.GetScore(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score": info,
		"beats": beats,
	})
}

// HandleConvert handles POST /convert requests. The multipart "file" field
// carries a sheet image; the response is the converted MusicXML document.
func (h *ScoresHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	const op = "api.convert"
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", WrapKind(op, ErrBadRequest, err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	doc, err := h.deps.ConvertImage(r.Context(), header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, convert.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
		case errors.Is(err, convert.ErrUnsupportedFormat):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err)
		case errors.Is(err, convert.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "not_configured", err)
		default:
			writeError(w, http.StatusBadGateway, "conversion_failed", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/vnd.recordare.musicxml+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
