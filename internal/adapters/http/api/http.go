// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/etudekit/etude/internal/adapters/repository"
	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Score loading.
	LoadScore(ctx context.Context, title, source string, doc []byte) (types.ScoreInfo, error)
	GetScore(id string) (types.ScoreInfo, []model.Beat, error)
	ListScores() []types.ScoreInfo
	ConvertImage(ctx context.Context, filename string, data []byte) ([]byte, error)

	// Session lifecycle and playback control.
	OpenSession(ctx context.Context, scoreID string) (types.SessionSnapshot, error)
	CloseSession(id string) error
	PlaySession(ctx context.Context, id string) error
	PauseSession(id string) error
	ResumeSession(id string) error
	SeekSession(id string, beat int) error
	StopSession(id string) error
	SessionInput(id string, pitch, velocity uint8) error
	SessionKeyInput(id, key string, down bool, octaveShift int) error
	SessionSnapshot(id string) (types.SessionSnapshot, error)
	SessionResult(ctx context.Context, id string) (model.SessionSummary, error)

	// Practice history reads.
	LessonHistory(ctx context.Context, lessonUID string) ([]model.SessionSummary, error)
	LessonStats(ctx context.Context, lessonUID string) (repository.Aggregate, error)
	Activity(ctx context.Context, bucket repository.Bucket) ([]repository.ActivityPoint, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	scoresHandler   *ScoresHandler
	sessionsHandler *SessionsHandler
	lessonsHandler  *LessonsHandler

	maxUploadBytes int64
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithMaxUploadBytes caps score and image upload sizes.
func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		maxUploadBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.scoresHandler = NewScoresHandler(deps, s.maxUploadBytes)
	s.sessionsHandler = NewSessionsHandler(deps)
	s.lessonsHandler = NewLessonsHandler(deps)
	return s
}

// Router builds the full route tree with CORS and metrics middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	r.HandleFunc("/scores", MetricsMiddleware(s.scoresHandler.HandlePostScore, "scores")).Methods(http.MethodPost)
	r.HandleFunc("/scores", MetricsMiddleware(s.scoresHandler.HandleListScores, "scores")).Methods(http.MethodGet)
	r.HandleFunc("/scores/{id}", MetricsMiddleware(s.scoresHandler.HandleGetScore, "score")).Methods(http.MethodGet)
	r.HandleFunc("/convert", MetricsMiddleware(s.scoresHandler.HandleConvert, "convert")).Methods(http.MethodPost)

	r.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleSnapshot, "session")).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleClose, "session")).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/play", MetricsMiddleware(s.sessionsHandler.HandlePlay, "session_play")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/pause", MetricsMiddleware(s.sessionsHandler.HandlePause, "session_pause")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/resume", MetricsMiddleware(s.sessionsHandler.HandleResume, "session_resume")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/seek", MetricsMiddleware(s.sessionsHandler.HandleSeek, "session_seek")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/stop", MetricsMiddleware(s.sessionsHandler.HandleStop, "session_stop")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/input", MetricsMiddleware(s.sessionsHandler.HandleInput, "session_input")).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/result", MetricsMiddleware(s.sessionsHandler.HandleResult, "session_result")).Methods(http.MethodGet)

	r.HandleFunc("/lessons/{uid}/stats", MetricsMiddleware(s.lessonsHandler.HandleStats, "lesson_stats")).Methods(http.MethodGet)
	r.HandleFunc("/lessons/{uid}/history", MetricsMiddleware(s.lessonsHandler.HandleHistory, "lesson_history")).Methods(http.MethodGet)
	r.HandleFunc("/activity", MetricsMiddleware(s.lessonsHandler.HandleActivity, "activity")).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound allows the API to translate upstream not-found errors to 404.
// This stays generic to avoid tight coupling with specific packages.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "not found")
}
