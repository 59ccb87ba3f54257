// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/etudekit/etude/internal/adapters/convert"
	summaryqueue "github.com/etudekit/etude/internal/adapters/mq/queue"
	workerpool "github.com/etudekit/etude/internal/adapters/mq/worker"
	"github.com/etudekit/etude/internal/adapters/repository"
	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/internal/domain/score"
	"github.com/etudekit/etude/internal/domain/types"
	"github.com/etudekit/etude/pkg/logger"
	"github.com/etudekit/etude/pkg/metrics"
)

// storedScore is a parsed score plus its derived beat sequence.
type storedScore struct {
	id    string
	score *model.Score
	beats []model.Beat
}

// Service implements the API dependencies for the practice system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	queue     *summaryqueue.InMemoryQueue
	pool      *workerpool.Pool
	converter *convert.Client

	scores   map[string]*storedScore
	sessions map[string]*Session

	midiPort string
	midiStop func() // stops the listener attached to the current session

	// Configuration
	workerCount    int
	queueSize      int
	tempoBPM       float64
	minBeatMs      float64
	countInBeats   int
	coalesceWindow time.Duration
	maxMistakes    int
	restPenalty    bool
	matchWindowMS  float64
	flashDuration  time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the summary queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStore sets the session store backend. The default is in-memory.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithConverter attaches the sheet-image conversion client.
func WithConverter(c *convert.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.converter = c
		}
	}
}

// WithTempoOverride forces the playback tempo, overriding score markings.
func WithTempoOverride(bpm float64) Option {
	return func(s *Service) {
		if bpm > 0 {
			s.tempoBPM = bpm
		}
	}
}

// WithMinBeatMs floors the duration of any beat window.
func WithMinBeatMs(ms float64) Option {
	return func(s *Service) {
		if ms > 0 {
			s.minBeatMs = ms
		}
	}
}

// WithCountInBeats sets the number of count-in ticks before playback.
func WithCountInBeats(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.countInBeats = n
		}
	}
}

// WithCoalesceWindow sets the chord aggregation window.
func WithCoalesceWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.coalesceWindow = d
		}
	}
}

// WithMaxMistakes sets the mistake ceiling for all sessions.
func WithMaxMistakes(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.maxMistakes = n
		}
	}
}

// WithRestPenalty records a mistake for presses during rest beats.
func WithRestPenalty(on bool) Option {
	return func(s *Service) {
		s.restPenalty = on
	}
}

// WithMatchWindow limits how late within a beat a chord still counts.
func WithMatchWindow(ms float64) Option {
	return func(s *Service) {
		if ms >= 0 {
			s.matchWindowMS = ms
		}
	}
}

// WithFlashDuration sets how long feedback highlights stay visible.
func WithFlashDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.flashDuration = d
		}
	}
}

// WithMIDIPort names the hardware MIDI input port. When set, the port is
// attached to each newly created session.
func WithMIDIPort(port string) Option {
	return func(s *Service) {
		s.midiPort = port
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      1024,
		minBeatMs:      80,
		countInBeats:   3,
		coalesceWindow: 30 * time.Millisecond,
		maxMistakes:    3,
		flashDuration:  350 * time.Millisecond,
		scores:         make(map[string]*storedScore),
		sessions:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting practice service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory session store")
	}
	s.queue = summaryqueue.NewInMemoryQueue(
		summaryqueue.WithCapacity(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "practice service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxMistakes", s.maxMistakes),
	)
	return nil
}

// Stop gracefully shuts down the service. Running sessions are stopped and
// their partial summaries drained to the store before workers exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping practice service...")

	// Stopping a session emits its summary through enqueueSummary, which
	// takes the service lock, so sessions stop outside of it.
	for _, sess := range sessions {
		sess.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.midiStop != nil {
		s.midiStop()
		s.midiStop = nil
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(ctx, "practice service stopped")
}

// LoadScore parses a MusicXML document, derives its beat sequence, and
// registers it for session creation.
func (s *Service) LoadScore(ctx context.Context, title, source string, doc []byte) (types.ScoreInfo, error) {
	parsed, err := score.Parse(bytes.NewReader(doc))
	if err != nil {
		return types.ScoreInfo{}, fmt.Errorf("parse score: %w", err)
	}
	if title != "" {
		parsed.Title = title
	}
	if source != "" {
		parsed.Source = source
	}

	builder := score.NewBuilder(
		score.WithMinBeatMs(s.minBeatMs),
		score.WithTempoOverride(s.tempoBPM),
	)
	beats := builder.BuildBeats(parsed)

	st := &storedScore{
		id:    uuid.NewString(),
		score: parsed,
		beats: beats,
	}

	s.mu.Lock()
	s.scores[st.id] = st
	s.mu.Unlock()

	s.logger.Info(ctx, "score loaded",
		logger.String("scoreID", st.id),
		logger.String("title", parsed.Title),
		logger.Int("measures", len(parsed.Measures)),
		logger.Int("beats", len(beats)),
	)
	return scoreInfo(st), nil
}

// GetScore returns a loaded score by id.
func (s *Service) GetScore(id string) (types.ScoreInfo, []model.Beat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.scores[id]
	if !ok {
		return types.ScoreInfo{}, nil, ErrScoreNotFound
	}
	return scoreInfo(st), st.beats, nil
}

// ListScores returns every loaded score.
func (s *Service) ListScores() []types.ScoreInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ScoreInfo, 0, len(s.scores))
	for _, st := range s.scores {
		out = append(out, scoreInfo(st))
	}
	return out
}

// ConvertImage sends a sheet image to the conversion service and returns
// the resulting MusicXML document.
func (s *Service) ConvertImage(ctx context.Context, filename string, data []byte) ([]byte, error) {
	if s.converter == nil {
		return nil, convert.ErrNotConfigured
	}
	return s.converter.Convert(ctx, filename, data)
}

// CreateSession builds a session over a loaded score.
func (s *Service) CreateSession(ctx context.Context, scoreID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	st, ok := s.scores[scoreID]
	if !ok {
		return nil, ErrScoreNotFound
	}
	if len(st.beats) == 0 {
		return nil, ErrScoreEmpty
	}

	lesson := model.Lesson{
		UID:    scoreID,
		ID:     scoreID,
		Title:  st.score.Title,
		Source: st.score.Source,
	}
	cfg := sessionConfig{
		countInBeats:   s.countInBeats,
		coalesceWindow: s.coalesceWindow,
		maxMistakes:    s.maxMistakes,
		restPenalty:    s.restPenalty,
		matchWindowMS:  s.matchWindowMS,
		flashDuration:  s.flashDuration,
	}
	sess := newSession(lesson, st.beats, cfg, s.enqueueSummary, s.logger.Named("session"))
	s.sessions[sess.ID()] = sess
	metrics.UpdateActiveSessions(len(s.sessions))

	// The hardware port follows the newest session.
	if s.midiPort != "" {
		if s.midiStop != nil {
			s.midiStop()
			s.midiStop = nil
		}
		stop, err := sess.MIDI().Listen(s.midiPort)
		if err != nil {
			s.logger.Warn(ctx, "midi port unavailable",
				logger.String("port", s.midiPort),
				logger.Error(err),
			)
		} else {
			s.midiStop = stop
		}
	}

	s.logger.Info(ctx, "session created",
		logger.String("sessionID", sess.ID()),
		logger.String("scoreID", scoreID),
	)
	return sess, nil
}

// GetSession returns a live session by id.
func (s *Service) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// CloseSession stops a session and removes it from the live set.
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		metrics.UpdateActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Stop()
	return nil
}

// OpenSession creates a session over a loaded score and returns its
// initial snapshot.
func (s *Service) OpenSession(ctx context.Context, scoreID string) (types.SessionSnapshot, error) {
	sess, err := s.CreateSession(ctx, scoreID)
	if err != nil {
		return types.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// PlaySession starts a playback attempt on a live session.
func (s *Service) PlaySession(ctx context.Context, id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	return sess.Play(ctx)
}

// PauseSession freezes a playing session.
func (s *Service) PauseSession(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if !sess.Pause() {
		return ErrInvalidTransition
	}
	return nil
}

// ResumeSession continues a paused session.
func (s *Service) ResumeSession(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if !sess.Resume() {
		return ErrInvalidTransition
	}
	return nil
}

// SeekSession moves a session's cursor to the given beat.
func (s *Service) SeekSession(id string, beat int) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	sess.Seek(beat)
	return nil
}

// StopSession ends a session's running attempt early.
func (s *Service) StopSession(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	sess.Stop()
	return nil
}

// SessionInput feeds one note-on event into a session.
func (s *Service) SessionInput(id string, pitch, velocity uint8) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	sess.Press(pitch, velocity)
	return nil
}

// SessionKeyInput feeds one computer-keyboard event into a session.
func (s *Service) SessionKeyInput(id, key string, down bool, octaveShift int) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	sess.PressKey(key, down, octaveShift)
	return nil
}

// SessionSnapshot returns the poll view of a live session.
func (s *Service) SessionSnapshot(id string) (types.SessionSnapshot, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return types.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// enqueueSummary hands a finished attempt to the persistence pipeline.
func (s *Service) enqueueSummary(summary model.SessionSummary) {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return
	}
	if !q.Enqueue(context.Background(), summary) {
		s.logger.Warn(context.Background(), "summary dropped, queue unavailable",
			logger.String("sessionID", summary.ID),
		)
	}
}

// SessionResult returns a session's summary: the last finished attempt of a
// live session, or the persisted record once the session is closed.
func (s *Service) SessionResult(ctx context.Context, id string) (model.SessionSummary, error) {
	if sess, err := s.GetSession(id); err == nil {
		if summary, ok := sess.Result(); ok {
			return summary, nil
		}
		return model.SessionSummary{}, repository.ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// LessonHistory returns the persisted summaries for one lesson, most
// recent last.
func (s *Service) LessonHistory(ctx context.Context, lessonUID string) ([]model.SessionSummary, error) {
	return s.store.History(ctx, lessonUID)
}

// LessonStats returns the aggregate performance for one lesson.
func (s *Service) LessonStats(ctx context.Context, lessonUID string) (repository.Aggregate, error) {
	return s.store.Aggregate(ctx, lessonUID)
}

// Activity returns practice activity bucketed by day, week, or month.
func (s *Service) Activity(ctx context.Context, bucket repository.Bucket) ([]repository.ActivityPoint, error) {
	return s.store.Activity(ctx, bucket)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"scores":      len(s.scores),
		"sessions":    len(s.sessions),
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["storedSessions"] = s.store.Count(ctx)
	}
	return stats
}

func scoreInfo(st *storedScore) types.ScoreInfo {
	return types.ScoreInfo{
		ID:       st.id,
		Title:    st.score.Title,
		Source:   st.score.Source,
		Measures: len(st.score.Measures),
		Beats:    len(st.beats),
	}
}
