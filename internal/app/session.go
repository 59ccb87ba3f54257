package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/etudekit/etude/internal/adapters/feedback"
	"github.com/etudekit/etude/internal/adapters/midiin"
	"github.com/etudekit/etude/internal/domain/chord"
	"github.com/etudekit/etude/internal/domain/clock"
	"github.com/etudekit/etude/internal/domain/match"
	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/internal/domain/types"
	"github.com/etudekit/etude/pkg/logger"
	"github.com/etudekit/etude/pkg/metrics"
)

// Session is one live practice session over a loaded score. It owns the
// tempo clock, the chord aggregator, the scoring engine, and the feedback
// adapter, and wires their callbacks together. A session survives multiple
// playback attempts; each Play starts a fresh attempt.
type Session struct {
	id     string
	lesson model.Lesson
	beats  []model.Beat

	clk   *clock.Clock
	eng   *match.Engine
	agg   *chord.Aggregator
	fb    *feedback.Adapter
	board *StyleBoard
	input *midiin.Adapter

	epoch time.Time // base for monotonic input timestamps

	mu           sync.Mutex
	attempts     int
	attemptStart time.Time
	startedAt    time.Time
	finalized    bool
	lastSummary  *model.SessionSummary

	sink func(model.SessionSummary)
	log  logger.Logger
}

// sessionConfig carries the per-session tuning the service resolved from
// its own options.
type sessionConfig struct {
	countInBeats   int
	coalesceWindow time.Duration
	maxMistakes    int
	restPenalty    bool
	matchWindowMS  float64
	flashDuration  time.Duration
}

// newSession wires a session over the given beat sequence. The sink
// receives the summary of every finished attempt.
func newSession(lesson model.Lesson, beats []model.Beat, cfg sessionConfig, sink func(model.SessionSummary), log logger.Logger) *Session {
	s := &Session{
		id:        uuid.NewString(),
		lesson:    lesson,
		beats:     beats,
		board:     NewStyleBoard(),
		epoch:     time.Now(),
		startedAt: time.Now(),
		sink:      sink,
		log:       log,
	}

	s.fb = feedback.New(s.board, feedback.WithFlashDuration(cfg.flashDuration))

	s.eng = match.New(beats,
		match.WithMaxMistakes(cfg.maxMistakes),
		match.WithRestPenalty(cfg.restPenalty),
		match.WithMatchWindow(cfg.matchWindowMS),
		match.WithAbortSignal(s.onAbort),
	)

	clockBeats := make([]clock.Beat, len(beats))
	for i, b := range beats {
		clockBeats[i] = clock.Beat{Index: b.Index, DurationMs: b.DurationMs}
	}
	s.clk = clock.New(clockBeats, clock.Callbacks{
		OnCountIn: s.onCountIn,
		OnBeat:    s.onBeat,
		OnComplete: func() {
			s.finalize(false)
		},
	}, clock.WithCountIn(cfg.countInBeats))

	s.agg = chord.New(s.onChord,
		chord.WithWindow(cfg.coalesceWindow),
		chord.WithActiveGate(func() bool {
			return s.clk.State() == clock.Playing
		}),
	)

	s.input = midiin.New(func(p model.PressedNote) {
		s.agg.Press(p)
	})

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Lesson returns the piece this session practices.
func (s *Session) Lesson() model.Lesson {
	return s.lesson
}

// MIDI exposes the input adapter so a hardware port can be attached.
func (s *Session) MIDI() *midiin.Adapter {
	return s.input
}

// Play starts a new playback attempt from the current cursor position,
// preceded by the count-in. It is a no-op while an attempt is running.
func (s *Session) Play(ctx context.Context) error {
	st := s.clk.State()
	if st == clock.CountingIn || st == clock.Playing || st == clock.Paused {
		return fmt.Errorf("%w: session is %s", ErrSessionBusy, st)
	}

	s.mu.Lock()
	s.attempts++
	s.attemptStart = time.Now()
	s.finalized = false
	s.mu.Unlock()

	s.eng.Reset()
	s.agg.Discard()
	s.fb.ClearAll()

	if !s.clk.Start() {
		return ErrSessionBusy
	}
	metrics.RecordSessionStarted()
	s.log.Info(ctx, "attempt started",
		logger.String("session", s.id),
		logger.String("lesson", s.lesson.ID),
		logger.Int("beats", len(s.beats)),
	)
	return nil
}

// Pause freezes the cursor. Pending input in the aggregation window is
// discarded so it cannot score against a frozen beat.
func (s *Session) Pause() bool {
	if !s.clk.Pause() {
		return false
	}
	s.agg.Discard()
	return true
}

// Resume continues a paused attempt on the beat it stopped at.
func (s *Session) Resume() bool {
	return s.clk.Resume()
}

// Seek moves the cursor to the given beat. The running attempt, if any, is
// abandoned without a summary; the next Play counts from the new position.
func (s *Session) Seek(index int) {
	s.clk.Seek(index)
	s.agg.Discard()
	s.mu.Lock()
	s.finalized = true // seek abandons the attempt silently
	s.mu.Unlock()
	s.fb.ClearAll()
	if index >= 0 && index < len(s.beats) {
		s.fb.Cursor(beatElement(s.beats[index]))
	}
}

// Stop ends the running attempt early and records it as aborted.
func (s *Session) Stop() {
	st := s.clk.State()
	s.clk.Stop()
	s.agg.Discard()
	if st == clock.CountingIn || st == clock.Playing || st == clock.Paused {
		s.finalize(true)
	}
}

// Press feeds one note-on event into the session.
func (s *Session) Press(pitch, velocity uint8) {
	s.agg.Press(model.PressedNote{
		Pitch:       pitch,
		Velocity:    velocity,
		TimestampMs: s.nowMs(),
	})
}

// PressKey feeds one computer-keyboard event through the key map.
func (s *Session) PressKey(key string, down bool, octaveShift int) {
	s.input.HandleKey(key, down, octaveShift, s.nowMs())
}

// Snapshot returns the current play state, counters, and highlight styles.
func (s *Session) Snapshot() types.SessionSnapshot {
	s.mu.Lock()
	attempts := s.attempts
	s.mu.Unlock()

	state := s.eng.State()
	return types.SessionSnapshot{
		ID:         s.id,
		ScoreID:    s.lesson.UID,
		State:      s.clk.State().String(),
		BeatIndex:  s.clk.CurrentIndex(),
		TotalBeats: len(s.beats),
		Attempts:   attempts,
		Score:      state,
		Percent:    state.Percent(),
		Aborted:    s.eng.Aborted(),
		Styles:     s.board.Snapshot(),
	}
}

// Result returns the summary of the last finished attempt, if any.
func (s *Session) Result() (model.SessionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSummary == nil {
		return model.SessionSummary{}, false
	}
	return *s.lastSummary, true
}

// Ledger returns the mistake records of the current attempt.
func (s *Session) Ledger() []model.MistakeRecord {
	return s.eng.Ledger()
}

func (s *Session) nowMs() float64 {
	return float64(time.Since(s.epoch).Microseconds()) / 1000.0
}

func (s *Session) onCountIn(remaining int) {
	s.log.Debug(context.Background(), "count-in tick",
		logger.String("session", s.id),
		logger.Int("remaining", remaining),
	)
}

func (s *Session) onBeat(index int) {
	// Close out any presses still sitting in the previous beat's window
	// before the new beat opens.
	s.agg.Flush()
	s.eng.BeginBeat(index, s.nowMs())
	metrics.RecordBeatVisited()
	if index >= 0 && index < len(s.beats) {
		s.fb.Cursor(beatElement(s.beats[index]))
	}
}

func (s *Session) onChord(c model.Chord) {
	metrics.RecordChordCoalesced(len(c.Pitches))
	out := s.eng.Evaluate(c)
	if !out.Evaluated {
		return
	}
	elems := beatNoteElements(s.beats, out.BeatIndex)
	if out.Matched {
		metrics.RecordNoteMatched()
		s.fb.Flash(elems, feedback.StyleCorrect)
		return
	}
	if !out.Scored {
		// tolerated press during a rest: sounded, but no scoring decision
		// was made, so nothing gets styled as a mistake
		return
	}
	metrics.RecordNoteMissed()
	s.fb.Flash(elems, feedback.StyleIncorrect)
	s.fb.Mark(elems, feedback.StyleIncorrect)
}

// onAbort runs when the mistake ceiling is reached. The engine invokes it
// without holding its lock, so stopping the clock here cannot deadlock.
func (s *Session) onAbort() {
	s.clk.Stop()
	s.agg.Discard()
	s.finalize(true)
}

// finalize builds and emits the attempt summary exactly once per attempt.
func (s *Session) finalize(aborted bool) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	attempts := s.attempts
	started := s.attemptStart
	s.mu.Unlock()

	state := s.eng.State()
	ended := time.Now()
	summary := model.SessionSummary{
		ID:          s.id,
		StartedAt:   started,
		EndedAt:     ended,
		DurationSec: int(ended.Sub(started).Round(time.Second).Seconds()),
		Lesson:      s.lesson,
		Performance: model.Performance{
			Attempts: attempts,
			Score:    state.Percent(),
		},
		Aborted:  aborted,
		Mistakes: s.eng.Ledger(),
	}

	s.mu.Lock()
	s.lastSummary = &summary
	s.mu.Unlock()

	if aborted {
		metrics.RecordSessionAborted()
	} else {
		metrics.RecordSessionCompleted()
	}
	s.log.Info(context.Background(), "attempt finished",
		logger.String("session", s.id),
		logger.Bool("aborted", aborted),
		logger.Int("score", summary.Performance.Score),
		logger.Int("mistakes", state.MistakeCount),
	)
	if s.sink != nil {
		s.sink(summary)
	}
}

// beatElement is the renderer element id carrying the cursor for a beat.
func beatElement(b model.Beat) string {
	return fmt.Sprintf("beat-%d", b.Index)
}

// beatNoteElements lists the note element ids of a beat, falling back to
// the beat element itself for rests.
func beatNoteElements(beats []model.Beat, index int) []string {
	if index < 0 || index >= len(beats) {
		return nil
	}
	b := beats[index]
	if b.IsRest() {
		return []string{beatElement(b)}
	}
	out := make([]string, len(b.ExpectedPitches))
	for i, p := range b.ExpectedPitches {
		out[i] = fmt.Sprintf("beat-%d-note-%d", b.Index, p)
	}
	return out
}
