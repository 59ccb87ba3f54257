// Package match is the note-matching and scoring engine. It reconciles
// aggregated input chords against the beat the clock currently exposes,
// keeps the running counters and the mistake ledger, and enforces the
// mistake-ceiling abort policy.
package match

import (
	"sync"

	"github.com/etudekit/etude/internal/domain/model"
)

// Default engine configuration constants.
const (
	defaultMaxMistakes = 3
)

// Outcome is the result of one evaluation, consumed by the feedback layer.
type Outcome struct {
	Evaluated bool // false when the input was ignored (no window or already scored)
	Scored    bool // true when this evaluation spent the beat's one scoring decision
	Matched   bool
	BeatIndex int
	Pitches   []uint8 // the played pitches the outcome refers to
	Rest      bool    // set for a tolerated rest press: sounded, never scored
	Aborted   bool    // true when this evaluation tripped the mistake ceiling
}

// Engine scores one playback attempt. Construct per session; Reset starts a
// fresh attempt over the same beats. Counters and the ledger are mutated
// only here; other components read snapshots.
type Engine struct {
	mu sync.Mutex

	beats  []model.Beat
	state  model.ScoreState
	ledger []model.MistakeRecord
	scored map[int]bool // beat index -> already received its one scoring decision

	current  int // index of the open beat window, -1 before the first
	openedAt float64
	aborted  bool

	maxMistakes int
	restPenalty bool
	matchWindow float64 // ms around the window-open time; 0 = unbounded

	onAbort func()
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithMaxMistakes sets the mistake ceiling that triggers the abort.
func WithMaxMistakes(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxMistakes = n
		}
	}
}

// WithRestPenalty scores a press during a rest as a mistake. The default
// policy tolerates presses during rests.
func WithRestPenalty(on bool) Option {
	return func(e *Engine) {
		e.restPenalty = on
	}
}

// WithMatchWindow bounds how far (in ms) from the beat window opening a
// press may land and still be scored. Presses outside the window count as
// mistimed mismatches. Zero leaves the whole beat window open.
func WithMatchWindow(ms float64) Option {
	return func(e *Engine) {
		if ms >= 0 {
			e.matchWindow = ms
		}
	}
}

// WithAbortSignal sets the callback fired once when the ceiling is reached.
// It is invoked without the engine lock held.
func WithAbortSignal(fn func()) Option {
	return func(e *Engine) {
		e.onAbort = fn
	}
}

// New creates an engine over the beat sequence of the loaded score.
func New(beats []model.Beat, opts ...Option) *Engine {
	e := &Engine{
		beats:       beats,
		scored:      make(map[int]bool),
		current:     -1,
		maxMistakes: defaultMaxMistakes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset clears all counters, the ledger, and per-beat guards for a new
// playback attempt. Called on every Start.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = model.ScoreState{}
	e.ledger = nil
	e.scored = make(map[int]bool)
	e.current = -1
	e.aborted = false
}

// BeginBeat opens the scoring window for the beat at index, counting it as
// visited. Rest beats are credited immediately: silence is the expected
// input and nothing the learner can play improves on it. After an abort the
// call is a no-op so the visited count stops increasing.
func (e *Engine) BeginBeat(index int, nowMs float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aborted || index < 0 || index >= len(e.beats) {
		return
	}
	e.current = index
	e.openedAt = nowMs
	e.state.TotalSteps++
	if e.beats[index].IsRest() {
		e.state.CorrectSteps++
	}
}

// Evaluate reconciles a chord against the currently open beat window.
// At most one scoring decision is made per beat, no matter how many chords
// arrive inside its window; later chords are ignored. Malformed input
// (out-of-range pitches) is treated as a mismatch, never an error.
func (e *Engine) Evaluate(c model.Chord) Outcome {
	e.mu.Lock()

	if e.aborted || e.current < 0 || e.current >= len(e.beats) || len(c.Pitches) == 0 {
		e.mu.Unlock()
		return Outcome{}
	}
	if e.scored[e.current] {
		e.mu.Unlock()
		return Outcome{BeatIndex: e.current}
	}

	beat := e.beats[e.current]
	out := Outcome{
		Evaluated: true,
		BeatIndex: e.current,
		Pitches:   c.Pitches,
		Rest:      beat.IsRest(),
	}

	if beat.IsRest() && !e.restPenalty {
		// explicit policy: a press during a rest is not an error
		e.mu.Unlock()
		return out
	}

	matched := !beat.IsRest() && e.inWindowLocked(c.FirstTimestampMs) && allExpected(beat, c.Pitches)
	out.Matched = matched
	out.Scored = true
	e.scored[e.current] = true

	if matched {
		e.state.CorrectSteps++
		e.mu.Unlock()
		return out
	}

	if beat.IsRest() {
		// revoke the credit the beat received when its window opened: one
		// scoring decision per beat, and it just became a mistake
		e.state.CorrectSteps--
	}
	e.state.MistakeCount++
	e.ledger = append(e.ledger, model.MistakeRecord{
		BeatIndex:       beat.Index,
		TimestampMs:     c.FirstTimestampMs,
		ExpectedPitches: append([]uint8(nil), beat.ExpectedPitches...),
		PlayedPitch:     firstUnexpected(beat, c.Pitches),
		Measure:         beat.MeasureNumber,
		BeatInMeasure:   beat.BeatInMeasure,
	})

	var abort func()
	if e.state.MistakeCount >= e.maxMistakes {
		e.aborted = true
		out.Aborted = true
		abort = e.onAbort
	}
	e.mu.Unlock()
	if abort != nil {
		abort()
	}
	return out
}

// inWindowLocked reports whether a press timestamp falls inside the
// configured tolerance around the window opening. Must hold e.mu.
func (e *Engine) inWindowLocked(tsMs float64) bool {
	if e.matchWindow <= 0 {
		return true
	}
	delta := tsMs - e.openedAt
	if delta < 0 {
		delta = -delta
	}
	return delta <= e.matchWindow
}

// allExpected reports whether every played pitch belongs to the beat's
// expected set. Exact pitch equality; no octave folding.
func allExpected(beat model.Beat, played []uint8) bool {
	for _, p := range played {
		if !beat.Expects(p) {
			return false
		}
	}
	return true
}

// firstUnexpected picks the offending pitch for the ledger; when every
// played pitch was expected (a mistimed but right-note press) it reports
// the first played pitch.
func firstUnexpected(beat model.Beat, played []uint8) uint8 {
	for _, p := range played {
		if !beat.Expects(p) {
			return p
		}
	}
	if len(played) > 0 {
		return played[0]
	}
	return 0
}

// State returns a snapshot of the running counters.
func (e *Engine) State() model.ScoreState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ledger returns a copy of the mistake ledger in arrival order.
func (e *Engine) Ledger() []model.MistakeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.MistakeRecord(nil), e.ledger...)
}

// Aborted reports whether the mistake ceiling ended this attempt.
func (e *Engine) Aborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}
