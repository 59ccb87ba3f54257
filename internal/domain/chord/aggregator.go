// Package chord coalesces loosely-timed key presses into chords. A human
// chord is never struck with zero skew; without this buffer each finger-down
// would be scored as a separate wrong single-note check against a multi-note
// checkpoint.
package chord

import (
	"sort"
	"sync"
	"time"

	"github.com/etudekit/etude/internal/domain/model"
)

// Default aggregation constants.
const (
	defaultWindow = 30 * time.Millisecond
)

// Aggregator buffers presses arriving within a coalescing window measured
// from the first press, then emits them as one chord. Construct one per
// playback session; all state is instance-owned.
type Aggregator struct {
	mu     sync.Mutex
	window time.Duration
	buf    []uint8
	first  float64 // timestamp of the first press in the open window
	open   bool
	timer  *time.Timer
	gen    uint64

	emit   func(model.Chord)
	active func() bool                  // gate: forward to scoring only while playback runs
	sound  func(pitch, velocity uint8) // audio feedback, fires regardless of gate
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithWindow sets the coalescing window length.
func WithWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithActiveGate sets the playback-active predicate. When the gate returns
// false, presses still sound but are not forwarded for scoring.
func WithActiveGate(gate func() bool) Option {
	return func(a *Aggregator) {
		if gate != nil {
			a.active = gate
		}
	}
}

// WithSoundSink sets the audio feedback sink for every press.
func WithSoundSink(sink func(pitch, velocity uint8)) Option {
	return func(a *Aggregator) {
		a.sound = sink
	}
}

// New creates an aggregator that delivers chords to emit.
func New(emit func(model.Chord), opts ...Option) *Aggregator {
	a := &Aggregator{
		window: defaultWindow,
		emit:   emit,
		active: func() bool { return true },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Press ingests one raw press. The first press of a window arms the flush
// timer; later presses inside the window join the buffer without re-arming,
// so the window length is measured from the first press.
func (a *Aggregator) Press(p model.PressedNote) {
	if a.sound != nil {
		a.sound(p.Pitch, p.Velocity)
	}
	if !a.active() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		a.open = true
		a.first = p.TimestampMs
		a.buf = append(a.buf[:0], p.Pitch)
		gen := a.gen
		a.timer = time.AfterFunc(a.window, func() { a.flush(gen) })
		return
	}
	a.buf = append(a.buf, p.Pitch)
}

// flush closes the window and emits the buffered pitches as one chord.
func (a *Aggregator) flush(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || !a.open {
		a.mu.Unlock()
		return
	}
	c := a.takeLocked()
	a.mu.Unlock()
	if a.emit != nil && len(c.Pitches) > 0 {
		a.emit(c)
	}
}

// Flush force-closes any open window immediately, cancelling the pending
// timer. Used on session stop so no buffered press leaks into a later run.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	if !a.open {
		a.mu.Unlock()
		return
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	c := a.takeLocked()
	a.mu.Unlock()
	if a.emit != nil && len(c.Pitches) > 0 {
		a.emit(c)
	}
}

// Discard drops any buffered presses without emitting them.
func (a *Aggregator) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.open = false
	a.buf = a.buf[:0]
}

// takeLocked drains the buffer into a chord. Must be called with a.mu held.
func (a *Aggregator) takeLocked() model.Chord {
	a.gen++
	a.open = false
	c := model.Chord{
		Pitches:          Dedupe(a.buf),
		FirstTimestampMs: a.first,
	}
	a.buf = a.buf[:0]
	return c
}

// Dedupe returns a sorted copy of pitches with duplicates removed.
func Dedupe(pitches []uint8) []uint8 {
	out := append([]uint8(nil), pitches...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, p := range out {
		if i == 0 || p != out[n-1] {
			out[n] = p
			n++
		}
	}
	return out[:n]
}
