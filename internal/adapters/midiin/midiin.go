// Package midiin normalizes hardware MIDI messages and computer-keyboard
// presses into one pitch-event stream for the chord aggregator.
package midiin

import (
	"sync"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"

	"github.com/etudekit/etude/internal/domain/model"
)

// MIDI channel-voice message layout.
const (
	statusNoteOn  = 0x9
	statusNoteOff = 0x8
	maxPitch      = 127
)

// Handler receives normalized press events.
type Handler func(p model.PressedNote)

// Adapter folds both input sources into a single press stream. Held keys
// are tracked so auto-repeat and duplicate note-ons are dropped, and an
// echo guard suppresses the adapter's own reference-audio playback from
// re-entering as learner input.
type Adapter struct {
	mu        sync.Mutex
	down      [maxPitch + 1]bool
	echoDepth atomic.Int32

	onPressed  Handler
	onReleased func(pitch uint8)
}

// Option applies a configuration option to the Adapter.
type Option func(*Adapter)

// WithReleaseHandler sets the note-off callback.
func WithReleaseHandler(fn func(pitch uint8)) Option {
	return func(a *Adapter) {
		a.onReleased = fn
	}
}

// New creates an adapter delivering presses to onPressed.
func New(onPressed Handler, opts ...Option) *Adapter {
	a := &Adapter{onPressed: onPressed}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleMessage ingests a parsed MIDI message, in the shape gomidi's
// ListenTo delivers. Note On with velocity zero is treated as Note Off.
func (a *Adapter) HandleMessage(msg midi.Message, timestampMs float64) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		a.press(key, vel, timestampMs)
	case msg.GetNoteEnd(&ch, &key):
		a.release(key)
	default:
		// other channel-voice traffic is not input
	}
}

// HandleRaw ingests a raw 3-byte channel-voice message. Malformed payloads
// are dropped silently; input anomalies must never halt a session.
func (a *Adapter) HandleRaw(b []byte, timestampMs float64) {
	if len(b) < 3 {
		return
	}
	status := b[0] >> 4
	key, vel := b[1], b[2]
	if key > maxPitch || vel > maxPitch {
		return
	}
	switch {
	case status == statusNoteOn && vel > 0:
		a.press(key, vel, timestampMs)
	case status == statusNoteOff, status == statusNoteOn && vel == 0:
		a.release(key)
	}
}

func (a *Adapter) press(pitch, velocity uint8, timestampMs float64) {
	if a.echoDepth.Load() > 0 {
		return
	}
	a.mu.Lock()
	if a.down[pitch] {
		// held key or auto-repeat; a re-trigger needs a note-off first
		a.mu.Unlock()
		return
	}
	a.down[pitch] = true
	a.mu.Unlock()

	if a.onPressed != nil {
		a.onPressed(model.PressedNote{Pitch: pitch, Velocity: velocity, TimestampMs: timestampMs})
	}
}

func (a *Adapter) release(pitch uint8) {
	a.mu.Lock()
	wasDown := a.down[pitch]
	a.down[pitch] = false
	a.mu.Unlock()

	if wasDown && a.onReleased != nil {
		a.onReleased(pitch)
	}
}

// BeginEcho marks the start of self-generated MIDI playback; incoming
// presses are suppressed until the matching EndEcho. Nests safely.
func (a *Adapter) BeginEcho() {
	a.echoDepth.Add(1)
}

// EndEcho closes the innermost echo region.
func (a *Adapter) EndEcho() {
	if a.echoDepth.Add(-1) < 0 {
		a.echoDepth.Store(0)
	}
}

// IsDown reports whether the pitch is currently held.
func (a *Adapter) IsDown(pitch uint8) bool {
	if pitch > maxPitch {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.down[pitch]
}
