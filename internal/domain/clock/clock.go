// Package clock drives the playback cursor through the beat sequence on a
// wall-clock schedule. It owns the cursor exclusively: every index mutation
// happens here, and every pending timer is cancelled before a state change
// so no stale tick can fire after a pause, seek, or stop.
package clock

import (
	"math"
	"sync"
	"time"
)

// State is the playback state machine position.
type State int

// Playback states.
const (
	Idle State = iota
	CountingIn
	Playing
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountingIn:
		return "counting_in"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Default clock configuration constants.
const (
	defaultCountInBeats = 3
	defaultCountInMs    = 500.0
	minDelayMs          = 1.0
)

// Beat is the minimal view of a checkpoint the clock needs.
type Beat struct {
	Index      int
	DurationMs float64
}

// Callbacks receive clock events. All callbacks are invoked without the
// clock lock held, on the timer goroutine; nil callbacks are skipped.
type Callbacks struct {
	// OnCountIn fires once per count-in tick with beats remaining (n..1).
	OnCountIn func(remaining int)
	// OnBeat fires when a beat's scoring window opens, including beat 0.
	OnBeat func(index int)
	// OnComplete fires after the cursor passes the last beat.
	OnComplete func()
}

// Clock is the tempo-locked playback cursor. Construct per session.
type Clock struct {
	mu        sync.Mutex
	beats     []Beat
	state     State
	index     int
	seeked    bool
	countIn   int
	countInMs float64
	remaining int // count-in ticks left
	timer     *time.Timer
	gen       uint64 // timer generation; a fired timer with a stale gen is a no-op
	cbs       Callbacks
}

// Option applies a configuration option to the Clock.
type Option func(*Clock)

// WithCountIn sets the number of count-in beats before playback.
func WithCountIn(beats int) Option {
	return func(c *Clock) {
		if beats >= 0 {
			c.countIn = beats
		}
	}
}

// WithCountInInterval sets the count-in tick interval in milliseconds.
func WithCountInInterval(ms float64) Option {
	return func(c *Clock) {
		if ms > 0 {
			c.countInMs = ms
		}
	}
}

// New creates a clock over the given beat sequence.
func New(beats []Beat, cbs Callbacks, opts ...Option) *Clock {
	c := &Clock{
		beats:     beats,
		state:     Idle,
		countIn:   defaultCountInBeats,
		countInMs: defaultCountInMs,
		cbs:       cbs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current playback state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentIndex returns the cursor position.
func (c *Clock) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Start begins a playback attempt: Idle/Stopped -> CountingIn. The cursor
// resets to 0 unless a prior Seek positioned it. Starting from any other
// state is a no-op.
func (c *Clock) Start() bool {
	c.mu.Lock()
	if c.state != Idle && c.state != Stopped {
		c.mu.Unlock()
		return false
	}
	if len(c.beats) == 0 {
		c.mu.Unlock()
		return false
	}
	if !c.seeked {
		c.index = 0
	}
	c.seeked = false
	c.cancelTimerLocked()
	if c.countIn == 0 {
		index := c.beginPlayingLocked()
		c.mu.Unlock()
		c.notifyBeat(index)
		return true
	}
	c.state = CountingIn
	c.remaining = c.countIn
	gen := c.gen
	c.timer = time.AfterFunc(clampDelay(c.countInMs), func() { c.countInTick(gen) })
	c.mu.Unlock()
	return true
}

func (c *Clock) countInTick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != CountingIn {
		c.mu.Unlock()
		return
	}
	remaining := c.remaining
	c.remaining--
	if c.remaining > 0 {
		c.timer = time.AfterFunc(clampDelay(c.countInMs), func() { c.countInTick(gen) })
		c.mu.Unlock()
		c.notifyCountIn(remaining)
		return
	}
	index := c.beginPlayingLocked()
	c.mu.Unlock()
	c.notifyCountIn(remaining)
	c.notifyBeat(index)
}

// beginPlayingLocked opens the first beat window and arms the tick timer.
// Must be called with c.mu held; returns the index to announce.
func (c *Clock) beginPlayingLocked() int {
	if c.index >= len(c.beats) {
		c.index = 0
	}
	c.state = Playing
	c.cancelTimerLocked()
	gen := c.gen
	beat := c.beats[c.index]
	c.timer = time.AfterFunc(clampDelay(beat.DurationMs), func() { c.tick(gen) })
	return c.index
}

// tick advances the cursor by exactly one beat and re-arms, atomically with
// respect to Pause/Seek/Stop: any of those bumps the generation first, so a
// tick racing a state change loses.
func (c *Clock) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Playing {
		c.mu.Unlock()
		return
	}
	c.index++
	if c.index >= len(c.beats) {
		c.state = Stopped
		c.cancelTimerLocked()
		c.mu.Unlock()
		c.notifyComplete()
		return
	}
	beat := c.beats[c.index]
	c.timer = time.AfterFunc(clampDelay(beat.DurationMs), func() { c.tick(gen) })
	index := c.index
	c.mu.Unlock()
	c.notifyBeat(index)
}

// Pause suspends playback without moving the cursor: Playing -> Paused.
func (c *Clock) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing {
		return false
	}
	c.cancelTimerLocked()
	c.state = Paused
	return true
}

// Resume re-arms the timer for the current beat: Paused -> Playing. The
// beat window stays the one opened before the pause, so the beat is not
// announced a second time.
func (c *Clock) Resume() bool {
	c.mu.Lock()
	if c.state != Paused {
		c.mu.Unlock()
		return false
	}
	c.cancelTimerLocked()
	gen := c.gen
	beat := c.beats[c.index]
	c.state = Playing
	c.timer = time.AfterFunc(clampDelay(beat.DurationMs), func() { c.tick(gen) })
	c.mu.Unlock()
	return true
}

// Seek repositions the cursor and stops playback from any state. The caller
// must Start again; the next Start plays from the seek target.
func (c *Clock) Seek(target int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()
	if target < 0 {
		target = 0
	}
	if last := len(c.beats) - 1; target > last && last >= 0 {
		target = last
	}
	c.index = target
	c.seeked = true
	c.state = Stopped
}

// Stop halts playback from any state and cancels all pending timers. The
// cursor keeps its position; ledger and counters belong to the engine.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()
	c.state = Stopped
}

// cancelTimerLocked invalidates any pending timer. Must be called with
// c.mu held.
func (c *Clock) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Clock) notifyBeat(index int) {
	if c.cbs.OnBeat != nil {
		c.cbs.OnBeat(index)
	}
}

func (c *Clock) notifyCountIn(remaining int) {
	if c.cbs.OnCountIn != nil {
		c.cbs.OnCountIn(remaining)
	}
}

func (c *Clock) notifyComplete() {
	if c.cbs.OnComplete != nil {
		c.cbs.OnComplete()
	}
}

// clampDelay converts a millisecond delay to a duration safe to hand to the
// timer API: non-finite or sub-minimum values collapse to the minimum.
func clampDelay(ms float64) time.Duration {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < minDelayMs {
		ms = minDelayMs
	}
	return time.Duration(ms * float64(time.Millisecond))
}
