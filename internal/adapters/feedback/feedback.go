// Package feedback maps scoring outcomes to renderer highlight primitives.
// The renderer itself is an external collaborator; this adapter only decides
// which elements get which style and guarantees transient styles come back
// off again.
package feedback

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Style is a renderer-facing highlight class.
type Style string

// Highlight styles.
const (
	StyleCorrect   Style = "correct"
	StyleIncorrect Style = "incorrect"
	StyleCursor    Style = "cursor"
)

// Default adapter constants.
const (
	defaultFlashDuration = 350 * time.Millisecond
)

// Renderer is the minimal surface the adapter needs from the score
// renderer. Implementations must tolerate unknown element ids.
type Renderer interface {
	SetStyle(elementID string, style Style)
	ClearStyle(elementID string)
}

// Adapter applies transient and persistent highlights. Transient marks are
// removed after the flash duration even when re-highlighted in between: the
// clear is debounced per element, so it always fires one flash-length after
// the last request and no highlight can stick.
type Adapter struct {
	mu       sync.Mutex
	renderer Renderer
	flash    time.Duration

	transient map[string]func(func()) // element id -> debounced clear
	persist   map[string]Style
	cursor    string // element currently carrying the cursor mark
}

// Option applies a configuration option to the Adapter.
type Option func(*Adapter)

// WithFlashDuration sets how long a transient highlight stays visible.
func WithFlashDuration(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.flash = d
		}
	}
}

// New creates an adapter over the given renderer.
func New(r Renderer, opts ...Option) *Adapter {
	a := &Adapter{
		renderer:  r,
		flash:     defaultFlashDuration,
		transient: make(map[string]func(func())),
		persist:   make(map[string]Style),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Flash applies a transient style to the elements and schedules its
// removal. Re-flashing an element before the clear fires restarts its
// countdown instead of leaking a second timer.
func (a *Adapter) Flash(elementIDs []string, style Style) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range elementIDs {
		a.renderer.SetStyle(id, style)
		scheduleClear, ok := a.transient[id]
		if !ok {
			scheduleClear = debounce.New(a.flash)
			a.transient[id] = scheduleClear
		}
		id := id
		scheduleClear(func() { a.clearTransient(id) })
	}
}

func (a *Adapter) clearTransient(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.transient, id)
	if style, ok := a.persist[id]; ok {
		// persistent mark survives the transient flash
		a.renderer.SetStyle(id, style)
		return
	}
	a.renderer.ClearStyle(id)
}

// Cursor moves the exclusive playback cursor mark to the element, clearing
// it from wherever it was. An empty id just removes the cursor.
func (a *Adapter) Cursor(elementID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cursor != "" && a.cursor != elementID {
		if style, ok := a.persist[a.cursor]; ok {
			a.renderer.SetStyle(a.cursor, style)
		} else {
			a.renderer.ClearStyle(a.cursor)
		}
	}
	a.cursor = elementID
	if elementID != "" {
		a.renderer.SetStyle(elementID, StyleCursor)
	}
}

// Mark applies a persistent style that stays until ClearAll, used for the
// end-of-session review coloring.
func (a *Adapter) Mark(elementIDs []string, style Style) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range elementIDs {
		a.persist[id] = style
		a.renderer.SetStyle(id, style)
	}
}

// ClearAll removes every highlight, transient or persistent. Idempotent and
// safe when nothing is highlighted.
func (a *Adapter) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.transient {
		a.renderer.ClearStyle(id)
	}
	for id := range a.persist {
		a.renderer.ClearStyle(id)
	}
	if a.cursor != "" {
		a.renderer.ClearStyle(a.cursor)
		a.cursor = ""
	}
	a.transient = make(map[string]func(func()))
	a.persist = make(map[string]Style)
}
