package service

import (
	"sync"

	"github.com/etudekit/etude/internal/adapters/feedback"
)

// StyleBoard is an in-process renderer target. It records the styles the
// feedback adapter applies so API clients can poll the current highlight
// state alongside the score snapshot.
type StyleBoard struct {
	mu     sync.Mutex
	styles map[string]string
}

// NewStyleBoard creates an empty board.
func NewStyleBoard() *StyleBoard {
	return &StyleBoard{styles: make(map[string]string)}
}

// SetStyle records a style for an element.
func (b *StyleBoard) SetStyle(elementID string, style feedback.Style) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.styles[elementID] = string(style)
}

// ClearStyle removes an element's style. Unknown ids are ignored.
func (b *StyleBoard) ClearStyle(elementID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.styles, elementID)
}

// Snapshot returns a copy of the current element styles.
func (b *StyleBoard) Snapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.styles))
	for id, style := range b.styles {
		out[id] = style
	}
	return out
}
