package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/pkg/metrics"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-process maps. Suitable for tests and
// single-node deployments; the DynamoDB store covers durable setups.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.SessionSummary
	byLesson map[string][]string // lesson uid -> session ids in save order
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.SessionSummary),
		byLesson: make(map[string][]string),
	}
}

// Save persists a finished session summary. Saving the same id twice
// overwrites, which keeps retried queue deliveries harmless.
func (m *MemoryStore) Save(ctx context.Context, s model.SessionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; !exists {
		m.byLesson[s.Lesson.UID] = append(m.byLesson[s.Lesson.UID], s.ID)
	}
	m.sessions[s.ID] = s
	metrics.UpdateStoredSessions(len(m.sessions))
	return nil
}

// Get returns the summary for a session id.
func (m *MemoryStore) Get(ctx context.Context, id string) (model.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.SessionSummary{}, ErrNotFound
	}
	return s, nil
}

// History returns all summaries for a lesson, oldest first.
func (m *MemoryStore) History(ctx context.Context, lessonUID string) ([]model.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byLesson[lessonUID]
	out := make([]model.SessionSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sessions[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.Before(out[j].EndedAt) })
	return out, nil
}

// Aggregate computes attempts and average/high/last score for a lesson.
func (m *MemoryStore) Aggregate(ctx context.Context, lessonUID string) (Aggregate, error) {
	history, err := m.History(ctx, lessonUID)
	if err != nil {
		return Aggregate{}, err
	}
	return aggregateOf(history), nil
}

// Activity buckets stored practice time by day, week, or month.
func (m *MemoryStore) Activity(ctx context.Context, bucket Bucket) ([]ActivityPoint, error) {
	if !ValidBucket(bucket) {
		return nil, ErrInvalidBucket
	}
	m.mu.RLock()
	all := make([]model.SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	return activityOf(all, bucket), nil
}

// Count returns the number of stored sessions.
func (m *MemoryStore) Count(ctx context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
