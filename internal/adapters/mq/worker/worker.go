// Package worker drains the summary queue into the session store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/etudekit/etude/internal/adapters/mq/queue"
	"github.com/etudekit/etude/internal/adapters/repository"
	"github.com/etudekit/etude/pkg/logger"
	"github.com/etudekit/etude/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 2
	workerShutdownTimeout = 5 * time.Second
)

// Source defines how workers receive summaries.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Summary
}

// Worker persists finished session summaries.
type Worker struct {
	source Source
	store  repository.Store
	name   string

	done chan struct{}
	log  logger.Logger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// New creates a persistence worker.
func New(source Source, store repository.Store, opts ...Option) *Worker {
	w := &Worker{
		source: source,
		store:  store,
		name:   "persist",
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the queue until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	if w.log == nil {
		w.log = logger.Named(w.name)
	}
	in := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			if err := w.persist(ctx, s); err != nil {
				w.log.Error(ctx, "failed to persist session summary",
					logger.String("sessionID", s.ID),
					logger.Error(err),
				)
			}
		}
	}
}

func (w *Worker) persist(ctx context.Context, s queue.Summary) error {
	start := time.Now()
	err := w.store.Save(ctx, s)
	metrics.RecordPersistLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordPersistError()
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	metrics.RecordSessionPersisted()
	return nil
}

// Pool manages a fixed set of persistence workers.
type Pool struct {
	workers []*Worker
	log     logger.Logger
}

// NewPool creates count workers over the same source and store.
func NewPool(count int, source Source, store repository.Store) *Pool {
	if count < 1 {
		count = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*Worker, count),
	}
	for i := range p.workers {
		p.workers[i] = New(source, store, WithName("persist-"+strconv.Itoa(i)))
	}
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop waits for every worker to finish, bounded per worker. The queue must
// be closed first so Run loops can drain and exit.
func (p *Pool) Stop() {
	if p.log == nil {
		p.log = logger.Named("worker-pool")
	}
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
			p.log.Warn(context.Background(), "worker shutdown timed out", logger.Int("worker", i))
		}
	}
}
