package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/etudekit/etude/internal/adapters/mq/queue"
	"github.com/etudekit/etude/internal/adapters/mq/worker"
	"github.com/etudekit/etude/internal/adapters/repository"
	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.WithWriter(io.Discard))
	m.Run()
}

// failStore wraps a memory store and fails every Save until unbroken.
type failStore struct {
	*repository.MemoryStore
	mu     sync.Mutex
	broken bool
	fails  int
}

func (f *failStore) Save(ctx context.Context, s model.SessionSummary) error {
	f.mu.Lock()
	broken := f.broken
	if broken {
		f.fails++
	}
	f.mu.Unlock()
	if broken {
		return errors.New("storage offline")
	}
	return f.MemoryStore.Save(ctx, s)
}

func (f *failStore) failCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fails
}

func waitForCount(ctx context.Context, store repository.Store, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Count(ctx) >= want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return store.Count(ctx) >= want
}

func TestWorkerPersists(t *testing.T) {
	ctx := context.Background()

	Convey("Given a worker over a queue and a memory store", t, func() {
		q := queue.NewInMemoryQueue()
		store := repository.NewMemoryStore()
		w := worker.New(q, store, worker.WithName("persist-test"))

		runCtx, cancel := context.WithCancel(ctx)
		go w.Run(runCtx)
		Reset(func() {
			q.Close()
			cancel()
		})

		Convey("When summaries are enqueued", func() {
			for i := 1; i <= 3; i++ {
				So(q.Enqueue(ctx, model.SessionSummary{
					ID:     fmt.Sprintf("session-%d", i),
					Lesson: model.Lesson{UID: "lesson-a"},
				}), ShouldBeTrue)
			}

			Convey("Then they end up in the store", func() {
				So(waitForCount(ctx, store, 3), ShouldBeTrue)
				got, err := store.Get(ctx, "session-2")
				So(err, ShouldBeNil)
				So(got.Lesson.UID, ShouldEqual, "lesson-a")
			})
		})

		Convey("When the store rejects a save", func() {
			fs := &failStore{MemoryStore: repository.NewMemoryStore(), broken: true}
			fq := queue.NewInMemoryQueue()
			fw := worker.New(fq, fs, worker.WithLogger(logger.Get()))
			fwCtx, fwCancel := context.WithCancel(ctx)
			go fw.Run(fwCtx)
			Reset(func() {
				fq.Close()
				fwCancel()
			})

			fq.Enqueue(ctx, model.SessionSummary{ID: "doomed"})
			fq.Enqueue(ctx, model.SessionSummary{ID: "doomed-2"})

			Convey("Then the worker logs and keeps draining", func() {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) && fs.failCount() < 2 {
					time.Sleep(5 * time.Millisecond)
				}
				So(fs.failCount(), ShouldEqual, 2)
				So(fs.Count(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestPoolDrainsAndStops(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue()
		store := repository.NewMemoryStore()
		pool := worker.NewPool(3, q, store)
		pool.Start(ctx)

		Convey("When many summaries are enqueued and the queue closes", func() {
			for i := 0; i < 20; i++ {
				So(q.Enqueue(ctx, model.SessionSummary{ID: fmt.Sprintf("session-%d", i)}), ShouldBeTrue)
			}
			So(waitForCount(ctx, store, 20), ShouldBeTrue)
			q.Close()

			Convey("Then Stop returns once every worker exits", func() {
				done := make(chan struct{})
				go func() {
					pool.Stop()
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					So(false, ShouldBeTrue) // pool did not stop in time
				}
				So(store.Count(ctx), ShouldEqual, 20)
			})
		})
	})
}
