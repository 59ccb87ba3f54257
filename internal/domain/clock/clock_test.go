package clock_test

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/etudekit/etude/internal/domain/clock"
)

// recorder collects clock events for assertions.
type recorder struct {
	mu       sync.Mutex
	countIns []int
	beats    []int
	complete chan struct{}
}

func newRecorder() *recorder {
	return &recorder{complete: make(chan struct{})}
}

func (r *recorder) callbacks() clock.Callbacks {
	return clock.Callbacks{
		OnCountIn: func(remaining int) {
			r.mu.Lock()
			r.countIns = append(r.countIns, remaining)
			r.mu.Unlock()
		},
		OnBeat: func(index int) {
			r.mu.Lock()
			r.beats = append(r.beats, index)
			r.mu.Unlock()
		},
		OnComplete: func() { close(r.complete) },
	}
}

func (r *recorder) beatsSeen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.beats...)
}

func (r *recorder) countInsSeen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.countIns...)
}

func (r *recorder) waitComplete(t *testing.T, d time.Duration) bool {
	t.Helper()
	select {
	case <-r.complete:
		return true
	case <-time.After(d):
		return false
	}
}

func shortBeats(n int) []clock.Beat {
	beats := make([]clock.Beat, n)
	for i := range beats {
		beats[i] = clock.Beat{Index: i, DurationMs: 10}
	}
	return beats
}

func TestClockLifecycle(t *testing.T) {
	Convey("Given a clock over four short beats", t, func() {
		rec := newRecorder()
		c := clock.New(shortBeats(4), rec.callbacks(),
			clock.WithCountIn(2),
			clock.WithCountInInterval(5),
		)

		Convey("Then it starts idle at beat zero", func() {
			So(c.State(), ShouldEqual, clock.Idle)
			So(c.CurrentIndex(), ShouldEqual, 0)
		})

		Convey("When started and run to the end", func() {
			So(c.Start(), ShouldBeTrue)
			So(rec.waitComplete(t, 2*time.Second), ShouldBeTrue)

			Convey("Then the count-in ticked down before playback", func() {
				So(rec.countInsSeen(), ShouldResemble, []int{2, 1})
			})

			Convey("And every beat was announced exactly once, in order", func() {
				So(rec.beatsSeen(), ShouldResemble, []int{0, 1, 2, 3})
			})

			Convey("And the clock ends stopped", func() {
				So(c.State(), ShouldEqual, clock.Stopped)
			})
		})

		Convey("When started twice", func() {
			So(c.Start(), ShouldBeTrue)

			Convey("Then the second start is rejected", func() {
				So(c.Start(), ShouldBeFalse)
			})

			c.Stop()
		})
	})

	Convey("Given a clock with no count-in", t, func() {
		rec := newRecorder()
		c := clock.New(shortBeats(2), rec.callbacks(), clock.WithCountIn(0))

		Convey("When started", func() {
			So(c.Start(), ShouldBeTrue)

			Convey("Then beat zero is announced immediately", func() {
				So(rec.beatsSeen(), ShouldResemble, []int{0})
				So(c.State(), ShouldEqual, clock.Playing)
			})

			c.Stop()
		})
	})

	Convey("Given a clock with no beats", t, func() {
		rec := newRecorder()
		c := clock.New(nil, rec.callbacks())

		Convey("Then it refuses to start", func() {
			So(c.Start(), ShouldBeFalse)
			So(c.State(), ShouldEqual, clock.Idle)
		})
	})
}

func TestClockPauseResume(t *testing.T) {
	Convey("Given a playing clock", t, func() {
		rec := newRecorder()
		c := clock.New([]clock.Beat{
			{Index: 0, DurationMs: 10_000},
			{Index: 1, DurationMs: 10_000},
		}, rec.callbacks(), clock.WithCountIn(0))
		So(c.Start(), ShouldBeTrue)

		Convey("When paused", func() {
			So(c.Pause(), ShouldBeTrue)

			Convey("Then state is paused and the cursor holds", func() {
				So(c.State(), ShouldEqual, clock.Paused)
				So(c.CurrentIndex(), ShouldEqual, 0)
			})

			Convey("And pausing again is rejected", func() {
				So(c.Pause(), ShouldBeFalse)
			})

			Convey("And resume does not re-announce the beat", func() {
				So(c.Resume(), ShouldBeTrue)
				So(c.State(), ShouldEqual, clock.Playing)
				So(rec.beatsSeen(), ShouldResemble, []int{0})
			})
		})

		Convey("When idle or stopped", func() {
			c.Stop()

			Convey("Then pause and resume are rejected", func() {
				So(c.Pause(), ShouldBeFalse)
				So(c.Resume(), ShouldBeFalse)
			})
		})

		c.Stop()
	})
}

func TestClockSeek(t *testing.T) {
	Convey("Given a clock over four beats", t, func() {
		rec := newRecorder()
		c := clock.New(shortBeats(4), rec.callbacks(), clock.WithCountIn(0))

		Convey("When seeking to a valid beat", func() {
			c.Seek(2)

			Convey("Then the cursor moves and playback stops", func() {
				So(c.CurrentIndex(), ShouldEqual, 2)
				So(c.State(), ShouldEqual, clock.Stopped)
			})

			Convey("And the next start plays from the seek target", func() {
				So(c.Start(), ShouldBeTrue)
				So(rec.waitComplete(t, 2*time.Second), ShouldBeTrue)
				So(rec.beatsSeen(), ShouldResemble, []int{2, 3})
			})
		})

		Convey("When seeking out of range", func() {
			c.Seek(99)
			So(c.CurrentIndex(), ShouldEqual, 3)

			c.Seek(-5)
			So(c.CurrentIndex(), ShouldEqual, 0)
		})
	})
}

func TestClockStop(t *testing.T) {
	Convey("Given a playing clock with long beats", t, func() {
		rec := newRecorder()
		c := clock.New([]clock.Beat{
			{Index: 0, DurationMs: 20},
			{Index: 1, DurationMs: 20},
		}, rec.callbacks(), clock.WithCountIn(0))
		So(c.Start(), ShouldBeTrue)

		Convey("When stopped mid-beat", func() {
			c.Stop()
			seen := len(rec.beatsSeen())

			Convey("Then no further beats fire", func() {
				time.Sleep(80 * time.Millisecond)
				So(rec.beatsSeen(), ShouldHaveLength, seen)
				So(c.State(), ShouldEqual, clock.Stopped)
			})
		})
	})
}
