package chord_test

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/etudekit/etude/internal/domain/chord"
	"github.com/etudekit/etude/internal/domain/model"
)

// collector records emitted chords.
type collector struct {
	mu     sync.Mutex
	chords []model.Chord
}

func (c *collector) emit(ch model.Chord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chords = append(c.chords, ch)
}

func (c *collector) seen() []model.Chord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Chord(nil), c.chords...)
}

func (c *collector) waitFor(t *testing.T, n int, d time.Duration) []model.Chord {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if got := c.seen(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	return c.seen()
}

func press(pitch uint8, tsMs float64) model.PressedNote {
	return model.PressedNote{Pitch: pitch, Velocity: 100, TimestampMs: tsMs}
}

func TestAggregatorCoalescing(t *testing.T) {
	Convey("Given an aggregator with a 30ms window", t, func() {
		col := &collector{}
		agg := chord.New(col.emit, chord.WithWindow(30*time.Millisecond))

		Convey("When three presses arrive within the window", func() {
			agg.Press(press(60, 0))
			agg.Press(press(64, 10))
			agg.Press(press(67, 25))

			Convey("Then they emit as one chord keyed to the first press", func() {
				got := col.waitFor(t, 1, time.Second)
				So(got, ShouldHaveLength, 1)
				So(got[0].Pitches, ShouldResemble, []uint8{60, 64, 67})
				So(got[0].FirstTimestampMs, ShouldEqual, 0)
			})
		})

		Convey("When a press arrives after the window closed", func() {
			agg.Press(press(60, 0))
			col.waitFor(t, 1, time.Second)
			agg.Press(press(72, 40))

			Convey("Then it opens a new chord", func() {
				got := col.waitFor(t, 2, time.Second)
				So(got, ShouldHaveLength, 2)
				So(got[0].Pitches, ShouldResemble, []uint8{60})
				So(got[1].Pitches, ShouldResemble, []uint8{72})
			})
		})

		Convey("When the same pitch is pressed twice in a window", func() {
			agg.Press(press(60, 0))
			agg.Press(press(60, 5))

			Convey("Then the chord carries it once", func() {
				got := col.waitFor(t, 1, time.Second)
				So(got, ShouldHaveLength, 1)
				So(got[0].Pitches, ShouldResemble, []uint8{60})
			})
		})

		Convey("When presses arrive out of pitch order", func() {
			agg.Press(press(67, 0))
			agg.Press(press(60, 5))

			Convey("Then the chord is sorted ascending", func() {
				got := col.waitFor(t, 1, time.Second)
				So(got[0].Pitches, ShouldResemble, []uint8{60, 67})
			})
		})
	})
}

func TestAggregatorFlushAndDiscard(t *testing.T) {
	Convey("Given an aggregator with a long window", t, func() {
		col := &collector{}
		agg := chord.New(col.emit, chord.WithWindow(10*time.Second))

		Convey("When flushed with buffered presses", func() {
			agg.Press(press(60, 0))
			agg.Press(press(64, 1))
			agg.Flush()

			Convey("Then the chord emits immediately", func() {
				So(col.seen(), ShouldHaveLength, 1)
				So(col.seen()[0].Pitches, ShouldResemble, []uint8{60, 64})
			})

			Convey("And a second flush is a no-op", func() {
				agg.Flush()
				So(col.seen(), ShouldHaveLength, 1)
			})
		})

		Convey("When discarded with buffered presses", func() {
			agg.Press(press(60, 0))
			agg.Discard()

			Convey("Then nothing emits, even after the window", func() {
				time.Sleep(20 * time.Millisecond)
				So(col.seen(), ShouldBeEmpty)
			})
		})
	})
}

func TestAggregatorGateAndSound(t *testing.T) {
	Convey("Given a gated aggregator with a sound sink", t, func() {
		col := &collector{}
		var sounded []uint8
		gateOpen := false
		agg := chord.New(col.emit,
			chord.WithWindow(5*time.Millisecond),
			chord.WithActiveGate(func() bool { return gateOpen }),
			chord.WithSoundSink(func(pitch, velocity uint8) {
				sounded = append(sounded, pitch)
			}),
		)

		Convey("When pressing while the gate is closed", func() {
			agg.Press(press(60, 0))

			Convey("Then the press sounds but never scores", func() {
				So(sounded, ShouldResemble, []uint8{60})
				time.Sleep(15 * time.Millisecond)
				So(col.seen(), ShouldBeEmpty)
			})
		})

		Convey("When pressing while the gate is open", func() {
			gateOpen = true
			agg.Press(press(60, 0))

			Convey("Then the press sounds and scores", func() {
				So(sounded, ShouldResemble, []uint8{60})
				So(col.waitFor(t, 1, time.Second), ShouldHaveLength, 1)
			})
		})
	})
}

func TestDedupeAndKey(t *testing.T) {
	Convey("Given raw pitch slices", t, func() {
		Convey("Then Dedupe sorts and uniques without mutating input", func() {
			in := []uint8{67, 60, 67, 64}
			So(chord.Dedupe(in), ShouldResemble, []uint8{60, 64, 67})
			So(in, ShouldResemble, []uint8{67, 60, 67, 64})
		})

		Convey("Then Key renders a stable identifier", func() {
			So(chord.Key([]uint8{67, 60, 64}), ShouldEqual, "60-64-67")
			So(chord.Key(nil), ShouldEqual, "")
		})
	})
}
