package score_test

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/internal/domain/score"
)

func mustParse(t *testing.T, doc string) *model.Score {
	t.Helper()
	sc, err := score.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return sc
}

func TestBuildBeats(t *testing.T) {
	Convey("Given a parsed two-measure score", t, func() {
		sc := mustParse(t, twoMeasureDoc)
		builder := score.NewBuilder()

		Convey("When deriving the beat sequence", func() {
			beats := builder.BuildBeats(sc)

			Convey("Then every distinct timestamp becomes one beat", func() {
				So(len(beats), ShouldEqual, 6)
			})

			Convey("And indices are contiguous from zero", func() {
				for i, b := range beats {
					So(b.Index, ShouldEqual, i)
				}
			})

			Convey("And measure positions are tracked", func() {
				So(beats[0].MeasureNumber, ShouldEqual, 1)
				So(beats[0].BeatInMeasure, ShouldEqual, 0)
				So(beats[4].MeasureNumber, ShouldEqual, 2)
				So(beats[4].BeatInMeasure, ShouldEqual, 0)
			})

			Convey("And chords expect all their pitches, sorted", func() {
				So(beats[4].ExpectedPitches, ShouldResemble, []uint8{60, 64})
			})

			Convey("And rests expect silence", func() {
				So(beats[5].IsRest(), ShouldBeTrue)
			})

			Convey("And durations follow the tempo marking", func() {
				// 100 BPM: a quarter note is 600ms, a half note 1200ms
				So(beats[0].DurationMs, ShouldEqual, 600)
				So(beats[4].DurationMs, ShouldEqual, 1200)
			})
		})

		Convey("When deriving twice from the same score", func() {
			first := builder.BuildBeats(sc)
			second := builder.BuildBeats(sc)

			Convey("Then the output is identical", func() {
				So(second, ShouldResemble, first)
			})
		})
	})

	Convey("Given a tempo override", t, func() {
		sc := mustParse(t, twoMeasureDoc)
		builder := score.NewBuilder(score.WithTempoOverride(60))

		Convey("Then the score's own marking is ignored", func() {
			beats := builder.BuildBeats(sc)
			So(beats[0].DurationMs, ShouldEqual, 1000) // quarter note at 60 BPM
		})
	})

	Convey("Given a minimum beat duration", t, func() {
		sc := mustParse(t, twoMeasureDoc)
		builder := score.NewBuilder(
			score.WithTempoOverride(200),
			score.WithMinBeatMs(500),
		)

		Convey("Then short beats are floored", func() {
			beats := builder.BuildBeats(sc)
			// a quarter at 200 BPM is 300ms, below the 500ms floor
			So(beats[0].DurationMs, ShouldEqual, 500)
		})
	})

	Convey("Given voices sharing a timestamp", t, func() {
		doc := `<score-partwise><part id="P1"><measure number="1">
			<attributes><divisions>1</divisions></attributes>
			<note><pitch><step>C</step><octave>4</octave></pitch><duration>4</duration><voice>1</voice></note>
			<backup><duration>4</duration></backup>
			<note><pitch><step>C</step><octave>3</octave></pitch><duration>2</duration><voice>2</voice></note>
			<note><pitch><step>G</step><octave>3</octave></pitch><duration>2</duration><voice>2</voice></note>
		</measure></part></score-partwise>`
		sc := mustParse(t, doc)
		beats := score.NewBuilder().BuildBeats(sc)

		Convey("Then concurrent voices merge into one beat", func() {
			So(len(beats), ShouldEqual, 2)
			So(beats[0].ExpectedPitches, ShouldResemble, []uint8{48, 60})
			So(beats[1].ExpectedPitches, ShouldResemble, []uint8{55})
		})

		Convey("And the beat lasts as long as its shortest note", func() {
			// voice 2's half note at default 120 BPM: 1000ms
			So(beats[0].DurationMs, ShouldEqual, 1000)
		})
	})

	Convey("Given no score", t, func() {
		builder := score.NewBuilder()

		Convey("Then nil and empty scores yield zero beats", func() {
			So(builder.BuildBeats(nil), ShouldBeNil)
			So(builder.BuildBeats(&model.Score{}), ShouldBeNil)
		})
	})
}
