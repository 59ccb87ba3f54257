package score

import (
	"math"
	"sort"

	"github.com/etudekit/etude/internal/domain/model"
)

// Default beat derivation constants.
const (
	defaultBPM        = 120.0
	defaultMinBeatMs  = 80.0
	msPerMinute       = 60000.0
	quartersPerWhole  = 4.0
	offsetGranularity = 1e-6 // offsets closer than this share a beat
)

// Builder derives the flat, tempo-locked beat sequence from a score.
type Builder struct {
	minBeatMs float64
	bpm       float64 // overrides score tempo when > 0
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithMinBeatMs sets the per-beat duration floor in milliseconds.
func WithMinBeatMs(ms float64) Option {
	return func(b *Builder) {
		if ms > 0 && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
			b.minBeatMs = ms
		}
	}
}

// WithTempoOverride forces a fixed BPM regardless of score markings.
func WithTempoOverride(bpm float64) Option {
	return func(b *Builder) {
		if bpm > 0 {
			b.bpm = bpm
		}
	}
}

// NewBuilder creates a beat builder with configuration options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{minBeatMs: defaultMinBeatMs}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildBeats flattens the score into the ordered checkpoint sequence. Every
// distinct timestamp in a measure becomes one beat carrying the union of
// pitches across all voices and staves at that timestamp; rests occupy a
// beat with an empty pitch set. A malformed or empty score yields zero
// beats, never an error: callers treat zero beats as "not ready to play".
//
// The result is a pure function of the score and builder configuration, so
// repeated calls are deterministic.
func (b *Builder) BuildBeats(sc *model.Score) []model.Beat {
	if sc == nil || len(sc.Measures) == 0 {
		return nil
	}

	var beats []model.Beat
	bpm := defaultBPM
	for mi, measure := range sc.Measures {
		if b.bpm > 0 {
			bpm = b.bpm
		} else if measure.BPM > 0 {
			bpm = measure.BPM
		}
		quarterNoteMs := msPerMinute / bpm

		slots := groupByOffset(measure.Entries)
		for bi, slot := range slots {
			beat := model.Beat{
				Index:         len(beats),
				MeasureIndex:  mi,
				MeasureNumber: measure.Number,
				BeatInMeasure: bi,
			}
			shortest := math.Inf(1)
			for _, n := range slot.notes {
				if n.Duration > 0 && n.Duration < shortest {
					shortest = n.Duration
				}
				if !n.Rest {
					beat.ExpectedPitches = appendPitch(beat.ExpectedPitches, n.Pitch)
				}
			}
			if math.IsInf(shortest, 1) {
				shortest = 1 / quartersPerWhole // fall back to one quarter note
			}
			beat.DurationMs = math.Max(b.minBeatMs, shortest*quartersPerWhole*quarterNoteMs)
			beats = append(beats, beat)
		}
	}
	return beats
}

type offsetSlot struct {
	offset float64
	notes  []model.Note
}

// groupByOffset collapses all voice entries that share a timestamp into one
// slot, ordered by musical time.
func groupByOffset(entries []model.VoiceEntry) []offsetSlot {
	var slots []offsetSlot
	for _, e := range entries {
		if math.IsNaN(e.Offset) || math.IsInf(e.Offset, 0) {
			continue
		}
		found := false
		for i := range slots {
			if math.Abs(slots[i].offset-e.Offset) < offsetGranularity {
				slots[i].notes = append(slots[i].notes, e.Notes...)
				found = true
				break
			}
		}
		if !found {
			slots = append(slots, offsetSlot{offset: e.Offset, notes: append([]model.Note(nil), e.Notes...)})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].offset < slots[j].offset })
	return slots
}

// appendPitch inserts pitch into a sorted set, skipping duplicates.
func appendPitch(set []uint8, pitch uint8) []uint8 {
	i := sort.Search(len(set), func(i int) bool { return set[i] >= pitch })
	if i < len(set) && set[i] == pitch {
		return set
	}
	set = append(set, 0)
	copy(set[i+1:], set[i:])
	set[i] = pitch
	return set
}
