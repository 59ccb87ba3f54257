// Package model contains domain models passed between layers.
package model

// Note is a single notated note inside a voice entry. Duration is expressed
// as a fraction of a whole note (a quarter note is 0.25), which is the unit
// the beat builder converts to wall-clock time.
type Note struct {
	Pitch    uint8   // MIDI note number, 0-127
	Duration float64 // fraction of a whole note
	Rest     bool    // true when this entry is musical silence
}

// VoiceEntry groups the notes of one voice that start at the same musical
// timestamp within a measure.
type VoiceEntry struct {
	Offset float64 // fraction of a whole note from the measure start
	Voice  int
	Staff  int
	Notes  []Note
}

// Measure is one bar of the score. BPM is zero when the measure carries no
// tempo marking and inherits the previous one.
type Measure struct {
	Number  int // 1-based measure number from the source document
	BPM     float64
	Entries []VoiceEntry
}

// Score is the immutable result of parsing a score document. It is built
// once per load and replaced wholesale when a new document is loaded.
type Score struct {
	Title    string
	Source   string
	Measures []Measure
}

// Anchor is a pixel coordinate supplied by the renderer for visual feedback.
type Anchor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Beat is one checkpoint in the derived, tempo-locked sequence the playback
// cursor walks. ExpectedPitches is sorted ascending and may be empty (a rest).
type Beat struct {
	Index           int     `json:"index"`
	MeasureIndex    int     `json:"measure_index"`
	MeasureNumber   int     `json:"measure"`
	BeatInMeasure   int     `json:"beat_in_measure"`
	ExpectedPitches []uint8 `json:"expected_pitches"`
	DurationMs      float64 `json:"duration_ms"`
	VisualAnchor    *Anchor `json:"visual_anchor,omitempty"`
}

// IsRest reports whether the beat expects silence.
func (b Beat) IsRest() bool {
	return len(b.ExpectedPitches) == 0
}

// Expects reports whether pitch is part of the beat's expected set.
func (b Beat) Expects(pitch uint8) bool {
	for _, p := range b.ExpectedPitches {
		if p == pitch {
			return true
		}
	}
	return false
}
