package model

import (
	"math"
	"time"
)

// PressedNote is a raw input event from the MIDI or keyboard adapter. It is
// consumed immediately by the chord aggregator.
type PressedNote struct {
	Pitch       uint8
	Velocity    uint8
	TimestampMs float64
}

// Chord is a set of pitches coalesced from presses that arrived within one
// aggregation window. Pitches is sorted ascending and free of duplicates.
type Chord struct {
	Pitches          []uint8
	FirstTimestampMs float64
}

// MistakeRecord captures one mismatch with enough positional context for the
// review UI. Records are append-only within a playback attempt.
type MistakeRecord struct {
	BeatIndex       int     `json:"beat_index"`
	TimestampMs     float64 `json:"timestamp_ms"`
	ExpectedPitches []uint8 `json:"expected_pitches"`
	PlayedPitch     uint8   `json:"played_pitch"`
	Measure         int     `json:"measure"`
	BeatInMeasure   int     `json:"beat_in_measure"`
}

// ScoreState holds the running counters for one playback attempt.
type ScoreState struct {
	TotalSteps   int `json:"total_steps"`
	CorrectSteps int `json:"correct_steps"`
	MistakeCount int `json:"mistake_count"`
}

// Percent returns the rounded percentage score, 0 when no steps were visited.
func (s ScoreState) Percent() int {
	if s.TotalSteps == 0 {
		return 0
	}
	return int(math.Round(100 * float64(s.CorrectSteps) / float64(s.TotalSteps)))
}

// Lesson identifies the piece a session practiced.
type Lesson struct {
	UID    string `json:"uid"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Performance is the scored outcome of a session.
type Performance struct {
	Attempts int `json:"attempts"`
	Score    int `json:"score"`
}

// SessionSummary is the durable record written once a session ends, whether
// by completing the piece or by the mistake-ceiling abort. Aborted sessions
// carry the partial score over the beats actually visited.
type SessionSummary struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"startedAt"`
	EndedAt     time.Time       `json:"endedAt"`
	DurationSec int             `json:"durationSec"`
	Lesson      Lesson          `json:"lesson"`
	Performance Performance     `json:"performance"`
	Aborted     bool            `json:"aborted"`
	Mistakes    []MistakeRecord `json:"mistakes,omitempty"`
}
