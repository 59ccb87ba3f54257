// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// TempoBPM overrides the score's embedded tempo when > 0.
	// Accepted range is 30-200.
	TempoBPM int `koanf:"tempo_bpm"`

	// CoalesceWindowMS bounds how long near-simultaneous key presses are
	// gathered into one chord.
	CoalesceWindowMS int `koanf:"coalesce_window_ms"`

	// MaxMistakes ends a session early once reached. Must be >= 1.
	MaxMistakes int `koanf:"max_mistakes"`

	// MinBeatMS floors the duration of any beat window.
	MinBeatMS int `koanf:"min_beat_ms"`

	// CountInBeats sets the number of count-in ticks before playback.
	CountInBeats int `koanf:"count_in_beats"`

	// RestPenalty records a mistake for presses during rest beats.
	RestPenalty bool `koanf:"rest_penalty"`

	// MatchWindowMS limits how late within a beat a chord still counts.
	// Zero accepts input for the whole beat window.
	MatchWindowMS int `koanf:"match_window_ms"`

	// QueueSize bounds the in-memory session summary queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count"`

	// Store selects the session store backend: memory or dynamodb.
	Store string `koanf:"store"`

	// DynamoEndpoint overrides the DynamoDB endpoint (useful for local dev).
	DynamoEndpoint string `koanf:"dynamo_endpoint"`

	// DynamoRegion sets the AWS region for the DynamoDB store.
	DynamoRegion string `koanf:"dynamo_region"`

	// DynamoTable names the session summary table.
	DynamoTable string `koanf:"dynamo_table"`

	// ConvertURL points at the sheet-image conversion service.
	ConvertURL string `koanf:"convert_url"`

	// ConvertTimeoutMS bounds a single conversion round trip.
	ConvertTimeoutMS int `koanf:"convert_timeout_ms"`

	// MaxUploadBytes caps score and image uploads.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MIDIPort names the MIDI input port to listen on. Empty disables
	// hardware input.
	MIDIPort string `koanf:"midi_port"`
}

// Tempo bounds accepted from configuration.
const (
	MinTempoBPM = 30
	MaxTempoBPM = 200
)

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		TempoBPM:         0,
		CoalesceWindowMS: 30,
		MaxMistakes:      3,
		MinBeatMS:        80,
		CountInBeats:     3,
		RestPenalty:      false,
		MatchWindowMS:    0,
		QueueSize:        1024,
		WorkerCount:      runtime.NumCPU(),
		Store:            "memory",
		DynamoRegion:     "us-east-1",
		DynamoTable:      "etude-sessions",
		ConvertURL:       "",
		ConvertTimeoutMS: 30_000,
		MaxUploadBytes:   10 << 20,
	}
}
