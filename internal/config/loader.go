package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ETUDE_CONFIG is set
//  3. env (prefix ETUDE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ETUDE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: ETUDE_ADDR, ETUDE_TEMPO_BPM, ...
	// Map env keys like ETUDE_TEMPO_BPM -> tempo_bpm (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("ETUDE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "etude_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first configuration value outside its accepted range.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.TempoBPM != 0 && (c.TempoBPM < MinTempoBPM || c.TempoBPM > MaxTempoBPM) {
		return fmt.Errorf("%w: tempo_bpm %d outside %d-%d", ErrInvalidConfig, c.TempoBPM, MinTempoBPM, MaxTempoBPM)
	}
	if c.CoalesceWindowMS < 0 {
		return fmt.Errorf("%w: coalesce_window_ms must not be negative", ErrInvalidConfig)
	}
	if c.MaxMistakes < 1 {
		return fmt.Errorf("%w: max_mistakes must be at least 1", ErrInvalidConfig)
	}
	if c.MinBeatMS < 0 {
		return fmt.Errorf("%w: min_beat_ms must not be negative", ErrInvalidConfig)
	}
	if c.CountInBeats < 0 {
		return fmt.Errorf("%w: count_in_beats must not be negative", ErrInvalidConfig)
	}
	if c.MatchWindowMS < 0 {
		return fmt.Errorf("%w: match_window_ms must not be negative", ErrInvalidConfig)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be at least 1", ErrInvalidConfig)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	}
	switch c.Store {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("%w: store must be memory or dynamodb, got %q", ErrInvalidConfig, c.Store)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: max_upload_bytes must be at least 1", ErrInvalidConfig)
	}
	return nil
}
