package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/etudekit/etude/internal/config"
)

func TestDefaults(t *testing.T) {
	Convey("Given no configuration sources", t, func() {
		cfg, err := config.Load()

		Convey("Then the defaults load and validate", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.TempoBPM, ShouldEqual, 0)
			So(cfg.CoalesceWindowMS, ShouldEqual, 30)
			So(cfg.MaxMistakes, ShouldEqual, 3)
			So(cfg.CountInBeats, ShouldEqual, 3)
			So(cfg.QueueSize, ShouldEqual, 1024)
			So(cfg.Store, ShouldEqual, "memory")
			So(cfg.DynamoTable, ShouldEqual, "etude-sessions")
			So(cfg.MaxUploadBytes, ShouldEqual, int64(10<<20))
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
		})
	})
}

func TestEnvOverrides(t *testing.T) {
	Convey("Given overrides in the environment", t, func() {
		t.Setenv("ETUDE_ADDR", ":7000")
		t.Setenv("ETUDE_TEMPO_BPM", "90")
		t.Setenv("ETUDE_REST_PENALTY", "true")
		t.Setenv("ETUDE_STORE", "dynamodb")
		t.Setenv("ETUDE_DYNAMO_ENDPOINT", "http://localhost:8000")

		Convey("When the configuration loads", func() {
			cfg, err := config.Load()

			Convey("Then env values win over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7000")
				So(cfg.TempoBPM, ShouldEqual, 90)
				So(cfg.RestPenalty, ShouldBeTrue)
				So(cfg.Store, ShouldEqual, "dynamodb")
				So(cfg.DynamoEndpoint, ShouldEqual, "http://localhost:8000")
				So(cfg.MaxMistakes, ShouldEqual, 3) // untouched default
			})
		})
	})
}

func TestFileLayer(t *testing.T) {
	Convey("Given a YAML config file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "etude.yaml")
		body := "addr: \":7100\"\nmax_mistakes: 5\ncount_in_beats: 1\n"
		So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
		t.Setenv("ETUDE_CONFIG", path)

		Convey("When the configuration loads", func() {
			cfg, err := config.Load()

			Convey("Then file values override defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7100")
				So(cfg.MaxMistakes, ShouldEqual, 5)
				So(cfg.CountInBeats, ShouldEqual, 1)
			})
		})

		Convey("When env and file both set a key", func() {
			t.Setenv("ETUDE_ADDR", ":7200")
			cfg, err := config.Load()

			Convey("Then env wins", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7200")
				So(cfg.MaxMistakes, ShouldEqual, 5)
			})
		})

		Convey("When the file path is bogus", func() {
			t.Setenv("ETUDE_CONFIG", filepath.Join(dir, "missing.yaml"))
			_, err := config.Load()
			So(err, ShouldWrap, config.ErrLoadConfig)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a default configuration", t, func() {
		Convey("Then each out-of-range value is rejected", func() {
			cases := []struct {
				name   string
				mutate func(*config.Config)
			}{
				{"empty addr", func(c *config.Config) { c.Addr = "" }},
				{"tempo below range", func(c *config.Config) { c.TempoBPM = 20 }},
				{"tempo above range", func(c *config.Config) { c.TempoBPM = 300 }},
				{"negative coalesce window", func(c *config.Config) { c.CoalesceWindowMS = -1 }},
				{"zero mistake ceiling", func(c *config.Config) { c.MaxMistakes = 0 }},
				{"negative min beat", func(c *config.Config) { c.MinBeatMS = -1 }},
				{"negative count-in", func(c *config.Config) { c.CountInBeats = -1 }},
				{"negative match window", func(c *config.Config) { c.MatchWindowMS = -1 }},
				{"zero queue size", func(c *config.Config) { c.QueueSize = 0 }},
				{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
				{"unknown store", func(c *config.Config) { c.Store = "postgres" }},
				{"zero upload cap", func(c *config.Config) { c.MaxUploadBytes = 0 }},
			}
			for _, tc := range cases {
				cfg := config.New()
				tc.mutate(cfg)
				So(cfg.Validate(), ShouldWrap, config.ErrInvalidConfig)
			}
		})

		Convey("And the boundary values pass", func() {
			cfg := config.New()
			cfg.TempoBPM = config.MinTempoBPM
			So(cfg.Validate(), ShouldBeNil)
			cfg.TempoBPM = config.MaxTempoBPM
			So(cfg.Validate(), ShouldBeNil)
			cfg.TempoBPM = 0 // zero means keep the score's tempo
			So(cfg.Validate(), ShouldBeNil)
		})
	})
}
