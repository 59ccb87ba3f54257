package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver

	"github.com/etudekit/etude/internal/adapters/convert"
	"github.com/etudekit/etude/internal/adapters/http/api"
	"github.com/etudekit/etude/internal/adapters/repository"
	app "github.com/etudekit/etude/internal/app"
	"github.com/etudekit/etude/internal/config"
	"github.com/etudekit/etude/pkg/logger"
	"github.com/etudekit/etude/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the practice HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return err
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return err
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithTempoOverride(float64(cfg.TempoBPM)),
		app.WithMinBeatMs(float64(cfg.MinBeatMS)),
		app.WithCountInBeats(cfg.CountInBeats),
		app.WithCoalesceWindow(time.Duration(cfg.CoalesceWindowMS) * time.Millisecond),
		app.WithMaxMistakes(cfg.MaxMistakes),
		app.WithRestPenalty(cfg.RestPenalty),
		app.WithMatchWindow(float64(cfg.MatchWindowMS)),
		app.WithMIDIPort(cfg.MIDIPort),
	}

	if cfg.Store == "dynamodb" {
		store, err := repository.NewDynamoStore(
			repository.WithRegion(cfg.DynamoRegion),
			repository.WithEndpoint(cfg.DynamoEndpoint),
			repository.WithTable(cfg.DynamoTable),
		)
		if err != nil {
			log.Error(ctx, "failed to build dynamodb store", logger.Error(err))
			return err
		}
		opts = append(opts, app.WithStore(store))
		log.Info(ctx, "using dynamodb session store",
			logger.String("table", cfg.DynamoTable),
			logger.String("region", cfg.DynamoRegion),
		)
	}

	if cfg.ConvertURL != "" {
		opts = append(opts, app.WithConverter(convert.NewClient(cfg.ConvertURL,
			convert.WithTimeout(time.Duration(cfg.ConvertTimeoutMS)*time.Millisecond),
			convert.WithMaxUploadBytes(cfg.MaxUploadBytes),
		)))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return err
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	apiServer := api.NewServer(svc, svc, api.WithMaxUploadBytes(cfg.MaxUploadBytes))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// startServiceMetricsUpdater refreshes gauges that are cheaper to poll than
// to maintain on every mutation.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.GetStats()
			if stored, ok := stats["storedSessions"].(int); ok {
				metrics.UpdateStoredSessions(stored)
			}
			if queued, ok := stats["queueLength"].(int); ok {
				metrics.UpdateQueueSize(queued)
			}
		}
	}
}
