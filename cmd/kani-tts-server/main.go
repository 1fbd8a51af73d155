// main package for the kani-tts-server: the HTTP/WebSocket synthesis server
// and, when NATS is configured, the asynchronous job worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/kani-tts-service/internal/cache"
	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/objectstore"
	"github.com/book-expert/kani-tts-service/internal/server"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/book-expert/kani-tts-service/internal/worker"
	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapLogFile = "kani-tts-server-bootstrap.log"
	serviceLogFile   = "kani-tts-server.log"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func loadConfig() (*config.Config, error) {
	// Bootstrap logger until the configured log directory is known.
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	envErr := godotenv.Load()
	if envErr != nil {
		bootstrapLog.Info("No .env file loaded: %v", envErr)
	}

	// Load configuration using the central configurator.
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	synthesizer, err := tts.NewSynthesizer(cfg.TTS, log)
	if err != nil {
		log.Error("Failed to create %s backend: %v", cfg.TTS.Backend, err)

		return fmt.Errorf("failed to create backend: %w", err)
	}

	chunkCache, err := cache.New(cfg.Cache.Size)
	if err != nil {
		return fmt.Errorf("failed to create chunk cache: %w", err)
	}

	pipeline := tts.NewPipeline(synthesizer, chunkCache, log, tts.SettingsFromConfig(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthErr := pipeline.HealthCheck(ctx)
	if healthErr != nil {
		log.Warn("Backend is not healthy yet: %v", healthErr)
	}

	gin.SetMode(gin.ReleaseMode)

	return serve(ctx, cfg, pipeline, log)
}

// serve runs the HTTP server, and the NATS worker when configured, until ctx
// ends. The worker is built first so a NATS failure returns before the server
// starts listening.
func serve(ctx context.Context, cfg *config.Config, pipeline *tts.Pipeline, log *logger.Logger) error {
	var jobWorker *worker.NatsWorker

	if cfg.NATS.URL != "" {
		natsConnection, natsWorker, err := newWorker(cfg, pipeline, log)
		if err != nil {
			return err
		}

		defer natsConnection.Close()

		jobWorker = natsWorker
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.New(cfg, pipeline, log).Run(groupCtx)
	})

	if jobWorker != nil {
		group.Go(func() error {
			return jobWorker.Run(groupCtx)
		})
	}

	log.System("Kani TTS service started (backend %s, %d workers)", cfg.TTS.Backend, pipeline.Settings().Workers)

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Service stopped with error: %v", err)

		return err
	}

	log.System("Kani TTS service stopped")

	return nil
}

func newWorker(cfg *config.Config, pipeline *tts.Pipeline, log *logger.Logger) (*nats.Conn, *worker.NatsWorker, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("kani-tts-service"), nats.MaxReconnects(-1))
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	jetStream, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(jetStream, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to open text object store: %w", err)
	}

	audioStore, err := objectstore.New(jetStream, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to open audio object store: %w", err)
	}

	log.Info("Using object store buckets %s (text) and %s (audio)", textStore.Bucket(), audioStore.Bucket())

	jobWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		textStore,
		audioStore,
		pipeline,
		!cfg.Text.DisableNormalize,
		worker.DefaultJobTimeout,
		log,
	)

	return natsConnection, jobWorker, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
