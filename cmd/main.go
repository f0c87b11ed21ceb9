package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photo-thumbnailer/internal/codec"
	"photo-thumbnailer/internal/metrics"
	"photo-thumbnailer/internal/models"
	"photo-thumbnailer/internal/objectstore"
	"photo-thumbnailer/internal/processor"
	"photo-thumbnailer/internal/queue"
	"photo-thumbnailer/internal/server"
	"photo-thumbnailer/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional outside local development.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := models.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *models.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	var meta processor.MetadataStore
	if cfg.DatabaseURL != "" {
		db, err := storage.NewStorage(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer db.Close()
		meta = db
	} else {
		log.Warn("DATABASE_URL not set, metadata table disabled")
	}

	c, err := codec.New(cfg.WatermarkText)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}

	proc := processor.New(processor.Deps{
		Store:          store,
		Codec:          c,
		Metadata:       meta,
		Metrics:        collector,
		Log:            log,
		Sizes:          cfg.Sizes,
		Formats:        cfg.Formats,
		OriginalBucket: cfg.OriginalBucket,
		DerivedBucket:  cfg.DerivedBucket,
	})

	var enqueuer server.Enqueuer
	if cfg.KafkaBroker != "" {
		producer := queue.NewProducer(cfg.KafkaBroker, cfg.KafkaTopic)
		defer producer.Close()
		enqueuer = producer

		consumer := queue.NewConsumer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroup, log)
		defer consumer.Close()
		go func() {
			err := consumer.Run(ctx, func(ctx context.Context, job models.GenerateJob) error {
				_, err := proc.Generate(ctx, job.Bucket, job.File)
				return err
			})
			if err != nil {
				log.Error("consumer stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(cfg, proc, enqueuer, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Stop(shutdownCtx)
}

func newStore(ctx context.Context, cfg *models.Config) (objectstore.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return objectstore.NewMemoryStore(""), nil
	case "s3":
		return objectstore.NewS3Store(ctx, objectstore.S3Options{
			Endpoint:  cfg.StoreEndpoint,
			Region:    cfg.StoreRegion,
			AccessKey: cfg.StoreAccessKey,
			SecretKey: cfg.StoreSecretKey,
		})
	default:
		return nil, errors.New("unknown store backend " + cfg.StoreBackend)
	}
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
