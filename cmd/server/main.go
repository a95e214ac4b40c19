package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zombar/aletheia/internal/api"
	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/database"
	"github.com/zombar/aletheia/internal/drift"
	"github.com/zombar/aletheia/internal/queue"
	"github.com/zombar/aletheia/pkg/logging"
	"github.com/zombar/aletheia/pkg/metrics"
	"github.com/zombar/aletheia/pkg/tracing"
)

const serviceName = "aletheia"

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("aletheia service initializing", "version", "1.0.0")

	tp, err := tracing.InitTracer(serviceName)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	table, err := loadTable(cfg.LexiconPath)
	if err != nil {
		logger.Error("failed to load lexicon", "error", err, "lexicon_path", cfg.LexiconPath)
		os.Exit(1)
	}
	c := classifier.New(table, classifier.Config{MinLength: cfg.MinLength, MaxLength: cfg.MaxLength})
	tracker := drift.NewTracker(drift.Config{HistorySize: cfg.HistorySize})
	logger.Info("classifier ready",
		"categories", len(table.Categories()),
		"patterns", table.PatternCount(),
		"min_length", cfg.MinLength,
		"max_length", cfg.MaxLength,
	)

	db, err := database.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbMetrics := metrics.NewDatabaseMetrics(serviceName)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dbMetrics.UpdateDBStats(db.Conn())
			}
		}
	}()
	classifierMetrics := metrics.NewClassifierMetrics(serviceName)

	opts := api.Options{
		DB:         db,
		Classifier: c,
		Tracker:    tracker,
		Metrics:    classifierMetrics,
		Logger:     logger,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	}

	var worker *queue.Worker
	if cfg.RedisAddr != "" {
		queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr})
		defer queueClient.Close()
		opts.Queue = queueClient

		worker = queue.NewWorker(queue.WorkerConfig{
			RedisAddr:   cfg.RedisAddr,
			Concurrency: cfg.Concurrency,
		}, db, c, tracker, classifierMetrics)
		go func() {
			if err := worker.Start(); err != nil {
				logger.Error("queue worker stopped", "error", err)
			}
		}()
	} else {
		logger.Info("REDIS_ADDR not set, batch queue disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildHandler(logger, opts),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("aletheia service starting",
			"port", cfg.Port,
			"database", db.Driver(),
			"queue_enabled", worker != nil,
			"rate_limit_rps", cfg.RateLimit,
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if worker != nil {
		worker.Shutdown()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildHandler wraps the API with the middleware chain: HTTP logging -> tracing -> handlers
func buildHandler(logger *slog.Logger, opts api.Options) http.Handler {
	return logging.HTTPLoggingMiddleware(logger)(
		tracing.HTTPMiddleware(serviceName)(api.NewHandler(opts)),
	)
}
