package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/database"
	"github.com/zombar/aletheia/internal/drift"
	"github.com/zombar/aletheia/pkg/metrics"
)

// retryDelays back off 10s, 1m, 5m; later retries reuse the last delay
var retryDelays = []time.Duration{
	10 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
}

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	db          *database.DB
	classifier  *classifier.Classifier
	tracker     *drift.Tracker
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.ClassifierMetrics
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker. m may be nil.
func NewWorker(
	cfg WorkerConfig,
	db *database.DB,
	c *classifier.Classifier,
	tracker *drift.Tracker,
	m *metrics.ClassifierMetrics,
) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}

	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	serverCfg := asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueClassification: 1,
		},
		RetryDelayFunc:  retryDelay,
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)

			slog.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
				"retry_count", retried,
				"max_retries", maxRetry,
			)
		}),
	}

	w := newWorker(db, c, tracker, m)
	w.server = asynq.NewServer(redisOpt, serverCfg)
	w.concurrency = cfg.Concurrency
	return w
}

// newWorker builds the handler side of a Worker without a Redis connection
func newWorker(db *database.DB, c *classifier.Classifier, tracker *drift.Tracker, m *metrics.ClassifierMetrics) *Worker {
	w := &Worker{
		mux:        asynq.NewServeMux(),
		db:         db,
		classifier: c,
		tracker:    tracker,
		logger:     slog.Default(),
		metrics:    m,
	}
	w.registerHandlers()
	return w
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeClassify, w.handleClassify)
}

// Start starts the worker to begin processing tasks. It blocks.
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queue", QueueClassification,
	)

	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

// Server returns the underlying Asynq server (for testing)
func (w *Worker) Server() *asynq.Server {
	return w.server
}

func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < len(retryDelays) {
		return retryDelays[n]
	}
	return retryDelays[len(retryDelays)-1]
}
