package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task type constants
const (
	TypeClassify = "aletheia:classify"
)

// QueueClassification is the only queue the worker serves
const QueueClassification = "classification"

// ClassifyPayload represents the payload for a queued classification
type ClassifyPayload struct {
	AnalysisID string `json:"analysis_id"`
	OwnerID    string `json:"owner_id"`
	SubjectID  string `json:"subject_id,omitempty"`
	Text       string `json:"text"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client enqueuer
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
	}
}

// EnqueueClassify enqueues a classification. The analysis ID doubles as the
// task ID so a resubmitted batch cannot classify the same record twice.
func (c *Client) EnqueueClassify(ctx context.Context, analysisID, ownerID, subjectID, text string) (string, error) {
	task, err := newClassifyTask(ctx, analysisID, ownerID, subjectID, text)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue(QueueClassification),
		asynq.Retention(24 * time.Hour),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue classify task: %w", err)
	}

	return info.ID, nil
}

func newClassifyTask(ctx context.Context, analysisID, ownerID, subjectID, text string) (*asynq.Task, error) {
	payload := ClassifyPayload{
		AnalysisID: analysisID,
		OwnerID:    ownerID,
		SubjectID:  subjectID,
		Text:       text,
		EnqueuedAt: time.Now().UnixNano(),
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeClassify),
			attribute.String("analysis_id", analysisID),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	return asynq.NewTask(TypeClassify, payloadBytes, asynq.TaskID(analysisID)), nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
