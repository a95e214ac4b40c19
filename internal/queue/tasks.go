package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/database"
	"github.com/zombar/aletheia/internal/drift"
	"github.com/zombar/aletheia/internal/models"
	"github.com/zombar/aletheia/pkg/tracing"
)

// handleClassify classifies a queued text, stores the record and, when the
// task names a subject, records drift
func (w *Worker) handleClassify(ctx context.Context, t *asynq.Task) error {
	var payload ClassifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		w.metrics.ObserveTask(TypeClassify, "invalid")
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	var queueWaitTime time.Duration
	if payload.EnqueuedAt > 0 {
		queueWaitTime = time.Since(time.Unix(0, payload.EnqueuedAt))
	}

	ctx, span := continueTrace(ctx, payload, queueWaitTime)
	defer span.End()

	logger := w.logger.With(
		"analysis_id", payload.AnalysisID,
		"trace_id", tracing.TraceIDFromContext(ctx),
	)
	logger.Info("classifying queued text",
		"text_length", len(payload.Text),
		"subject_id", payload.SubjectID,
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	if payload.AnalysisID == "" {
		w.metrics.ObserveTask(TypeClassify, "invalid")
		return fmt.Errorf("task has no analysis id: %w", asynq.SkipRetry)
	}

	// a retry after a failed drift write must not store the record twice
	if _, err := w.db.GetAnalysis(ctx, payload.AnalysisID); err == nil {
		logger.Info("analysis already stored, skipping")
		w.metrics.ObserveTask(TypeClassify, "duplicate")
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to check analysis: %w", err)
	}

	start := time.Now()
	result, err := w.classifier.Analyze(payload.Text)
	if err != nil {
		tracing.RecordError(ctx, err)
		w.metrics.ObserveRejected(rejectReason(err))
		w.metrics.ObserveTask(TypeClassify, "invalid")
		logger.Warn("queued text rejected", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	w.metrics.ObserveClassification(result.Status, result.Flagged, result.Stats.Characters, time.Since(start))
	span.SetAttributes(
		attribute.String("classification.status", result.Status),
		attribute.Bool("classification.flagged", result.Flagged),
	)

	analysis := &models.Analysis{
		ID:        payload.AnalysisID,
		OwnerID:   payload.OwnerID,
		SubjectID: payload.SubjectID,
		Text:      payload.Text,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.db.SaveAnalysis(ctx, analysis); err != nil {
		w.metrics.ObserveTask(TypeClassify, "error")
		if isRetriableError(err) {
			logger.Warn("retriable database error, will retry", "error", err)
			return err
		}
		logger.Error("permanent error saving analysis", "error", err)
		return fmt.Errorf("failed to save analysis: %v: %w", err, asynq.SkipRetry)
	}

	if payload.SubjectID != "" {
		if err := w.trackDrift(ctx, payload.SubjectID, result); err != nil {
			// the record is stored; drift history is best effort here
			logger.Error("failed to record drift", "error", err, "subject_id", payload.SubjectID)
		}
	}

	w.metrics.ObserveTask(TypeClassify, "success")
	logger.Info("queued classification completed", "status", result.Status)
	return nil
}

func (w *Worker) trackDrift(ctx context.Context, subjectID string, result models.Classification) error {
	ctx, span := tracing.StartSpan(ctx, "drift.track", attribute.String("subject.id", subjectID))
	defer span.End()

	if _, err := w.tracker.Warm(ctx, w.db, subjectID); err != nil {
		return fmt.Errorf("failed to load drift history: %w", err)
	}
	d, snap := w.tracker.Track(subjectID, result)
	w.metrics.ObserveDrift(d.Direction)
	span.SetAttributes(attribute.String("drift.direction", d.Direction))

	return w.db.SaveSnapshot(ctx, &snap)
}

// continueTrace starts the consumer span, parented on the enqueuing request
// when the payload carries its ids
func continueTrace(ctx context.Context, payload ClassifyPayload, wait time.Duration) (context.Context, trace.Span) {
	if payload.TraceID != "" && payload.SpanID != "" {
		traceID, terr := trace.TraceIDFromHex(payload.TraceID)
		spanID, serr := trace.SpanIDFromHex(payload.SpanID)
		if terr == nil && serr == nil {
			remote := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    traceID,
				SpanID:     spanID,
				TraceFlags: trace.FlagsSampled,
				Remote:     true,
			})
			ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
		}
	}

	ctx, span := otel.Tracer(tracing.TracerName).Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("task.type", TypeClassify),
			attribute.String("analysis.id", payload.AnalysisID),
			attribute.Int("text.length", len(payload.Text)),
			attribute.Float64("queue.wait_time_seconds", wait.Seconds()),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		),
	)
	span.AddEvent("task_processing_started", trace.WithAttributes(
		attribute.Float64("wait_time_seconds", wait.Seconds()),
	))
	return ctx, span
}

func rejectReason(err error) string {
	var lengthErr *classifier.LengthError
	if errors.As(err, &lengthErr) {
		return "length_" + lengthErr.Bound
	}
	return "invalid_input"
}

// isRetriableError separates transient storage failures from permanent ones
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retriablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"database is locked",
		"too many connections",
		"i/o timeout",
		"no such host",
		"network is unreachable",
	}
	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// compile-time check that the database satisfies the drift store
var _ drift.HistoryStore = (*database.DB)(nil)
