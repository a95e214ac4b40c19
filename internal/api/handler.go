package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/database"
	"github.com/zombar/aletheia/internal/drift"
	"github.com/zombar/aletheia/internal/models"
	"github.com/zombar/aletheia/internal/report"
	"github.com/zombar/aletheia/pkg/logging"
	"github.com/zombar/aletheia/pkg/metrics"
	"github.com/zombar/aletheia/pkg/tracing"
)

const (
	// DefaultOwner is used when a request carries no X-User-ID
	DefaultOwner = "anonymous"

	maxBodyBytes = 1 << 20
	dbTimeout    = 30 * time.Second
)

var errTimeout = errors.New("request timeout")

// QueueClient enqueues texts for background classification
type QueueClient interface {
	EnqueueClassify(ctx context.Context, analysisID, ownerID, subjectID, text string) (string, error)
}

// Options wires the handler's dependencies. Queue, Metrics and Logger may be
// nil; RateLimit of zero disables limiting.
type Options struct {
	DB         *database.DB
	Classifier *classifier.Classifier
	Tracker    *drift.Tracker
	Queue      QueueClient
	Metrics    *metrics.ClassifierMetrics
	Logger     *slog.Logger
	RateLimit  float64
	RateBurst  int
}

// Handler handles HTTP requests
type Handler struct {
	db          *database.DB
	classifier  *classifier.Classifier
	tracker     *drift.Tracker
	queueClient QueueClient
	metrics     *metrics.ClassifierMetrics
	logger      *slog.Logger
	validate    *validator.Validate
	mux         *http.ServeMux
}

// NewHandler creates the API handler with CORS and per-client rate limiting
func NewHandler(opts Options) http.Handler {
	h := newHandler(opts)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	limiter := NewRateLimiter(opts.RateLimit, opts.RateBurst)
	return c.Handler(limiter.Middleware(h.mux))
}

func newHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		db:          opts.DB,
		classifier:  opts.Classifier,
		tracker:     opts.Tracker,
		queueClient: opts.Queue,
		metrics:     opts.Metrics,
		logger:      logger,
		validate:    validator.New(),
		mux:         http.NewServeMux(),
	}
	h.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("POST /api/classify", h.handleClassify)
	h.mux.HandleFunc("POST /api/drift", h.handleDrift)
	h.mux.HandleFunc("GET /api/drift/{subject}", h.handleDriftHistory)
	h.mux.HandleFunc("DELETE /api/drift/{subject}", h.handleDriftReset)
	h.mux.HandleFunc("POST /api/batch", h.handleBatch)
	h.mux.HandleFunc("GET /api/analyses", h.handleListAnalyses)
	h.mux.HandleFunc("GET /api/analyses/{id}", h.handleGetAnalysis)
	h.mux.HandleFunc("DELETE /api/analyses/{id}", h.handleDeleteAnalysis)
	h.mux.HandleFunc("GET /api/analyses/{id}/report", h.handleReport)
	h.mux.HandleFunc("GET /api/stats", h.handleStats)
	h.mux.HandleFunc("GET /api/lexicon", h.handleLexicon)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

type classifyRequest struct {
	Text      string `json:"text" validate:"required"`
	SubjectID string `json:"subject_id" validate:"omitempty,max=128"`
	Persist   *bool  `json:"persist"`
}

type classifyResponse struct {
	ID     string                `json:"id,omitempty"`
	Result models.Classification `json:"result"`
	Drift  *models.Drift         `json:"drift,omitempty"`
}

// handleClassify classifies a text and tracks drift when a subject is named.
// Unless persist is false the analysis and its drift snapshot are stored;
// a failure to track drift rolls the stored analysis back.
func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.classify(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := classifyResponse{Result: result}
	owner := ownerFrom(r)
	persist := req.Persist == nil || *req.Persist

	if persist {
		analysis := &models.Analysis{
			ID:        uuid.NewString(),
			OwnerID:   owner,
			SubjectID: req.SubjectID,
			Text:      req.Text,
			Result:    result,
			CreatedAt: time.Now().UTC(),
		}
		_, err := withTimeout(r.Context(), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.db.SaveAnalysis(ctx, analysis)
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.ID = analysis.ID
	}

	if req.SubjectID != "" {
		d, err := h.trackDrift(r.Context(), req.SubjectID, result, persist)
		if err != nil {
			if resp.ID != "" {
				h.rollback(r, resp.ID, owner)
			}
			h.fail(w, r, err)
			return
		}
		resp.Drift = &d
	}

	logging.LogRequest(h.logger, r, "text classified",
		slog.String("analysis_id", resp.ID),
		slog.String("status", result.Status),
		slog.Bool("flagged", result.Flagged),
	)
	respondJSON(w, resp, http.StatusOK)
}

type driftRequest struct {
	SubjectID string `json:"subject_id" validate:"required,max=128"`
	Text      string `json:"text" validate:"required"`
}

// handleDrift classifies a text and records it against the subject's history
func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	var req driftRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.classify(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	d, err := h.trackDrift(r.Context(), req.SubjectID, result, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, map[string]any{
		"subject_id": req.SubjectID,
		"drift":      d,
		"result":     result,
	}, http.StatusOK)
}

// handleDriftHistory returns a subject's snapshots, oldest first, with a
// summary of them
func (h *Handler) handleDriftHistory(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")

	_, err := withTimeout(r.Context(), func(ctx context.Context) (bool, error) {
		return h.tracker.Warm(ctx, h.db, subject)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history := h.tracker.History(subject)
	respondJSON(w, map[string]any{
		"subject_id": subject,
		"size":       len(history),
		"history":    history,
		"stats":      h.tracker.Stats(subject),
	}, http.StatusOK)
}

// handleDriftReset forgets a subject's history in memory and in storage
func (h *Handler) handleDriftReset(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")

	h.tracker.Reset(subject)
	if _, err := withTimeout(r.Context(), func(ctx context.Context) (int64, error) {
		return h.db.DeleteSnapshots(ctx, subject)
	}); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	Texts     []string `json:"texts" validate:"required,min=1,max=100,dive,required"`
	SubjectID string   `json:"subject_id" validate:"omitempty,max=128"`
}

type batchJob struct {
	AnalysisID string `json:"analysis_id"`
	TaskID     string `json:"task_id"`
}

// handleBatch queues texts for background classification
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	if h.queueClient == nil {
		respondError(w, "batch queue is not configured", http.StatusServiceUnavailable)
		return
	}

	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}

	// reject the whole batch up front rather than half-queue it
	for i, text := range req.Texts {
		if err := h.classifier.ValidateText(text); err != nil {
			h.metrics.ObserveRejected(rejectReason(err))
			h.failAt(w, r, err, i)
			return
		}
	}

	tracing.SetSpanAttributes(r.Context(), attribute.Int("batch.size", len(req.Texts)))

	owner := ownerFrom(r)
	jobs := make([]batchJob, 0, len(req.Texts))
	for _, text := range req.Texts {
		id := uuid.NewString()
		taskID, err := h.queueClient.EnqueueClassify(r.Context(), id, owner, req.SubjectID, text)
		if err != nil {
			logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
			respondJSON(w, map[string]any{
				"error":  "failed to enqueue batch",
				"queued": jobs,
			}, http.StatusInternalServerError)
			return
		}
		jobs = append(jobs, batchJob{AnalysisID: id, TaskID: taskID})
	}

	respondJSON(w, map[string]any{
		"status": "queued",
		"jobs":   jobs,
	}, http.StatusAccepted)
}

// handleListAnalyses lists the caller's analyses with pagination
func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 10
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	owner := ownerFrom(r)
	analyses, err := withTimeout(r.Context(), func(ctx context.Context) ([]*models.Analysis, error) {
		return h.db.ListAnalyses(ctx, owner, limit, offset)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, analyses, http.StatusOK)
}

// handleGetAnalysis returns one of the caller's analyses
func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.ownedAnalysis(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, analysis, http.StatusOK)
}

// handleDeleteAnalysis deletes one of the caller's analyses
func (h *Handler) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	owner := ownerFrom(r)

	_, err := withTimeout(r.Context(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.db.DeleteAnalysis(ctx, id, owner)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleReport renders one of the caller's analyses
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.ownedAnalysis(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body, contentType, err := report.Render(r.URL.Query().Get("format"), analysis)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleStats aggregates the caller's analyses
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	stats, err := withTimeout(r.Context(), func(ctx context.Context) (*models.Stats, error) {
		return h.db.Stats(ctx, owner)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, map[string]any{
		"analyses":         stats,
		"tracked_subjects": h.tracker.Subjects(),
	}, http.StatusOK)
}

type lexiconCategory struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Override    bool    `json:"override,omitempty"`
	Patterns    int     `json:"patterns"`
}

// handleLexicon describes the loaded category table
func (h *Handler) handleLexicon(w http.ResponseWriter, r *http.Request) {
	table := h.classifier.Table()
	cats := make([]lexiconCategory, 0, len(table.Categories()))
	for _, c := range table.Categories() {
		cats = append(cats, lexiconCategory{
			Name:        c.Name,
			Description: c.Description,
			Weight:      c.Weight,
			Override:    c.Override,
			Patterns:    len(c.Patterns),
		})
	}

	respondJSON(w, map[string]any{
		"categories": cats,
		"patterns":   table.PatternCount(),
		"formats":    report.Formats(),
	}, http.StatusOK)
}

// classify validates and classifies text under a span, recording metrics
func (h *Handler) classify(ctx context.Context, text string) (models.Classification, error) {
	ctx, span := tracing.StartSpan(ctx, "classifier.classify",
		attribute.Int("text.length", len(text)))
	defer span.End()

	start := time.Now()
	result, err := h.classifier.Analyze(text)
	if err != nil {
		tracing.RecordError(ctx, err)
		h.metrics.ObserveRejected(rejectReason(err))
		return result, err
	}

	h.metrics.ObserveClassification(result.Status, result.Flagged, result.Stats.Characters, time.Since(start))
	span.SetAttributes(
		attribute.String("classification.status", result.Status),
		attribute.String("classification.risk_level", result.RiskLevel),
		attribute.Bool("classification.flagged", result.Flagged),
		attribute.Int("classification.matches", len(result.Matches)),
	)
	return result, nil
}

// trackDrift loads persisted history if needed and records the result. The
// new snapshot is stored only when persist is set.
func (h *Handler) trackDrift(ctx context.Context, subjectID string, result models.Classification, persist bool) (models.Drift, error) {
	ctx, span := tracing.StartSpan(ctx, "drift.track",
		attribute.String("subject.id", subjectID))
	defer span.End()

	return withTimeout(ctx, func(ctx context.Context) (models.Drift, error) {
		if _, err := h.tracker.Warm(ctx, h.db, subjectID); err != nil {
			return models.Drift{}, err
		}
		d, snap := h.tracker.Track(subjectID, result)
		h.metrics.ObserveDrift(d.Direction)
		span.SetAttributes(
			attribute.String("drift.direction", d.Direction),
			attribute.Int("drift.history_size", d.HistorySize),
		)
		if !persist {
			return d, nil
		}
		return d, h.db.SaveSnapshot(ctx, &snap)
	})
}

// rollback removes an analysis stored earlier in a request that then failed.
// It runs even when the request context is already done.
func (h *Handler) rollback(r *http.Request, id, owner string) {
	ctx := context.WithoutCancel(r.Context())
	if _, err := withTimeout(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.db.DeleteAnalysis(ctx, id, owner)
	}); err != nil {
		h.logger.Error("failed to roll back analysis", "analysis_id", id, "error", err)
	}
}

func (h *Handler) ownedAnalysis(r *http.Request) (*models.Analysis, error) {
	id := r.PathValue("id")
	analysis, err := withTimeout(r.Context(), func(ctx context.Context) (*models.Analysis, error) {
		return h.db.GetAnalysis(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if analysis.OwnerID != ownerFrom(r) {
		return nil, database.ErrForbidden
	}
	return analysis, nil
}

// decode reads and validates a JSON body, answering 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "invalid input: malformed JSON body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.metrics.ObserveRejected("invalid_request")
		respondError(w, "invalid input: "+validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func ownerFrom(r *http.Request) string {
	if owner := r.Header.Get(logging.UserHeader); owner != "" {
		return owner
	}
	return DefaultOwner
}

// withTimeout runs fn with the handler's database timeout, answering
// errTimeout if fn has not returned by then
func withTimeout[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, errTimeout
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, map[string]string{
		"error": message,
	}, statusCode)
}
