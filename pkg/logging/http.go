package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zombar/aletheia/pkg/tracing"
)

// UserHeader carries the caller's identity. It is logged, never trusted for
// anything beyond ownership of stored analyses.
const UserHeader = "X-User-ID"

// statusRecorder remembers the first status written and counts body bytes
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
}

func (sr *statusRecorder) WriteHeader(status int) {
	if !sr.wroteHeader {
		sr.status = status
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// levelFor logs client errors as warnings and server errors as errors
func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// requestAttrs identify a request in every log line about it
func requestAttrs(r *http.Request, extra ...slog.Attr) []slog.Attr {
	ctx := r.Context()
	return append([]slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_id", r.Header.Get(UserHeader)),
		slog.String("trace_id", tracing.TraceIDFromContext(ctx)),
		slog.String("span_id", tracing.SpanIDFromContext(ctx)),
	}, extra...)
}

// HTTPLoggingMiddleware writes one http_request line per request, at a level
// that follows the response status
func HTTPLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			logger.LogAttrs(r.Context(), levelFor(rec.status), "http_request", requestAttrs(r,
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
				slog.String("protocol", r.Proto),
			)...)
		})
	}
}

// HTTPErrorLogger records the error behind a failed response
func HTTPErrorLogger(logger *slog.Logger, statusCode int, err error, r *http.Request) {
	logger.LogAttrs(r.Context(), levelFor(statusCode), "http_error", requestAttrs(r,
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("remote_addr", r.RemoteAddr),
	)...)
}

// LogRequest logs an application event in the context of a request
func LogRequest(logger *slog.Logger, r *http.Request, msg string, attrs ...slog.Attr) {
	logger.LogAttrs(r.Context(), slog.LevelInfo, msg, requestAttrs(r, attrs...)...)
}
