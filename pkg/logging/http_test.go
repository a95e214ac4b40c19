package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestHTTPLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusOK, "INFO"},
		{"client error", http.StatusUnprocessableEntity, "WARN"},
		{"server error", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, "json", "debug")

			h := HTTPLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/classify?x=1", nil)
			req.Header.Set(UserHeader, "alice")
			h.ServeHTTP(httptest.NewRecorder(), req)

			entry := decodeLine(t, &buf)
			if entry["msg"] != "http_request" {
				t.Errorf("Expected msg http_request, got %v", entry["msg"])
			}
			if entry["level"] != tt.level {
				t.Errorf("Expected level %s, got %v", tt.level, entry["level"])
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("Expected status %d, got %v", tt.status, entry["status"])
			}
			if entry["bytes"] != float64(4) {
				t.Errorf("Expected 4 bytes, got %v", entry["bytes"])
			}
			if entry["user_id"] != "alice" {
				t.Errorf("Expected user_id alice, got %v", entry["user_id"])
			}
			if entry["query"] != "x=1" {
				t.Errorf("Expected query x=1, got %v", entry["query"])
			}
		})
	}
}

func TestHTTPErrorLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", "info")
	req := httptest.NewRequest(http.MethodGet, "/api/analyses/x", nil)

	HTTPErrorLogger(logger, http.StatusInternalServerError, errors.New("boom"), req)

	entry := decodeLine(t, &buf)
	if entry["error"] != "boom" {
		t.Errorf("Expected error boom, got %v", entry["error"])
	}
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", "info")

	h := HTTPLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entry := decodeLine(t, &buf)
	if entry["status"] != float64(http.StatusAccepted) {
		t.Errorf("Expected status 202, got %v", entry["status"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("Expected level INFO, got %v", entry["level"])
	}
}

func TestHTTPErrorLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", "info")
	req := httptest.NewRequest(http.MethodPost, "/api/classify", nil)
	req.Header.Set(UserHeader, "bob")

	HTTPErrorLogger(logger, http.StatusRequestTimeout, errors.New("slow"), req)

	entry := decodeLine(t, &buf)
	if entry["level"] != "WARN" {
		t.Errorf("Expected level WARN, got %v", entry["level"])
	}
	if entry["user_id"] != "bob" {
		t.Errorf("Expected user_id bob, got %v", entry["user_id"])
	}
}

func TestLogRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", "info")
	req := httptest.NewRequest(http.MethodPost, "/api/classify", nil)

	LogRequest(logger, req, "classified", slog.String("status", "NEUTRAL"))

	entry := decodeLine(t, &buf)
	if entry["msg"] != "classified" || entry["status"] != "NEUTRAL" {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", in, got, want)
		}
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "text", "info").Info("hello")
	if bytes.HasPrefix(buf.Bytes(), []byte("{")) {
		t.Errorf("Expected text output, got %q", buf.String())
	}
}
