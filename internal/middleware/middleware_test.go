package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"falldetector/internal/config"
	"falldetector/internal/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func TestCORS_Wildcard(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, expected *", got)
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Status = %d, expected 200", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/video_feed", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("Status = %d, expected 204", rr.Code)
	}
	if called {
		t.Error("Preflight should not reach the handler")
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Missing Allow-Methods header")
	}
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	h := CORS([]string{"http://nurse.local"})(http.HandlerFunc(okHandler))

	tests := []struct {
		origin   string
		expected string
	}{
		{"http://nurse.local", "http://nurse.local"},
		{"http://evil.example", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/predict", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.expected {
			t.Errorf("origin %q: Allow-Origin = %q, expected %q", tt.origin, got, tt.expected)
		}
	}
}

func TestOriginAllowed(t *testing.T) {
	if !OriginAllowed([]string{"http://a.local/"}, "http://a.local") {
		t.Error("Trailing slash in config should still match")
	}
	if OriginAllowed(nil, "http://a.local") {
		t.Error("Empty list should not allow anything")
	}
}

func TestAllowMethods(t *testing.T) {
	h := AllowMethods(logger.NewDiscard(), okHandler, http.MethodGet)

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/predict", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("GET status = %d, expected 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/predict", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, expected 405", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodGet {
		t.Errorf("Allow = %q", rr.Header().Get("Allow"))
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodHead, "/predict", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("HEAD status = %d, expected 405", rr.Code)
	}
}

// brokenWriter fails every body write.
type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header { return b.header }

func (b *brokenWriter) WriteHeader(int) {}

func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestAllowMethods_LogsWriteFailure(t *testing.T) {
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	log, err := logger.NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer log.Close()

	h := AllowMethods(log, okHandler, http.MethodGet)
	h(&brokenWriter{header: http.Header{}}, httptest.NewRequest(http.MethodPost, "/predict", nil))

	data, err := os.ReadFile(filepath.Join(cfg.LogDirectory, "error.log"))
	if err != nil {
		t.Fatalf("Failed to read error.log: %v", err)
	}
	if !strings.Contains(string(data), "connection reset") {
		t.Errorf("Expected write failure in error.log, got %q", data)
	}
}

func TestLogging_RecordsStatus(t *testing.T) {
	h := Logging(logger.NewDiscard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusTeapot {
		t.Errorf("Status = %d, expected 418", rr.Code)
	}
}

func TestStatusRecorder_Flushes(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: rr}

	var w http.ResponseWriter = rec
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("statusRecorder should implement http.Flusher")
	}
	rec.Write([]byte("part"))
	flusher.Flush()

	if !rr.Flushed {
		t.Error("Flush was not forwarded")
	}
	if rec.status != http.StatusOK {
		t.Errorf("status = %d, expected 200", rec.status)
	}
}
