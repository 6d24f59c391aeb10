package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tunecrate/tunecrate/internal/b2"
	"github.com/tunecrate/tunecrate/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const routerTestKey = "router-test-key"

// fakeGateway satisfies Store with canned data for router-level tests.
type fakeGateway struct{}

func (fakeGateway) ListFiles(ctx context.Context) ([]b2.FileInfo, error) {
	return []b2.FileInfo{
		{ID: "id-1", Name: "Rock/anthem.mp3", ContentLength: 9, UploadTimestamp: 1700000000000},
	}, nil
}

func (fakeGateway) Upload(ctx context.Context, fileName, contentType string, data []byte) (*b2.UploadResult, error) {
	return &b2.UploadResult{FileID: "fid", FileName: fileName}, nil
}

func (fakeGateway) Delete(ctx context.Context, fileName, fileID string) error {
	return nil
}

func (fakeGateway) OpenDownload(ctx context.Context, fileName, rangeHeader string) (*http.Response, error) {
	header := make(http.Header)
	header.Set("Content-Type", "audio/mpeg")
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("mp3-bytes")),
	}, nil
}

func routerTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 3002, BaseURL: "http://localhost:3002"},
		B2: config.B2Config{
			KeyID: "k", ApplicationKey: "a", BucketID: "b", BucketName: "n",
			AuthURL: "http://unused", SessionTTL: 23 * time.Hour,
		},
		Auth:   config.AuthConfig{APIKey: routerTestKey},
		Upload: config.UploadConfig{MaxSizeMB: 50, DefaultAlbum: "Uncategorized"},
		Security: config.SecurityConfig{
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			},
			RateLimiting: config.RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 10000,
				Burst:             1000,
			},
		},
		Logging:   config.LoggingConfig{Level: "error", Format: "text"},
		Telemetry: config.TelemetryConfig{ServiceName: "tunecrate"},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	router, bg := NewRouter(routerTestConfig(), fakeGateway{})
	t.Cleanup(bg.Shutdown)
	return router
}

func get(t *testing.T, r *gin.Engine, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Unauthenticated surface
// ---------------------------------------------------------------------------

func TestRouter_HealthIsUnauthenticated(t *testing.T) {
	w := get(t, newTestRouter(t), "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"status":"ok"`) || !strings.Contains(body, `"service":"tunecrate"`) {
		t.Errorf("body = %s", body)
	}
}

func TestRouter_VersionIsUnauthenticated(t *testing.T) {
	w := get(t, newTestRouter(t), "/version", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// ---------------------------------------------------------------------------
// API key gate across the API surface
// ---------------------------------------------------------------------------

func TestRouter_APIRoutesRequireKey(t *testing.T) {
	r := newTestRouter(t)

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/songs"},
		{http.MethodPost, "/api/upload"},
		{http.MethodDelete, "/api/songs/x.mp3?fileId=1"},
		{http.MethodGet, "/api/stream/x.mp3"},
	}

	for _, tt := range targets {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401 without a key", w.Code)
			}
		})
	}
}

func TestRouter_WrongKeyReturns403(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/songs", map[string]string{"X-API-Key": "nope"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestRouter_HeaderKeyGrantsAccess(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/songs", map[string]string{"X-API-Key": routerTestKey})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"album":"Rock"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRouter_QueryKeyGrantsStreamAccess(t *testing.T) {
	// <audio src> can only carry the key in the URL.
	w := get(t, newTestRouter(t), "/api/stream/Rock/anthem.mp3?apiKey="+routerTestKey, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "mp3-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRouter_StreamWildcardKeepsSlashes(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/stream/My%20Album/track.mp3", map[string]string{"X-API-Key": routerTestKey})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for slash-bearing file name", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Cross-cutting middleware
// ---------------------------------------------------------------------------

func TestRouter_SetsRequestIDAndSecurityHeaders(t *testing.T) {
	w := get(t, newTestRouter(t), "/health", nil)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing from response")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options missing from response")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/songs", nil)
	req.Header.Set("Origin", "http://player.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "X-API-Key, Range")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	allowed := w.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(allowed, "X-API-Key") || !strings.Contains(allowed, "Range") {
		t.Errorf("Access-Control-Allow-Headers = %q, want X-API-Key and Range", allowed)
	}
}

// ---------------------------------------------------------------------------
// redactQuery
// ---------------------------------------------------------------------------

func TestRedactQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stream/a.mp3?apiKey=secret&x=1", nil)
	got := redactQuery(req.URL.Query())
	if strings.Contains(got, "secret") {
		t.Errorf("redacted query %q still contains the key", got)
	}
	if !strings.Contains(got, "apiKey=REDACTED") || !strings.Contains(got, "x=1") {
		t.Errorf("redacted query = %q", got)
	}
}
