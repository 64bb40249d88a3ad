package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturepad/internal/app"
	"github.com/ayusman/gesturepad/internal/capture"
	"github.com/ayusman/gesturepad/internal/detector"
	"github.com/ayusman/gesturepad/internal/gesture"
	"github.com/ayusman/gesturepad/internal/plugin"
)

// fakeHost serves a pipeline running on a mock camera.
type fakeHost struct {
	pipeline *gesture.Pipeline
	enabled  bool
	capErr   string
	plugins  *plugin.Manager
}

func (h *fakeHost) Status() app.Status {
	return app.Status{
		Enabled:    h.enabled,
		Running:    h.pipeline.Running(),
		CaptureErr: h.capErr,
		Channels:   h.pipeline.Snapshot(),
	}
}

func (h *fakeHost) Pipeline() *gesture.Pipeline { return h.pipeline }
func (h *fakeHost) IsEnabled() bool { return h.enabled }
func (h *fakeHost) PluginManager() *plugin.Manager { return h.plugins }
func (h *fakeHost) SetEnabled(enabled bool) error {
	h.enabled = enabled
	return nil
}

// newFakeHost builds a stopped pipeline with a left channel that always
// detects, on a 64x48 mock camera.
func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	camera := capture.NewMockCamera([]*gocv.Mat{&frame}, true)

	left := detector.NewMockDetector()
	left.SetResult(true)

	p := gesture.New(gesture.Config{
		Channels:        []gesture.ChannelSpec{{Name: "left"}},
		CaptureInterval: 5 * time.Millisecond,
		DetectInterval:  5 * time.Millisecond,
		Source:          camera,
		Loader: func(detector.Spec) (detector.Classifier, error) {
			return left, nil
		},
	})
	t.Cleanup(p.Stop)

	return &fakeHost{pipeline: p, enabled: true, plugins: plugin.NewManager("")}
}

func (h *fakeHost) start(t *testing.T) {
	t.Helper()
	if err := h.pipeline.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.pipeline.Slot().Published() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no frame published")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s := New(cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func TestServer_Health(t *testing.T) {
	s := newServer(t, Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_HealthReportsPipeline(t *testing.T) {
	host := newFakeHost(t)
	host.start(t)
	s := newServer(t, Config{Host: host})

	tests := []struct {
		name       string
		capErr     string
		wantStatus string
	}{
		{name: "running", wantStatus: "ok"},
		{name: "capture failed", capErr: "camera unplugged", wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host.capErr = tt.capErr

			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			var response healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus || !response.Running || !response.Enabled || response.CaptureErr != tt.capErr {
				t.Errorf("health = %+v", response)
			}
		})
	}
}

func TestServer_Channels(t *testing.T) {
	host := newFakeHost(t)
	host.start(t)
	s := newServer(t, Config{Host: host})

	deadline := time.Now().Add(2 * time.Second)
	for !host.pipeline.IsChannel("left") {
		if time.Now().After(deadline) {
			t.Fatal("left never turned on")
		}
		time.Sleep(2 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status app.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !status.Running || len(status.Channels) != 1 {
		t.Fatalf("status = %+v", status)
	}
	if ch := status.Channels[0]; ch.Name != "left" || !ch.Output || ch.Ticks == 0 {
		t.Errorf("left state = %+v", ch)
	}
}

func TestServer_Snapshot(t *testing.T) {
	host := newFakeHost(t)
	s := newServer(t, Config{Host: host})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before start: expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}

	host.start(t)

	tests := []struct {
		name      string
		url       string
		wantCode  int
		wantWidth int
	}{
		{name: "full size", url: "/api/snapshot", wantCode: http.StatusOK, wantWidth: 64},
		{name: "scaled", url: "/api/snapshot?width=32", wantCode: http.StatusOK, wantWidth: 32},
		{name: "never upscaled", url: "/api/snapshot?width=640", wantCode: http.StatusOK, wantWidth: 64},
		{name: "bad width", url: "/api/snapshot?width=x", wantCode: http.StatusBadRequest},
		{name: "zero width", url: "/api/snapshot?width=0", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %s", ct)
			}
			if rec.Header().Get("X-Frame-Seq") == "" {
				t.Error("missing X-Frame-Seq header")
			}

			img, err := jpeg.Decode(bytes.NewReader(rec.Body.Bytes()))
			if err != nil {
				t.Fatalf("failed to decode JPEG: %v", err)
			}
			if img.Bounds().Dx() != tt.wantWidth {
				t.Errorf("width = %d, want %d", img.Bounds().Dx(), tt.wantWidth)
			}
		})
	}
}

func TestServer_Stream(t *testing.T) {
	host := newFakeHost(t)
	host.start(t)
	s := newServer(t, Config{Host: host})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx))
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end after the request was cancelled")
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %s", ct)
	}
	body := rec.Body.String()
	if n := strings.Count(body, "--frame\r\n"); n == 0 {
		t.Error("stream contains no frames")
	}
	if !strings.Contains(body, "Content-Type: image/jpeg") {
		t.Error("stream parts are not JPEG")
	}

	// Streaming never consumes frames: the slot keeps its latest frame.
	if f := host.pipeline.Slot().Peek(); f == nil {
		t.Error("slot empty after streaming")
	} else {
		f.Release()
	}
}

func TestServer_Control(t *testing.T) {
	host := newFakeHost(t)
	s := newServer(t, Config{Host: host})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/control", strings.NewReader(`{"enabled": false}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if host.enabled {
		t.Error("PUT /api/control did not disable the host")
	}
}

func TestServer_NotFound(t *testing.T) {
	s := newServer(t, Config{})

	for _, path := range []string{"/api/nonexistent", "/api/channels", "/api/sessions", "/api/stream"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := newServer(t, Config{StaticDir: tmpDir})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "serves index.html at root path", path: "/", wantCode: http.StatusOK, wantBody: testContent},
		{name: "serves static files from configured directory", path: "/style.css", wantCode: http.StatusOK, wantBody: cssContent},
		{name: "returns 404 for non-existent static files", path: "/nonexistent.html", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestServer_ListenAndServeShutdown(t *testing.T) {
	s := New(Config{})

	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe("127.0.0.1:0") }()

	// Wait for the listener to be registered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		started := s.http != nil
		s.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}
