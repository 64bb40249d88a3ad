// Package server provides the debug HTTP server for gesturepad: health,
// live channel state, the camera stream and the session history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/gesturepad/internal/app"
	"github.com/ayusman/gesturepad/internal/gesture"
	"github.com/ayusman/gesturepad/internal/plugin"
	"github.com/ayusman/gesturepad/internal/server/api"
	"github.com/ayusman/gesturepad/internal/store"
)

// Host is the application the server reports on. *app.App implements it.
type Host interface {
	Status() app.Status
	Pipeline() *gesture.Pipeline
	IsEnabled() bool
	SetEnabled(enabled bool) error
	PluginManager() *plugin.Manager
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Host      Host
}

// Server represents the HTTP server for the gesturepad application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	start   time.Time
	signals *SignalsHandler

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		sessionHandler := api.NewSessionHandler(s.config.Store)
		edgesHandler := api.NewEdgesHandler(s.config.Store)

		// Route between the sessions and edges handlers
		sessionRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/edges") {
				edgesHandler.ServeHTTP(w, r)
				return
			}
			sessionHandler.ServeHTTP(w, r)
		})

		s.mux.Handle("/api/sessions", sessionRouter)
		s.mux.Handle("/api/sessions/", sessionRouter)
	}

	if s.config.Host != nil {
		host := s.config.Host
		s.mux.HandleFunc("/api/channels", s.handleChannels)
		s.mux.Handle("/api/control", api.NewControlHandler(host))
		s.mux.Handle("/api/plugins", api.NewPluginHandler(host))
		s.mux.Handle("/api/stream", NewStreamHandler(host.Pipeline))
		s.mux.Handle("/api/snapshot", NewSnapshotHandler(host.Pipeline))

		s.signals = NewSignalsHandler(host.Status)
		s.mux.Handle("/api/signals", s.signals)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Enabled    bool   `json:"enabled"`
	Running    bool   `json:"running"`
	CaptureErr string `json:"capture_error,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Host != nil {
		st := s.config.Host.Status()
		response.Enabled = st.Enabled
		response.Running = st.Running
		response.CaptureErr = st.CaptureErr
		if st.CaptureErr != "" {
			response.Status = "degraded"
		}
	}

	writeJSON(w, response)
}

// handleChannels handles GET requests to /api/channels.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.Host.Status())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the signal broadcaster and gracefully stops the HTTP
// server. Streaming responses end when their requests are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.signals != nil {
		s.signals.Close()
	}

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
