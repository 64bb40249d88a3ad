package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/ayusman/gesturepad/internal/plugin"
)

// Toggler turns gesture detection on and off.
type Toggler interface {
	IsEnabled() bool
	SetEnabled(enabled bool) error
}

// ControlHandler handles HTTP requests for the detection switch.
type ControlHandler struct {
	target Toggler
}

// NewControlHandler creates a new ControlHandler for target.
func NewControlHandler(target Toggler) *ControlHandler {
	return &ControlHandler{target: target}
}

type controlRequest struct {
	Enabled *bool `json:"enabled"`
}

type controlResponse struct {
	Enabled bool `json:"enabled"`
}

// ServeHTTP handles GET and PUT /api/control.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, controlResponse{Enabled: h.target.IsEnabled()})

	case http.MethodPut, http.MethodPost:
		var req controlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		if err := h.target.SetEnabled(*req.Enabled); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, controlResponse{Enabled: h.target.IsEnabled()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// PluginSource exposes the current plugin manager.
type PluginSource interface {
	PluginManager() *plugin.Manager
}

// PluginHandler lists the discovered plugins.
type PluginHandler struct {
	source PluginSource
}

// NewPluginHandler creates a new PluginHandler.
func NewPluginHandler(source PluginSource) *PluginHandler {
	return &PluginHandler{source: source}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
	// Skipped maps plugin directories that failed to load to the reason.
	Skipped map[string]string `json:"skipped,omitempty"`
}

// ServeHTTP handles GET /api/plugins.
func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mgr := h.source.PluginManager()
	plugins := mgr.List()
	response := listPluginsResponse{
		Plugins: make([]pluginResponse, 0, len(plugins)),
	}
	if skipped := mgr.Skipped(); len(skipped) > 0 {
		response.Skipped = make(map[string]string, len(skipped))
		for dir, err := range skipped {
			response.Skipped[dir] = err.Error()
		}
	}
	for _, p := range plugins {
		actions := append([]string{}, p.Manifest.Actions...)
		sort.Strings(actions)
		response.Plugins = append(response.Plugins, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     actions,
		})
	}

	writeJSON(w, http.StatusOK, response)
}
