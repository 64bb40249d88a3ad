package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/gesturepad/internal/store"
)

// EdgesHandler handles HTTP requests for the edges of a session.
type EdgesHandler struct {
	store *store.Store
}

// NewEdgesHandler creates a new EdgesHandler with the given store.
func NewEdgesHandler(s *store.Store) *EdgesHandler {
	return &EdgesHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/sessions/{id}/edges
func (h *EdgesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")

	if len(parts) != 2 || parts[1] != "edges" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w, r, parts[0])
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Response types

type edgeResponse struct {
	ID      int64  `json:"id"`
	Channel string `json:"channel"`
	Kind    string `json:"kind"`
	At      string `json:"at"`
}

type listEdgesResponse struct {
	SessionID string         `json:"session_id"`
	Edges     []edgeResponse `json:"edges"`
}

// list handles GET /api/sessions/{id}/edges
func (h *EdgesHandler) list(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := h.store.Sessions().GetByID(sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	// All edges unless a limit is given.
	limit := 0
	if r.URL.Query().Has("limit") {
		n, err := parseLimit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		limit = n
	}

	edges, err := h.store.Edges().ListBySession(sessionID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list edges")
		return
	}

	response := listEdgesResponse{
		SessionID: sessionID,
		Edges:     make([]edgeResponse, 0, len(edges)),
	}
	for _, e := range edges {
		response.Edges = append(response.Edges, edgeResponse{
			ID:      e.ID,
			Channel: e.Channel,
			Kind:    string(e.Kind),
			At:      e.At.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, response)
}
