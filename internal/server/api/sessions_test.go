package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/gesturepad/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// seedSession creates a finished session with a left rise and fall and a
// shoot pulse.
func seedSession(t *testing.T, s *store.Store, id string, started time.Time) {
	t.Helper()

	if err := s.Sessions().Create(&store.Session{ID: id, Channels: []string{"left", "shoot"}, StartedAt: started}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	for i, e := range []struct {
		channel string
		kind    store.EdgeKind
	}{
		{"left", store.EdgeRise},
		{"shoot", store.EdgePulse},
		{"left", store.EdgeFall},
	} {
		edge := &store.Edge{SessionID: id, Channel: e.channel, Kind: e.kind, At: started.Add(time.Duration(i) * time.Second)}
		if err := s.Edges().Record(edge); err != nil {
			t.Fatalf("failed to record edge: %v", err)
		}
	}
	if err := s.Sessions().End(id, started.Add(time.Minute)); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}
}

func TestSessionHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	base := time.Now().Add(-time.Hour)
	seedSession(t, s, "older", base)
	seedSession(t, s, "newer", base.Add(10*time.Minute))

	tests := []struct {
		name     string
		url      string
		wantCode int
		wantIDs  []string
	}{
		{name: "newest first", url: "/api/sessions", wantCode: http.StatusOK, wantIDs: []string{"newer", "older"}},
		{name: "limit", url: "/api/sessions?limit=1", wantCode: http.StatusOK, wantIDs: []string{"newer"}},
		{name: "bad limit", url: "/api/sessions?limit=abc", wantCode: http.StatusBadRequest},
		{name: "negative limit", url: "/api/sessions?limit=-2", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var response listSessionsResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			var ids []string
			for _, s := range response.Sessions {
				ids = append(ids, s.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("sessions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSessionHandler_ListEmpty(t *testing.T) {
	handler := NewSessionHandler(newTestStore(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Body.String(); got != "{\"sessions\":[]}\n" {
		t.Errorf("expected empty list, got %q", got)
	}
}

func TestSessionHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	seedSession(t, s, "s1", time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/s1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Active || response.EndedAt == "" {
		t.Errorf("session should be ended: %+v", response)
	}
	if diff := cmp.Diff([]string{"left", "shoot"}, response.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"left": 1, "shoot": 1}, response.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestSessionHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)
	seedSession(t, s, "s1", time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	if _, err := s.Sessions().GetByID("s1"); err != store.ErrNotFound {
		t.Errorf("session should be deleted, got %v", err)
	}
	if edges, _ := s.Edges().ListBySession("s1", 0); len(edges) != 0 {
		t.Errorf("edges should be deleted with the session, got %d", len(edges))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_Methods(t *testing.T) {
	handler := NewSessionHandler(newTestStore(t))

	tests := []struct {
		method string
		url    string
		want   int
	}{
		{http.MethodPost, "/api/sessions", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/sessions/s1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/sessions/s1/other", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.url, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.url, tt.want, rec.Code)
		}
	}
}

func TestEdgesHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewEdgesHandler(s)
	seedSession(t, s, "s1", time.Now().Add(-time.Hour))

	tests := []struct {
		name     string
		url      string
		wantCode int
		want     []string
	}{
		{name: "all", url: "/api/sessions/s1/edges", wantCode: http.StatusOK, want: []string{"left rise", "shoot pulse", "left fall"}},
		{name: "limit", url: "/api/sessions/s1/edges?limit=2", wantCode: http.StatusOK, want: []string{"left rise", "shoot pulse"}},
		{name: "bad limit", url: "/api/sessions/s1/edges?limit=0", wantCode: http.StatusBadRequest},
		{name: "unknown session", url: "/api/sessions/nope/edges", wantCode: http.StatusNotFound},
		{name: "bad path", url: "/api/sessions/s1/edges/x", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var response listEdgesResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.SessionID != "s1" {
				t.Errorf("session_id = %q", response.SessionID)
			}
			var got []string
			for _, e := range response.Edges {
				got = append(got, e.Channel+" "+e.Kind)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("edges mismatch (-want +got):\n%s", diff)
			}
		})
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/s1/edges", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
