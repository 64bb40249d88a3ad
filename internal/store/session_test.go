package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSessionRepository_CreateGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess := &Session{ID: "session-1", Channels: []string{"left", "right", "shoot"}}
	if err := repo.Create(sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if sess.StartedAt.IsZero() {
		t.Error("StartedAt should be set after create")
	}

	got, err := repo.GetByID("session-1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if diff := cmp.Diff(sess.Channels, got.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if !got.StartedAt.Equal(sess.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, sess.StartedAt)
	}
	if !got.Active() {
		t.Error("new session should be active")
	}
}

func TestSessionRepository_Create_Duplicate(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if err := repo.Create(&Session{ID: "dup"}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := repo.Create(&Session{ID: "dup"}); err == nil {
		t.Error("expected error for duplicate session id")
	}
}

func TestSessionRepository_End(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if err := repo.Create(&Session{ID: "s1"}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	end := time.Now().Add(time.Minute)
	if err := repo.End("s1", end); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, err := repo.GetByID("s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Active() || !got.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, end)
	}

	// Ending twice or ending an unknown session is not found.
	if err := repo.End("s1", end); !errors.Is(err, ErrNotFound) {
		t.Errorf("second End() error = %v, want ErrNotFound", err)
	}
	if err := repo.End("nope", end); !errors.Is(err, ErrNotFound) {
		t.Errorf("End(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		err := repo.Create(&Session{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("failed to create session %s: %v", id, err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids []string
	for _, sess := range all {
		ids = append(ids, sess.ID)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	two, err := repo.List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(two) != 2 || two[0].ID != "c" {
		t.Errorf("List(2) = %d sessions, first %v", len(two), two)
	}
}

func TestSessionRepository_EndStale(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Create(&Session{ID: id}); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
	}
	if err := repo.End("b", time.Now()); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	n, err := repo.EndStale(time.Now())
	if err != nil {
		t.Fatalf("EndStale() error = %v", err)
	}
	if n != 2 {
		t.Errorf("EndStale() closed %d sessions, want 2", n)
	}
}

func TestSessionRepository_Delete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Sessions().Create(&Session{ID: "s1"}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := s.Edges().Record(&Edge{SessionID: "s1", Channel: "left", Kind: EdgeRise}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if err := s.Sessions().Delete("s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Sessions().GetByID("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete = %v, want ErrNotFound", err)
	}

	// Edges go with their session.
	edges, err := s.Edges().ListBySession("s1", 0)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("%d edges survived session delete", len(edges))
	}

	if err := s.Sessions().Delete("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Sessions().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
