package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/gesturepad/internal/config"
)

type fakeReloader struct {
	mu  sync.Mutex
	got []*config.Config
}

func (f *fakeReloader) Reload(cfg *config.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, cfg)
	return nil
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeReloader) last() *config.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[len(f.got)-1]
}

func writeConfig(t *testing.T, path, channel string) {
	t.Helper()
	data := "channels:\n  - name: " + channel + "\n    resource: cascade/" + channel + ".xml\nbindings: []\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gesturepad.yaml")
	writeConfig(t, path, "left")

	target := &fakeReloader{}
	w, err := NewWatcher(path, target)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeConfig(t, path, "jump")

	select {
	case <-w.Reloaded():
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after the config changed")
	}
	if got := target.last().Channels; len(got) != 1 || got[0].Name != "jump" {
		t.Errorf("reloaded channels = %+v", got)
	}

	// Invalid files and other files are ignored.
	n := target.count()
	if err := os.WriteFile(path, []byte("channels: []\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	time.Sleep(3 * reloadDelay)
	if target.count() != n {
		t.Errorf("Reload called %d times for ignored changes", target.count()-n)
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gesturepad.yaml")
	writeConfig(t, path, "left")

	w, err := NewWatcher(path, &fakeReloader{})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "gesturepad.yaml"), &fakeReloader{}); err == nil {
		t.Error("NewWatcher() should fail for a missing directory")
	}
}
