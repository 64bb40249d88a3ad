package app

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/ayusman/gesturepad/internal/store"
)

// defaultPollInterval is roughly one 60 Hz game tick.
const defaultPollInterval = 16 * time.Millisecond

// Event is one edge observed by the poll loop.
type Event struct {
	Channel string         `json:"channel"`
	Kind    store.EdgeKind `json:"kind"`
	At      time.Time      `json:"at"`
}

// signals is the part of the pipeline the poll loop reads.
type signals interface {
	Running() bool
	Channels() []string
	PulseChannels() []string
	IsChannel(name string) bool
	ConsumePulse(name string) bool
}

// edgeTracker turns polled levels into rise and fall edges. A stopped
// source reads as every channel off.
type edgeTracker struct {
	levels map[string]bool
}

func newEdgeTracker() *edgeTracker {
	return &edgeTracker{levels: make(map[string]bool)}
}

// step polls src once and returns the edges since the previous step.
// Channels that disappear from src while on produce a fall.
func (t *edgeTracker) step(src signals, now time.Time) []Event {
	var events []Event
	running := src.Running()
	names := src.Channels()

	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
		on := running && src.IsChannel(name)
		if on == t.levels[name] {
			continue
		}
		t.levels[name] = on
		events = append(events, edge(name, on, now))
	}

	var gone []string
	for name := range t.levels {
		if !present[name] {
			gone = append(gone, name)
		}
	}
	sort.Strings(gone)
	for _, name := range gone {
		if t.levels[name] {
			events = append(events, edge(name, false, now))
		}
		delete(t.levels, name)
	}

	if running {
		for _, name := range src.PulseChannels() {
			if src.ConsumePulse(name) {
				events = append(events, Event{Channel: name, Kind: store.EdgePulse, At: now})
			}
		}
	}
	return events
}

// release returns a fall for every channel that is on, in name order, and
// forgets all levels.
func (t *edgeTracker) release(now time.Time) []Event {
	var held []string
	for name, on := range t.levels {
		if on {
			held = append(held, name)
		}
	}
	sort.Strings(held)

	events := make([]Event, len(held))
	for i, name := range held {
		events[i] = edge(name, false, now)
	}
	t.levels = make(map[string]bool)
	return events
}

func edge(name string, on bool, at time.Time) Event {
	kind := store.EdgeFall
	if on {
		kind = store.EdgeRise
	}
	return Event{Channel: name, Kind: kind, At: at}
}

// poll is the host loop. It reads the current pipeline once per tick and
// handles the edges; on exit it releases every held channel and closes d.
func (a *App) poll(ctx context.Context, interval time.Duration, d *dispatcher, done chan<- struct{}) {
	defer close(done)
	defer d.close()

	if interval <= 0 {
		interval = defaultPollInterval
	}
	tracker := newEdgeTracker()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.handle(tracker.release(time.Now()), d)
			return
		case now := <-ticker.C:
			a.handle(tracker.step(a.pipeline.Load(), now), d)
		}
	}
}

// handle records, announces and dispatches edges in order.
func (a *App) handle(events []Event, d *dispatcher) {
	if len(events) == 0 {
		return
	}

	sessionID := ""
	if id := a.sessionID.Load(); id != nil {
		sessionID = *id
	}
	table := a.bindings.Load()
	r := a.runner.Load()

	for _, ev := range events {
		a.last.Store(&ev)

		if a.store != nil && sessionID != "" {
			e := &store.Edge{SessionID: sessionID, Channel: ev.Channel, Kind: ev.Kind, At: ev.At}
			if err := a.store.Edges().Record(e); err != nil {
				log.Printf("Failed to record %s edge of %s: %v", ev.Kind, ev.Channel, err)
			}
		}

		a.notify(ev)

		for _, b := range table.lookup(ev.Channel, ev.Kind) {
			d.enqueue(job{binding: b, event: ev, runner: r})
		}
	}
}

func (a *App) notify(ev Event) {
	a.listenerMu.RLock()
	defer a.listenerMu.RUnlock()
	for _, fn := range a.listeners {
		fn(ev)
	}
}
