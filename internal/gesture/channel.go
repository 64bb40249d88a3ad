package gesture

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ayusman/gesturepad/internal/capture"
	"github.com/ayusman/gesturepad/internal/detector"
)

// DefaultDetectInterval is the cadence of every detection loop.
const DefaultDetectInterval = 50 * time.Millisecond

// ChannelSpec declares one named signal.
type ChannelSpec struct {
	Name     string
	Pulse    bool
	Detector detector.Spec
}

// Channel pairs a classifier with its debouncer. Each channel is driven by
// its own detection loop and shares nothing with other channels except the
// frame slot it reads from.
type Channel struct {
	name       string
	classifier detector.Classifier
	debounce   *Debouncer

	ticks      atomic.Uint64
	detections atomic.Uint64
	errors     atomic.Uint64
	lastSeq    atomic.Uint64
	lastFrame  atomic.Int64 // capture time of the last frame seen, unix nanos

	errStreak int
}

// NewChannel creates a channel around an already loaded classifier.
func NewChannel(name string, c detector.Classifier, cfg DebounceConfig, pulse bool) *Channel {
	return &Channel{
		name:       name,
		classifier: c,
		debounce:   NewDebouncer(cfg, pulse),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Output returns the debounced signal.
func (c *Channel) Output() bool { return c.debounce.Output() }

// ConsumePulse takes the pending pulse, if any.
func (c *Channel) ConsumePulse() bool { return c.debounce.ConsumePulse() }

// tick runs one detection step against the latest frame in slot.
func (c *Channel) tick(slot *capture.FrameSlot) bool {
	c.ticks.Add(1)

	detected := false
	if f := slot.Peek(); f != nil {
		c.lastSeq.Store(f.Seq)
		c.lastFrame.Store(f.Timestamp.UnixNano())

		var err error
		detected, err = c.detect(f)
		f.Release()

		if err != nil {
			c.errors.Add(1)
			if c.errStreak == 0 {
				log.Printf("channel %s: detection failed: %v", c.name, err)
			}
			c.errStreak++
			detected = false
		} else {
			if c.errStreak > 0 {
				log.Printf("channel %s: detection recovered after %d failures", c.name, c.errStreak)
			}
			c.errStreak = 0
		}
	}

	if detected {
		c.detections.Add(1)
	}
	return c.debounce.Update(detected)
}

// detect calls the classifier and turns a panic into an error.
func (c *Channel) detect(f *capture.Frame) (detected bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			detected, err = false, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return c.classifier.Detect(f)
}

// run drives the channel until ctx is cancelled.
func (c *Channel) run(ctx context.Context, slot *capture.FrameSlot, interval time.Duration) {
	pacer := capture.NewPacer(interval)
	for ctx.Err() == nil {
		c.tick(slot)
		if !pacer.Wait(ctx) {
			return
		}
	}
}

// ChannelState is a point-in-time view of a channel.
type ChannelState struct {
	Name         string        `json:"name"`
	Output       bool          `json:"output"`
	Score        int           `json:"score"`
	Pulse        bool          `json:"pulse"`
	PulsePending bool          `json:"pulsePending"`
	Ticks        uint64        `json:"ticks"`
	Detections   uint64        `json:"detections"`
	Errors       uint64        `json:"errors"`
	FrameSeq     uint64        `json:"frameSeq"`
	FrameAge     time.Duration `json:"frameAgeNs"`
}

// State returns the current state of the channel.
func (c *Channel) State() ChannelState {
	st := ChannelState{
		Name:         c.name,
		Output:       c.debounce.Output(),
		Score:        c.debounce.Score(),
		Pulse:        c.debounce.Pulse(),
		PulsePending: c.debounce.PulsePending(),
		Ticks:        c.ticks.Load(),
		Detections:   c.detections.Load(),
		Errors:       c.errors.Load(),
		FrameSeq:     c.lastSeq.Load(),
	}
	if ns := c.lastFrame.Load(); ns != 0 {
		st.FrameAge = time.Since(time.Unix(0, ns))
	}
	return st
}
