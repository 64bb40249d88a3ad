package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultCaptureInterval caps capture at roughly 33 frames per second.
const DefaultCaptureInterval = 30 * time.Millisecond

// CaptureLoop reads frames from a Camera on a fixed cadence and publishes
// each one into a FrameSlot. It is the only writer of the slot.
type CaptureLoop struct {
	camera   Camera
	slot     *FrameSlot
	interval time.Duration
	preview  Preview
	seq      uint64
	empty    uint64
}

// NewCaptureLoop creates a loop feeding slot from camera. A non-positive
// interval selects DefaultCaptureInterval.
func NewCaptureLoop(camera Camera, slot *FrameSlot, interval time.Duration) *CaptureLoop {
	if interval <= 0 {
		interval = DefaultCaptureInterval
	}
	return &CaptureLoop{
		camera:   camera,
		slot:     slot,
		interval: interval,
	}
}

// SetPreview sets a preview that is shown every captured frame. Must be
// called before Run.
func (l *CaptureLoop) SetPreview(p Preview) {
	l.preview = p
}

// Run captures until ctx is cancelled or the camera fails. Cancellation
// returns nil. Empty frames, which devices deliver while warming up, are
// skipped. Any other read failure ends the loop for good and is returned;
// frames already published stay in the slot. Nothing is published once ctx
// is cancelled.
func (l *CaptureLoop) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture panic: %v", r)
		}
	}()

	pacer := NewPacer(l.interval)
	for {
		if ctx.Err() != nil {
			return nil
		}

		mat, err := l.camera.ReadFrame()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrEmptyFrame):
			l.empty++
			if l.empty == 1 {
				log.Printf("capture: camera returned an empty frame, skipping")
			}
			if !pacer.Wait(ctx) {
				return nil
			}
			continue
		default:
			return fmt.Errorf("read frame %d: %w", l.seq+1, err)
		}

		if ctx.Err() != nil {
			mat.Close()
			return nil
		}

		l.seq++
		f := NewFrame(*mat, l.seq, time.Now())
		if l.preview != nil {
			l.preview.Show(f)
		}
		l.slot.Publish(f)

		if !pacer.Wait(ctx) {
			return nil
		}
	}
}

// Skipped returns the number of empty frames skipped. Only meaningful
// after Run has returned.
func (l *CaptureLoop) Skipped() uint64 {
	return l.empty
}

// Captured returns the number of frames captured. Only meaningful after
// Run has returned.
func (l *CaptureLoop) Captured() uint64 {
	return l.seq
}
