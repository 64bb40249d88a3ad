package capture

import (
	"context"
	"time"
)

// Pacer spaces loop iterations on a fixed cadence measured from deadlines
// rather than from the end of each iteration, so work time does not add
// drift. A loop that falls behind restarts its cadence from now instead of
// running a burst of back-to-back iterations to catch up.
type Pacer struct {
	interval time.Duration
	next     time.Time
}

// NewPacer starts a cadence of the given interval at the current time.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, next: time.Now()}
}

// Wait sleeps until the next deadline. It returns false as soon as ctx is
// done, including when it is already done on entry.
func (p *Pacer) Wait(ctx context.Context) bool {
	p.next = p.next.Add(p.interval)

	d := time.Until(p.next)
	if d <= 0 {
		p.next = time.Now()
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Interval returns the cadence of the pacer.
func (p *Pacer) Interval() time.Duration { return p.interval }
