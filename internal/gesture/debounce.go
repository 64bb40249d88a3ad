// Package gesture turns per-frame classifier answers into stable boolean
// control signals and runs the capture and detection loops that produce
// them.
package gesture

import (
	"errors"
	"sync/atomic"
)

// Debounce defaults. A single positive reading lifts the score to 2, which
// is still below the threshold; two in a row turn the output on.
const (
	DefaultMaxScore    = 4
	DefaultOnThreshold = 3
	DefaultRise        = 2
	DefaultDecay       = 1
)

// DebounceConfig tunes a Debouncer.
type DebounceConfig struct {
	Max         int
	OnThreshold int
	Rise        int
	Decay       int
}

// DefaultDebounce returns the standard hysteresis settings.
func DefaultDebounce() DebounceConfig {
	return DebounceConfig{
		Max:         DefaultMaxScore,
		OnThreshold: DefaultOnThreshold,
		Rise:        DefaultRise,
		Decay:       DefaultDecay,
	}
}

// Validate checks that the settings describe a working hysteresis.
func (c DebounceConfig) Validate() error {
	switch {
	case c.Max <= 0:
		return errors.New("debounce: max must be positive")
	case c.OnThreshold <= 0 || c.OnThreshold > c.Max:
		return errors.New("debounce: on threshold must be in (0, max]")
	case c.Rise <= 0:
		return errors.New("debounce: rise must be positive")
	case c.Decay <= 0:
		return errors.New("debounce: decay must be positive")
	}
	return nil
}

// Debouncer smooths a noisy per-tick detection into a stable output.
//
// A positive reading adds Rise to a score clamped to [0, Max], a negative
// one subtracts Decay. The output is on while score >= OnThreshold. With
// pulses enabled, every off-to-on transition latches a one-shot pulse that
// ConsumePulse clears.
//
// Update must only be called from the goroutine that owns the debouncer.
// Output, Score, PulsePending and ConsumePulse are safe from any goroutine.
type Debouncer struct {
	cfg   DebounceConfig
	pulse bool

	score   atomic.Int32
	out     atomic.Bool
	pending atomic.Bool

	lastOut bool
}

// NewDebouncer returns a debouncer starting at score 0 with the output off.
// Invalid settings are replaced by the defaults.
func NewDebouncer(cfg DebounceConfig, pulse bool) *Debouncer {
	if cfg.Validate() != nil {
		cfg = DefaultDebounce()
	}
	return &Debouncer{cfg: cfg, pulse: pulse}
}

// Update feeds one detection result and returns the new output.
func (d *Debouncer) Update(detected bool) bool {
	s := int(d.score.Load())
	if detected {
		s += d.cfg.Rise
	} else {
		s -= d.cfg.Decay
	}
	s = min(max(s, 0), d.cfg.Max)

	out := s >= d.cfg.OnThreshold

	d.score.Store(int32(s))
	d.out.Store(out)

	if d.pulse && out && !d.lastOut {
		d.pending.Store(true)
	}
	d.lastOut = out

	return out
}

// Output returns the current debounced output.
func (d *Debouncer) Output() bool { return d.out.Load() }

// Score returns the current score.
func (d *Debouncer) Score() int { return int(d.score.Load()) }

// Pulse reports whether the debouncer latches pulses.
func (d *Debouncer) Pulse() bool { return d.pulse }

// PulsePending reports whether a pulse is latched without consuming it.
func (d *Debouncer) PulsePending() bool { return d.pending.Load() }

// ConsumePulse returns true at most once per rising edge. It always
// returns false when pulses are disabled.
func (d *Debouncer) ConsumePulse() bool {
	if !d.pulse {
		return false
	}
	return d.pending.Swap(false)
}
