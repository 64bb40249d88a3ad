package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ayusman/gesturepad/internal/detector"
	"github.com/ayusman/gesturepad/internal/gesture"
)

// ErrNoChannels is returned when the configuration defines no channel.
var ErrNoChannels = errors.New("at least one channel is required")

var channelNamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0")
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 || cfg.Camera.FPS < 0 {
		return fmt.Errorf("camera width, height and fps must not be negative")
	}

	if cfg.CaptureIntervalMs <= 0 {
		return fmt.Errorf("capture_interval_ms must be > 0")
	}
	if cfg.DetectIntervalMs <= 0 {
		return fmt.Errorf("detect_interval_ms must be > 0")
	}
	if cfg.StopTimeoutMs <= 0 {
		return fmt.Errorf("stop_timeout_ms must be > 0")
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 16 // default
	}
	if cfg.PluginTimeoutMs <= 0 {
		cfg.PluginTimeoutMs = 5000 // default
	}

	deb := gesture.DebounceConfig{
		Max:         cfg.Debounce.Max,
		OnThreshold: cfg.Debounce.OnThreshold,
		Rise:        cfg.Debounce.Rise,
		Decay:       cfg.Debounce.Decay,
	}
	if err := deb.Validate(); err != nil {
		return err
	}

	if err := ValidateChannels(cfg.Channels); err != nil {
		return fmt.Errorf("channel validation failed: %w", err)
	}
	if err := ValidateBindings(cfg.Bindings, cfg.Channels); err != nil {
		return fmt.Errorf("binding validation failed: %w", err)
	}

	return nil
}

// ValidateChannels checks every channel definition for correctness
func ValidateChannels(channels []ChannelConfig) error {
	if len(channels) == 0 {
		return ErrNoChannels
	}

	seen := make(map[string]bool, len(channels))
	for i, ch := range channels {
		if !channelNamePattern.MatchString(ch.Name) {
			return fmt.Errorf("channel %d: name %q must match pattern [a-z0-9_-]+", i, ch.Name)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel '%s' defined twice", ch.Name)
		}
		seen[ch.Name] = true

		switch detector.Kind(ch.Kind) {
		case detector.KindCascade, "":
			if ch.Resource == "" {
				return fmt.Errorf("channel '%s': cascade needs a resource", ch.Name)
			}
			if ch.ScaleFactor != 0 && ch.ScaleFactor <= 1 {
				return fmt.Errorf("channel '%s': scale_factor must be > 1, got %v", ch.Name, ch.ScaleFactor)
			}
			if ch.MinNeighbors < 0 || ch.MinSize < 0 {
				return fmt.Errorf("channel '%s': min_neighbors and min_size must not be negative", ch.Name)
			}

		case detector.KindMotion:
			if ch.MotionThreshold < 0 || ch.MotionThreshold > 100 {
				return fmt.Errorf("channel '%s': motion_threshold must be a percentage, got %v", ch.Name, ch.MotionThreshold)
			}

		case detector.KindExternal:
			if ch.Command == "" {
				return fmt.Errorf("channel '%s': external detector needs a command", ch.Name)
			}

		default:
			return fmt.Errorf("channel '%s': unknown kind '%s' (must be 'cascade', 'motion' or 'external')",
				ch.Name, ch.Kind)
		}
	}

	return nil
}

// ValidateBindings checks that every binding references a channel and a
// valid edge. An empty edge defaults to rise.
func ValidateBindings(bindings []BindingConfig, channels []ChannelConfig) error {
	byName := make(map[string]ChannelConfig, len(channels))
	for _, ch := range channels {
		byName[ch.Name] = ch
	}

	for i := range bindings {
		b := &bindings[i]

		ch, ok := byName[b.Channel]
		if !ok {
			return fmt.Errorf("binding %d: channel '%s' not found in channels", i, b.Channel)
		}
		if b.Plugin == "" || b.Action == "" {
			return fmt.Errorf("binding %d: plugin and action are required", i)
		}

		switch b.On {
		case "":
			b.On = OnRise
		case OnRise, OnFall:
		case OnPulse:
			if !ch.Pulse {
				return fmt.Errorf("binding %d: channel '%s' does not emit pulses", i, b.Channel)
			}
		default:
			return fmt.Errorf("binding %d: unknown edge '%s' (must be 'rise', 'fall' or 'pulse')", i, b.On)
		}
	}

	return nil
}
