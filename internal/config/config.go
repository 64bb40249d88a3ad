// Package config loads the gesturepad YAML configuration.
package config

import (
	"fmt"
	"image"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/gesturepad/internal/capture"
	"github.com/ayusman/gesturepad/internal/detector"
	"github.com/ayusman/gesturepad/internal/gesture"
)

// Config represents the complete gesturepad configuration
type Config struct {
	Camera            CameraConfig    `yaml:"camera"`
	CaptureIntervalMs int             `yaml:"capture_interval_ms"`
	DetectIntervalMs  int             `yaml:"detect_interval_ms"`
	StopTimeoutMs     int             `yaml:"stop_timeout_ms"`
	ShowPreview       bool            `yaml:"show_preview"`
	Debounce          DebounceConfig  `yaml:"debounce"`
	ResourceDir       string          `yaml:"resource_dir"` // base directory for relative cascade resources
	Channels          []ChannelConfig `yaml:"channels"`
	Bindings          []BindingConfig `yaml:"bindings"`
	PluginDir         string          `yaml:"plugin_dir"`
	PluginTimeoutMs   int             `yaml:"plugin_timeout_ms"`
	PollIntervalMs    int             `yaml:"poll_interval_ms"` // host poll loop, ~60 Hz by default
	Server            ServerConfig    `yaml:"server"`
	DBPath            string          `yaml:"db_path"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// DebounceConfig contains the hysteresis settings shared by all channels
type DebounceConfig struct {
	Max         int `yaml:"max"`
	OnThreshold int `yaml:"on_threshold"`
	Rise        int `yaml:"rise"`
	Decay       int `yaml:"decay"`
}

// ChannelConfig defines a single signal channel
type ChannelConfig struct {
	Name            string   `yaml:"name"`
	Kind            string   `yaml:"kind"`     // cascade, motion, external
	Resource        string   `yaml:"resource"` // cascade XML
	Pulse           bool     `yaml:"pulse"`
	ScaleFactor     float64  `yaml:"scale_factor,omitempty"`
	MinNeighbors    int      `yaml:"min_neighbors,omitempty"`
	MinSize         int      `yaml:"min_size,omitempty"` // pixels, square
	EqualizeHist    bool     `yaml:"equalize_hist,omitempty"`
	MotionThreshold float64  `yaml:"motion_threshold,omitempty"`
	Command         string   `yaml:"command,omitempty"`
	Args            []string `yaml:"args,omitempty"`
}

// Binding edges
const (
	OnRise  = "rise"
	OnFall  = "fall"
	OnPulse = "pulse"
)

// BindingConfig maps a channel edge to a plugin action
type BindingConfig struct {
	Channel string         `yaml:"channel"`
	Plugin  string         `yaml:"plugin"`
	Action  string         `yaml:"action"`
	Params  map[string]any `yaml:"params,omitempty"`
	On      string         `yaml:"on"` // rise, fall, pulse (default: rise)
}

// ServerConfig contains the debug web server settings
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// Default returns the built-in configuration: four movement channels and a
// pulsed shoot channel, each backed by a cascade under cascade/, bound to
// the WASD keys and F.
func Default() *Config {
	cam := capture.DefaultCameraConfig()
	deb := gesture.DefaultDebounce()

	return &Config{
		Camera: CameraConfig{
			Device: cam.DeviceID,
			Width:  cam.Width,
			Height: cam.Height,
			FPS:    cam.FPS,
		},
		CaptureIntervalMs: int(capture.DefaultCaptureInterval / time.Millisecond),
		DetectIntervalMs:  int(gesture.DefaultDetectInterval / time.Millisecond),
		StopTimeoutMs:     int(gesture.DefaultStopTimeout / time.Millisecond),
		Debounce: DebounceConfig{
			Max:         deb.Max,
			OnThreshold: deb.OnThreshold,
			Rise:        deb.Rise,
			Decay:       deb.Decay,
		},
		ResourceDir: "resources",
		Channels: []ChannelConfig{
			{Name: "left", Kind: string(detector.KindCascade), Resource: "cascade/left.xml"},
			{Name: "right", Kind: string(detector.KindCascade), Resource: "cascade/right.xml"},
			{Name: "up", Kind: string(detector.KindCascade), Resource: "cascade/up.xml"},
			{Name: "down", Kind: string(detector.KindCascade), Resource: "cascade/down.xml"},
			{Name: "shoot", Kind: string(detector.KindCascade), Resource: "cascade/shoot.xml", Pulse: true},
		},
		Bindings: []BindingConfig{
			{Channel: "left", Plugin: "keyboard", Action: "hold", Params: map[string]any{"key": "a"}, On: OnRise},
			{Channel: "left", Plugin: "keyboard", Action: "release", Params: map[string]any{"key": "a"}, On: OnFall},
			{Channel: "right", Plugin: "keyboard", Action: "hold", Params: map[string]any{"key": "d"}, On: OnRise},
			{Channel: "right", Plugin: "keyboard", Action: "release", Params: map[string]any{"key": "d"}, On: OnFall},
			{Channel: "up", Plugin: "keyboard", Action: "hold", Params: map[string]any{"key": "w"}, On: OnRise},
			{Channel: "up", Plugin: "keyboard", Action: "release", Params: map[string]any{"key": "w"}, On: OnFall},
			{Channel: "down", Plugin: "keyboard", Action: "hold", Params: map[string]any{"key": "s"}, On: OnRise},
			{Channel: "down", Plugin: "keyboard", Action: "release", Params: map[string]any{"key": "s"}, On: OnFall},
			{Channel: "shoot", Plugin: "keyboard", Action: "tap", Params: map[string]any{"key": "f"}, On: OnPulse},
		},
		PluginDir:       "plugins",
		PluginTimeoutMs: 5000,
		PollIntervalMs:  16,
		Server: ServerConfig{
			Addr:      "127.0.0.1:8080",
			StaticDir: "web",
		},
		DBPath: "gesturepad.db",
	}
}

// Load reads and parses a YAML configuration file. Fields missing from the
// file keep their default values; a channels or bindings list in the file
// replaces the default list.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Pipeline converts the configuration to pipeline settings. Collaborators
// (camera, loader, preview) are left for the caller to fill in.
func (c *Config) Pipeline() gesture.Config {
	channels := make([]gesture.ChannelSpec, len(c.Channels))
	for i, ch := range c.Channels {
		channels[i] = gesture.ChannelSpec{
			Name:     ch.Name,
			Pulse:    ch.Pulse,
			Detector: ch.Detector(),
		}
	}

	return gesture.Config{
		Channels: channels,
		Camera: capture.CameraConfig{
			DeviceID: c.Camera.Device,
			Width:    c.Camera.Width,
			Height:   c.Camera.Height,
			FPS:      c.Camera.FPS,
		},
		ShowPreview:     c.ShowPreview,
		CaptureInterval: ms(c.CaptureIntervalMs),
		DetectInterval:  ms(c.DetectIntervalMs),
		StopTimeout:     ms(c.StopTimeoutMs),
		Debounce: gesture.DebounceConfig{
			Max:         c.Debounce.Max,
			OnThreshold: c.Debounce.OnThreshold,
			Rise:        c.Debounce.Rise,
			Decay:       c.Debounce.Decay,
		},
	}
}

// Detector converts the channel to a classifier spec.
func (ch ChannelConfig) Detector() detector.Spec {
	kind := detector.Kind(ch.Kind)
	if kind == "" {
		kind = detector.KindCascade
	}
	return detector.Spec{
		Kind:            kind,
		Resource:        ch.Resource,
		ScaleFactor:     ch.ScaleFactor,
		MinNeighbors:    ch.MinNeighbors,
		MinSize:         image.Point{X: ch.MinSize, Y: ch.MinSize},
		EqualizeHist:    ch.EqualizeHist,
		MotionThreshold: ch.MotionThreshold,
		Command:         ch.Command,
		Args:            ch.Args,
	}
}

// PluginTimeout returns the plugin execution timeout.
func (c *Config) PluginTimeout() time.Duration { return ms(c.PluginTimeoutMs) }

// PollInterval returns the host poll loop interval.
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
