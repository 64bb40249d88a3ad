package gesture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/gesturepad/internal/capture"
	"github.com/ayusman/gesturepad/internal/detector"
)

// DefaultStopTimeout bounds how long Stop waits for the loops to exit.
const DefaultStopTimeout = 2 * time.Second

// Start stages reported in StartError.
const (
	StageConfig     = "config"
	StageCamera     = "camera"
	StageClassifier = "classifier"
)

// ErrNoChannels is returned by Start when no channel is configured.
var ErrNoChannels = errors.New("no channels configured")

// StartError describes why Start failed. Nothing is left running when it
// is returned.
type StartError struct {
	Stage   string
	Channel string // set for classifier failures
	Err     error
}

func (e *StartError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("start %s %q: %v", e.Stage, e.Channel, e.Err)
	}
	return fmt.Sprintf("start %s: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// PreviewFactory opens a debug preview for frames of the given size.
type PreviewFactory func(size image.Point) (capture.Preview, error)

// Config holds the pipeline settings and its collaborators. Zero values
// select the defaults.
type Config struct {
	Channels        []ChannelSpec
	Camera          capture.CameraConfig
	ShowPreview     bool
	CaptureInterval time.Duration
	DetectInterval  time.Duration
	StopTimeout     time.Duration
	Debounce        DebounceConfig

	// Source overrides the camera built from Camera.
	Source capture.Camera
	// Loader builds the classifier of every channel. Defaults to
	// detector.DefaultLoader(nil).
	Loader detector.Loader
	// Preview opens the debug preview. Defaults to a native window, which
	// is unavailable on macOS.
	Preview PreviewFactory
}

// Pipeline turns a camera feed into named boolean signals. One capture loop
// keeps the shared frame slot fresh and one detection loop per channel
// reads from it. The signal accessors may be called from any goroutine
// and never block.
type Pipeline struct {
	config Config
	camera capture.Camera
	slot   *capture.FrameSlot
	table  atomic.Pointer[channelTable]

	mu        sync.Mutex
	running   atomic.Bool
	startedAt atomic.Int64
	cancel    context.CancelFunc
	done      chan struct{}
	closing   chan struct{} // closed once the last camera Close returned
	preview   capture.Preview

	errMu      sync.RWMutex
	captureErr error
}

// New creates a stopped pipeline.
func New(config Config) *Pipeline {
	if config.CaptureInterval <= 0 {
		config.CaptureInterval = capture.DefaultCaptureInterval
	}
	if config.DetectInterval <= 0 {
		config.DetectInterval = DefaultDetectInterval
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.Debounce == (DebounceConfig{}) {
		config.Debounce = DefaultDebounce()
	}
	if config.Loader == nil {
		config.Loader = detector.DefaultLoader(nil)
	}
	if config.Preview == nil {
		config.Preview = func(size image.Point) (capture.Preview, error) {
			pv, err := capture.OpenWindowPreview("gesturepad preview", size)
			if err != nil {
				return nil, err
			}
			return pv, nil
		}
	}

	camera := config.Source
	if camera == nil {
		camera = capture.NewCamera(config.Camera)
	}

	p := &Pipeline{
		config: config,
		camera: camera,
		slot:   capture.NewFrameSlot(),
	}
	p.table.Store(&channelTable{})
	return p
}

// channelTable is the channel set of one run. It is replaced as a whole by
// Start so readers never need the pipeline lock.
type channelTable struct {
	list   []*Channel
	byName map[string]*Channel
}

// Start opens the camera, loads every classifier and starts the loops.
// Calling Start on a running pipeline is a no-op. On failure everything
// acquired so far is released and a *StartError is returned.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return nil
	}

	if err := p.validate(); err != nil {
		return &StartError{Stage: StageConfig, Err: err}
	}

	if p.closing != nil {
		select {
		case <-p.closing:
			p.closing = nil
		case <-time.After(p.config.StopTimeout):
			return &StartError{Stage: StageCamera, Err: errors.New("previous camera close still pending")}
		}
	}

	if err := p.camera.Open(); err != nil {
		return &StartError{Stage: StageCamera, Err: err}
	}

	channels := make([]*Channel, 0, len(p.config.Channels))
	for _, spec := range p.config.Channels {
		c, err := p.config.Loader(spec.Detector)
		if err != nil {
			for _, ch := range channels {
				ch.classifier.Close()
			}
			if cerr := p.camera.Close(); cerr != nil {
				log.Printf("close camera: %v", cerr)
			}
			return &StartError{Stage: StageClassifier, Channel: spec.Name, Err: err}
		}
		channels = append(channels, NewChannel(spec.Name, c, p.config.Debounce, spec.Pulse))
	}

	table := &channelTable{list: channels, byName: make(map[string]*Channel, len(channels))}
	for _, ch := range channels {
		table.byName[ch.name] = ch
	}
	p.table.Store(table)

	p.preview = nil
	if p.config.ShowPreview {
		pv, err := p.config.Preview(p.camera.Size())
		if err != nil {
			log.Printf("preview unavailable: %v", err)
		} else {
			p.preview = pv
		}
	}

	p.setCaptureErr(nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)
	p.startedAt.Store(time.Now().UnixNano())

	loop := capture.NewCaptureLoop(p.camera, p.slot, p.config.CaptureInterval)
	if p.preview != nil {
		loop.SetPreview(p.preview)
	}

	var wg sync.WaitGroup
	wg.Add(1 + len(channels))
	go func() {
		defer wg.Done()
		err := loop.Run(ctx)
		switch {
		case ctx.Err() != nil:
			// Stop may have cleared the slot while this loop was late.
			p.slot.Clear()
		case err != nil:
			log.Printf("capture stopped: %v", err)
			p.setCaptureErr(err)
			// Without a source the signals must fall back to off.
			p.slot.Clear()
		}
	}()
	for _, ch := range channels {
		go func(ch *Channel) {
			defer wg.Done()
			ch.run(ctx, p.slot, p.config.DetectInterval)
		}(ch)
	}
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(p.done)

	log.Printf("gesture pipeline started with %d channels", len(channels))
	return nil
}

func (p *Pipeline) validate() error {
	if len(p.config.Channels) == 0 {
		return ErrNoChannels
	}
	seen := make(map[string]bool, len(p.config.Channels))
	for _, spec := range p.config.Channels {
		if spec.Name == "" {
			return errors.New("channel name is required")
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate channel %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return p.config.Debounce.Validate()
}

// Stop cancels every loop, waits up to the stop timeout for them to exit
// and releases the camera, the preview and the held frame. It is safe to
// call at any time and more than once. Errors are logged.
//
// Closing the camera gets its own stop timeout, since a device stuck in a
// grab does not release until the grab returns, so Stop returns within
// twice the stop timeout. An abandoned close finishes in the background
// and the next Start waits for it.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	p.cancel()

	exited := true
	select {
	case <-p.done:
	case <-time.After(p.config.StopTimeout):
		exited = false
		log.Printf("gesture pipeline: loops still running after %v", p.config.StopTimeout)
	}

	p.closeCamera()
	if p.preview != nil {
		if err := p.preview.Close(); err != nil {
			log.Printf("close preview: %v", err)
		}
		p.preview = nil
	}
	p.slot.Clear()

	// A loop that missed the deadline may still be inside its classifier.
	if exited {
		for _, ch := range p.table.Load().list {
			if err := ch.classifier.Close(); err != nil {
				log.Printf("close classifier %s: %v", ch.name, err)
			}
		}
	}

	log.Println("gesture pipeline stopped")
}

// closeCamera closes the camera, waiting at most the stop timeout. Must
// be called with p.mu held.
func (p *Pipeline) closeCamera() {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		if err := p.camera.Close(); err != nil {
			log.Printf("close camera: %v", err)
		}
	}()

	select {
	case <-closed:
	case <-time.After(p.config.StopTimeout):
		log.Printf("gesture pipeline: camera still closing after %v", p.config.StopTimeout)
		p.closing = closed
	}
}

// Running reports whether the loops have been started and not stopped.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// IsChannel returns the debounced signal of the named channel. Unknown
// channels are always false.
func (p *Pipeline) IsChannel(name string) bool {
	ch := p.channel(name)
	return ch != nil && ch.Output()
}

// ConsumePulse takes the pending pulse of the named channel. It returns
// false for unknown channels and channels without pulses.
func (p *Pipeline) ConsumePulse(name string) bool {
	ch := p.channel(name)
	return ch != nil && ch.ConsumePulse()
}

// Channels returns the channel names in configuration order.
func (p *Pipeline) Channels() []string {
	names := make([]string, len(p.config.Channels))
	for i, spec := range p.config.Channels {
		names[i] = spec.Name
	}
	return names
}

// PulseChannels returns the names of channels that latch pulses.
func (p *Pipeline) PulseChannels() []string {
	var names []string
	for _, spec := range p.config.Channels {
		if spec.Pulse {
			names = append(names, spec.Name)
		}
	}
	return names
}

// Snapshot returns the state of every channel of the current or last run,
// in configuration order.
func (p *Pipeline) Snapshot() []ChannelState {
	channels := p.table.Load().list
	states := make([]ChannelState, len(channels))
	for i, ch := range channels {
		states[i] = ch.State()
	}
	return states
}

// CaptureErr returns the error that ended the capture loop, if any.
func (p *Pipeline) CaptureErr() error {
	p.errMu.RLock()
	defer p.errMu.RUnlock()
	return p.captureErr
}

func (p *Pipeline) setCaptureErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.captureErr = err
}

// Uptime returns how long the pipeline has been running, or zero.
func (p *Pipeline) Uptime() time.Duration {
	if !p.running.Load() {
		return 0
	}
	return time.Since(time.Unix(0, p.startedAt.Load()))
}

// Slot returns the shared frame slot for read-only consumers such as the
// debug stream. Frames obtained from it must be released.
func (p *Pipeline) Slot() *capture.FrameSlot { return p.slot }

func (p *Pipeline) channel(name string) *Channel {
	return p.table.Load().byName[name]
}
