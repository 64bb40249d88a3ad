package capture

import (
	"errors"
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// Preview displays frames as they are captured. Show is called from the
// capture goroutine and must not keep the frame after it returns.
type Preview interface {
	Show(f *Frame)
	Close() error
}

// ErrPreviewUnsupported is returned by OpenWindowPreview where OpenCV
// windows cannot be driven from the capture goroutine.
var ErrPreviewUnsupported = errors.New("camera preview window is not supported on this platform")

// WindowPreview shows the camera feed in a native OpenCV window. HighGUI
// is driven from the capture goroutine, which macOS does not allow: there
// windows must live on the main thread, which the tray owns.
type WindowPreview struct {
	window *gocv.Window
	mu     sync.Mutex
}

// OpenWindowPreview opens a WindowPreview, or returns
// ErrPreviewUnsupported on macOS.
func OpenWindowPreview(title string, size image.Point) (*WindowPreview, error) {
	if !previewSupported(runtime.GOOS) {
		return nil, ErrPreviewUnsupported
	}
	return NewWindowPreview(title, size), nil
}

func previewSupported(goos string) bool {
	return goos != "darwin" && goos != "ios"
}

// NewWindowPreview opens a window sized to the camera frame. Prefer
// OpenWindowPreview, which checks the platform.
func NewWindowPreview(title string, size image.Point) *WindowPreview {
	w := gocv.NewWindow(title)
	if size.X > 0 && size.Y > 0 {
		w.ResizeWindow(size.X, size.Y)
	}
	return &WindowPreview{window: w}
}

// Show draws the frame. Frames arriving after Close are ignored.
func (p *WindowPreview) Show(f *Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window == nil || f == nil || f.Mat.Empty() {
		return
	}
	p.window.IMShow(f.Mat)
	p.window.WaitKey(1)
}

// Close disposes of the window. Safe to call more than once.
func (p *WindowPreview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window == nil {
		return nil
	}
	err := p.window.Close()
	p.window = nil
	return err
}
