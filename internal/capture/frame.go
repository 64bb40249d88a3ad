package capture

import (
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Frame is an immutable camera image shared between the capture loop and
// any number of detection loops.
//
// A Frame is reference counted. The creator holds the first reference;
// every holder calls Release exactly once when done. The pixel buffer is
// freed when the last reference is released. Holders must not modify Mat.
type Frame struct {
	Mat       gocv.Mat
	Seq       uint64
	Timestamp time.Time

	refs atomic.Int32
}

// NewFrame wraps mat in a Frame holding one reference. The Frame takes
// ownership of mat.
func NewFrame(mat gocv.Mat, seq uint64, ts time.Time) *Frame {
	f := &Frame{Mat: mat, Seq: seq, Timestamp: ts}
	f.refs.Store(1)
	return f
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Mat.Cols() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Mat.Rows() }

// Type returns the pixel format of the frame.
func (f *Frame) Type() gocv.MatType { return f.Mat.Type() }

// Age returns how long ago the frame was captured.
func (f *Frame) Age() time.Duration { return time.Since(f.Timestamp) }

// tryRetain adds a reference unless the frame has already been freed.
// Once the count reaches zero it never rises again.
func (f *Frame) tryRetain() bool {
	for {
		n := f.refs.Load()
		if n <= 0 {
			return false
		}
		if f.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference and frees the pixel buffer with the last one.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	if f.refs.Add(-1) == 0 {
		f.Mat.Close()
	}
}

// Refs returns the current reference count.
func (f *Frame) Refs() int32 { return f.refs.Load() }
