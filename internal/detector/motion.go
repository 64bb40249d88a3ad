package detector

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturepad/internal/capture"
)

// Motion detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// DefaultMotionThreshold is the default percentage of pixels that must change.
	DefaultMotionThreshold = 1.0
)

// Motion reports a gesture whenever enough of the picture changed since the
// previous frame it saw. It needs no trained resource, which makes it
// useful as a "wave at the camera" channel and for bench testing.
type Motion struct {
	threshold   float64
	prevGray    gocv.Mat
	lastSeq     uint64
	lastChange  float64
	initialized bool
}

// NewMotion creates a motion classifier. threshold is the percentage of
// pixels that must change: 1.0 means 1% of the picture.
func NewMotion(threshold float64) *Motion {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &Motion{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect compares frame with the previous frame.
//
// Algorithm:
// 1. Convert frame to grayscale and blur it (21x21) to suppress sensor noise
// 2. If first frame, store as baseline and report no motion
// 3. Threshold the absolute difference with the baseline (threshold=25)
// 4. changePercent = non-zero pixels / total pixels
// 5. Store frame as the new baseline
//
// Seeing the same frame twice (capture slower than detection) keeps the
// previous answer instead of reporting a zero difference.
func (m *Motion) Detect(frame *capture.Frame) (bool, error) {
	if frame == nil || frame.Mat.Empty() {
		return false, ErrEmptyFrame
	}

	if m.initialized && frame.Seq != 0 && frame.Seq == m.lastSeq {
		return m.lastChange > m.threshold, nil
	}
	m.lastSeq = frame.Seq

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Mat.Channels() > 1 {
		gocv.CvtColor(frame.Mat, &gray, gocv.ColorBGRToGray)
	} else {
		frame.Mat.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		m.lastChange = 0
		return false, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	m.lastChange = float64(nonZero) / float64(totalPixels) * 100.0

	blurred.CopyTo(&m.prevGray)

	return m.lastChange > m.threshold, nil
}

// LastChange returns the changed-pixel percentage of the last comparison.
func (m *Motion) LastChange() float64 {
	return m.lastChange
}

// Reset forgets the baseline frame.
func (m *Motion) Reset() {
	m.prevGray.Close()
	m.prevGray = gocv.NewMat()
	m.initialized = false
	m.lastSeq = 0
	m.lastChange = 0
}

// Close releases the baseline frame.
func (m *Motion) Close() error {
	m.Reset()
	return nil
}
