package detector

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturepad/internal/capture"
)

// Cascade defaults, matching OpenCV's detectMultiScale defaults.
const (
	DefaultScaleFactor  = 1.1
	DefaultMinNeighbors = 3
)

// ErrEmptyFrame is returned by classifiers that are given a frame with no pixels.
var ErrEmptyFrame = errors.New("frame is empty")

// CascadeParams tunes cascade detection.
type CascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	EqualizeHist bool // helps when lighting varies a lot
}

// Cascade detects a gesture with an OpenCV cascade classifier. The gesture
// is present when the classifier finds at least one region.
type Cascade struct {
	classifier gocv.CascadeClassifier
	gray       gocv.Mat
	params     CascadeParams
	path       string
	cleanup    func()
}

// NewCascade loads the cascade XML at path.
func NewCascade(path string, params CascadeParams) (*Cascade, error) {
	if params.ScaleFactor <= 1 {
		params.ScaleFactor = DefaultScaleFactor
	}
	if params.MinNeighbors <= 0 {
		params.MinNeighbors = DefaultMinNeighbors
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s: invalid or unreadable file", path)
	}

	return &Cascade{
		classifier: classifier,
		gray:       gocv.NewMat(),
		params:     params,
		path:       path,
	}, nil
}

// Detect converts the frame to grayscale and runs the cascade over it.
func (c *Cascade) Detect(frame *capture.Frame) (bool, error) {
	if frame == nil || frame.Mat.Empty() {
		return false, ErrEmptyFrame
	}

	if frame.Mat.Channels() > 1 {
		gocv.CvtColor(frame.Mat, &c.gray, gocv.ColorBGRToGray)
	} else {
		frame.Mat.CopyTo(&c.gray)
	}

	if c.params.EqualizeHist {
		gocv.EqualizeHist(c.gray, &c.gray)
	}

	rects := c.classifier.DetectMultiScaleWithParams(
		c.gray,
		c.params.ScaleFactor,
		c.params.MinNeighbors,
		0,
		c.params.MinSize,
		image.Point{},
	)

	return len(rects) > 0, nil
}

// Close releases the classifier and removes an extracted resource file.
func (c *Cascade) Close() error {
	err := c.classifier.Close()
	c.gray.Close()
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
	return err
}

// Path returns the file the cascade was loaded from.
func (c *Cascade) Path() string {
	return c.path
}
