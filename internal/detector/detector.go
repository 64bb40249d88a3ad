// Package detector provides the per-channel gesture classifiers. Every
// classifier answers one question about a frame: is the gesture there?
package detector

import (
	"fmt"
	"image"
	"io/fs"

	"github.com/ayusman/gesturepad/internal/capture"
)

// Classifier decides whether a frame contains one gesture.
//
// A Classifier is used by a single goroutine at a time, so implementations
// may keep scratch buffers between calls.
type Classifier interface {
	// Detect reports whether the gesture is present in frame. It must not
	// modify or retain the frame.
	Detect(frame *capture.Frame) (bool, error)

	// Close releases any resources held by the classifier.
	Close() error
}

// Kind selects a classifier implementation.
type Kind string

const (
	// KindCascade is an OpenCV cascade classifier loaded from an XML resource.
	KindCascade Kind = "cascade"
	// KindMotion fires when enough pixels change between frames.
	KindMotion Kind = "motion"
	// KindExternal delegates to a helper process.
	KindExternal Kind = "external"
)

// Spec describes how to build the classifier of one channel.
type Spec struct {
	Kind     Kind
	Resource string // cascade XML path or embedded resource name

	// Cascade tuning. Zero values select the cascade defaults.
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	EqualizeHist bool

	// MotionThreshold is the percentage of changed pixels for KindMotion.
	MotionThreshold float64

	// Command and Args start the helper process for KindExternal.
	Command string
	Args    []string
}

// Loader builds the classifier for a spec. Loading happens once per
// channel when the pipeline starts.
type Loader func(spec Spec) (Classifier, error)

// DefaultLoader returns a Loader for all built-in kinds. Cascade resources
// are looked up in resources first when it is not nil, then on disk.
func DefaultLoader(resources fs.FS) Loader {
	return func(spec Spec) (Classifier, error) {
		switch spec.Kind {
		case KindCascade, "":
			path, cleanup, err := ResolveResource(resources, spec.Resource)
			if err != nil {
				return nil, err
			}
			c, err := NewCascade(path, CascadeParams{
				ScaleFactor:  spec.ScaleFactor,
				MinNeighbors: spec.MinNeighbors,
				MinSize:      spec.MinSize,
				EqualizeHist: spec.EqualizeHist,
			})
			if err != nil {
				cleanup()
				return nil, err
			}
			c.cleanup = cleanup
			return c, nil

		case KindMotion:
			threshold := spec.MotionThreshold
			if threshold <= 0 {
				threshold = DefaultMotionThreshold
			}
			return NewMotion(threshold), nil

		case KindExternal:
			return NewExternal(spec.Command, spec.Args...)

		default:
			return nil, fmt.Errorf("unknown detector kind %q", spec.Kind)
		}
	}
}

// Func adapts a plain function to the Classifier interface.
type Func func(frame *capture.Frame) (bool, error)

// Detect calls f.
func (f Func) Detect(frame *capture.Frame) (bool, error) { return f(frame) }

// Close is a no-op.
func (f Func) Close() error { return nil }
