// Package testutil builds synthetic camera frames for tests.
package testutil

import (
	"fmt"

	"gocv.io/x/gocv"
)

// SolidFrame returns a BGR frame of the given size filled with value.
// The caller must close it.
func SolidFrame(width, height int, value uint8) gocv.Mat {
	v := float64(value)
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), height, width, gocv.MatTypeCV8UC3)
}

// Flicker returns n frames alternating between black and white, which
// reads as motion on every frame.
func Flicker(width, height, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		value := uint8(0)
		if i%2 == 1 {
			value = 255
		}
		m := SolidFrame(width, height, value)
		frames[i] = &m
	}
	return frames
}

// DecodeFrame decodes an encoded image into a BGR frame.
func DecodeFrame(data []byte) (*gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode frame: no image data")
	}
	return &mat, nil
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
