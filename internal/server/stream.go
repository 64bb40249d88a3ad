package server

import (
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/ayusman/gesturepad/internal/capture"
	"github.com/ayusman/gesturepad/internal/gesture"
)

// streamInterval paces the MJPEG stream at about 15 FPS.
const streamInterval = 66 * time.Millisecond

// PipelineFunc returns the current pipeline.
type PipelineFunc func() *gesture.Pipeline

// peekFrame returns the latest published frame, or nil. The caller must
// release it.
func peekFrame(current PipelineFunc) *capture.Frame {
	p := current()
	if p == nil {
		return nil
	}
	return p.Slot().Peek()
}

// StreamHandler serves MJPEG frames from the pipeline's frame slot. It
// never reads the camera itself.
type StreamHandler struct {
	pipeline PipelineFunc
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(pipeline PipelineFunc) *StreamHandler {
	return &StreamHandler{pipeline: pipeline}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame := peekFrame(h.pipeline)
		if frame == nil {
			continue
		}
		if frame.Seq == lastSeq {
			frame.Release()
			continue
		}
		lastSeq = frame.Seq

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
		frame.Release()
		if err != nil {
			continue
		}

		// Write MJPEG frame
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, werr := w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()
		if werr != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// SnapshotHandler serves the latest frame as a single JPEG, optionally
// scaled down to ?width=N.
type SnapshotHandler struct {
	pipeline PipelineFunc
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(pipeline PipelineFunc) *SnapshotHandler {
	return &SnapshotHandler{pipeline: pipeline}
}

// ServeHTTP handles GET /api/snapshot.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "width must be a positive integer", http.StatusBadRequest)
			return
		}
		width = n
	}

	frame := peekFrame(h.pipeline)
	if frame == nil {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}
	img, err := frame.Mat.ToImage()
	seq := frame.Seq
	frame.Release()
	if err != nil {
		http.Error(w, "Failed to convert frame", http.StatusInternalServerError)
		return
	}

	img = thumbnail(img, width)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
	}
}

// thumbnail scales img down to width, keeping the aspect ratio. Images
// already narrower are returned unchanged.
func thumbnail(img image.Image, width int) image.Image {
	if width <= 0 || width >= img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}
