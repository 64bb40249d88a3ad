package capture

import "sync/atomic"

// FrameSlot holds the most recently captured frame.
//
// One goroutine publishes, any number of goroutines peek. Neither side
// takes a lock: the current frame is swapped atomically and each frame
// carries its own reference count, so a frame replaced by Publish stays
// valid until every reader that obtained it through Peek has released it.
type FrameSlot struct {
	cur       atomic.Pointer[Frame]
	published atomic.Uint64
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{}
}

// Publish makes f the current frame. The slot takes over the caller's
// reference to f and drops its reference to the frame it replaces.
func (s *FrameSlot) Publish(f *Frame) {
	old := s.cur.Swap(f)
	s.published.Add(1)
	old.Release()
}

// Peek returns the current frame with an extra reference, or nil when
// nothing has been published. The caller must Release the returned frame.
func (s *FrameSlot) Peek() *Frame {
	for {
		f := s.cur.Load()
		if f == nil {
			return nil
		}
		if f.tryRetain() {
			return f
		}
		// f was replaced and freed between Load and tryRetain.
	}
}

// Clear empties the slot and drops its reference to the held frame.
func (s *FrameSlot) Clear() {
	s.cur.Swap(nil).Release()
}

// Published returns the number of frames published so far.
func (s *FrameSlot) Published() uint64 {
	return s.published.Load()
}
