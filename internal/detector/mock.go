package detector

import (
	"sync"

	"github.com/ayusman/gesturepad/internal/capture"
)

// MockDetector is a test implementation of the Classifier interface.
// It allows tests to control the detection results from any goroutine.
type MockDetector struct {
	mu       sync.Mutex
	result   bool
	err      error
	panicMsg string
	script   []bool
	calls    int
	closed   bool
}

// NewMockDetector creates a new MockDetector that detects nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the result returned once any script has been played.
func (m *MockDetector) SetResult(detected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = detected
}

// SetScript queues results returned one per call before falling back to
// the fixed result.
func (m *MockDetector) SetScript(results ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append([]bool(nil), results...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPanic makes Detect panic with msg. An empty msg turns it off.
func (m *MockDetector) SetPanic(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
}

// Detect returns the next scripted result, the configured error, or the
// fixed result, in that order of precedence after error.
func (m *MockDetector) Detect(frame *capture.Frame) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return false, m.err
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	return m.result, nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
