package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturepad/internal/capture"
)

// External delegates detection to a helper process, for detectors that do
// not run inside OpenCV (for example a Python model).
//
// Protocol: for every frame the helper reads a 4-byte big-endian length
// followed by that many bytes of JPEG on stdin, and answers with one JSON
// line on stdout: {"detected": true, "score": 0.93}. A non-empty "error"
// field marks a failed detection.
type External struct {
	command string
	args    []string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
}

type externalResponse struct {
	Detected bool    `json:"detected"`
	Score    float64 `json:"score"`
	Error    string  `json:"error,omitempty"`
}

// NewExternal checks that command can be found. The process itself is
// started lazily on the first detection.
func NewExternal(command string, args ...string) (*External, error) {
	if command == "" {
		return nil, errors.New("external detector: command is required")
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("external detector %s: %w", command, err)
	}

	return &External{command: command, args: args}, nil
}

// Detect sends the frame to the helper and waits for its answer. Any I/O
// failure kills the helper; the next call starts a fresh one.
func (d *External) Detect(frame *capture.Frame) (bool, error) {
	if frame == nil || frame.Mat.Empty() {
		return false, ErrEmptyFrame
	}

	if err := d.ensureStarted(); err != nil {
		return false, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
	if err != nil {
		return false, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	resp, err := d.roundTrip(buf.GetBytes())
	if err != nil {
		d.shutdown()
		return false, err
	}

	if resp.Error != "" {
		return false, fmt.Errorf("external detector: %s", resp.Error)
	}

	return resp.Detected, nil
}

func (d *External) roundTrip(data []byte) (*externalResponse, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp externalResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &resp, nil
}

// Close stops the helper process.
func (d *External) Close() error {
	return d.shutdown()
}

func (d *External) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.command, d.args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Let helper diagnostics reach the terminal.
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start external detector: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *External) shutdown() error {
	if !d.started {
		return nil
	}

	d.stdin.Close()
	err := d.cmd.Wait()

	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}
