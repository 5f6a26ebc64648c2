// Package camera captures still JPEG frames.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrNotJPEG is returned when the capture command output is not a JPEG.
var ErrNotJPEG = errors.New("camera: output is not a JPEG image")

var jpegSOI = []byte{0xFF, 0xD8}

// Exec captures by running an external still-capture command that writes
// the image to stdout (e.g. rpicam-still -o -).
type Exec struct {
	Command []string
	Timeout time.Duration
}

// NewExec validates the command and returns an Exec.
func NewExec(command []string, timeout time.Duration) (*Exec, error) {
	if len(command) == 0 {
		return nil, errors.New("camera: empty capture command")
	}
	return &Exec{Command: command, Timeout: timeout}, nil
}

// Check verifies that the capture binary is installed.
func (e *Exec) Check() error {
	if _, err := exec.LookPath(e.Command[0]); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	return nil
}

// Capture runs the command and returns the JPEG it wrote.
func (e *Exec) Capture(ctx context.Context) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera: %s: %w: %s", e.Command[0], err, bytes.TrimSpace(stderr.Bytes()))
	}

	if !bytes.HasPrefix(stdout.Bytes(), jpegSOI) {
		return nil, ErrNotJPEG
	}
	return stdout.Bytes(), nil
}

// Fake returns scripted frames.
type Fake struct {
	Frames   [][]byte
	Err      error
	CheckErr error
	Captures int
}

// FakeFrame is a minimal JPEG-looking frame.
var FakeFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0xFF, 0xD9}

// Check returns CheckErr.
func (f *Fake) Check() error { return f.CheckErr }

// Capture returns the next frame, repeating the last one. With no frames
// it returns FakeFrame.
func (f *Fake) Capture(context.Context) ([]byte, error) {
	f.Captures++
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Frames) == 0 {
		return FakeFrame, nil
	}
	i := f.Captures - 1
	if i >= len(f.Frames) {
		i = len(f.Frames) - 1
	}
	return f.Frames[i], nil
}
