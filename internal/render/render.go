// Package render invokes the external usdrecord process that rasterizes a
// camera view of a scene layer to an image file.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// ErrRenderFailed is returned when the render process exits non-zero or does
// not finish in time.
var ErrRenderFailed = errors.New("render process failed")

// defaultBinary is the external renderer executable.
const defaultBinary = "usdrecord"

// Request describes one render invocation: a single frame of the camera view
// over the input layer, written to OutputImage.
type Request struct {
	InputLayer  string
	OutputImage string
	CameraName  string
	Width       int
	// Frames defaults to the single frame "0:0".
	Frames string
	// Renderer overrides the per-platform backend when set.
	Renderer string
}

// Recorder runs a render request to completion.
type Recorder interface {
	Record(ctx context.Context, req Request) error
}

// DefaultBackend returns the renderer backend for the current platform.
// Resolved once at startup rather than re-branched per call.
func DefaultBackend() string {
	if runtime.GOOS == "darwin" {
		return "Metal"
	}
	return "GL"
}

// USDRecord shells out to the usdrecord binary. Process output is captured
// and surfaced only on failure.
type USDRecord struct {
	Binary string
	// Timeout 0 waits indefinitely, matching the reference behavior.
	Timeout time.Duration
}

// NewUSDRecord returns a recorder using the usdrecord binary on PATH.
func NewUSDRecord(timeout time.Duration) *USDRecord {
	return &USDRecord{Binary: defaultBinary, Timeout: timeout}
}

// Record runs the render process and blocks until it exits. A non-zero exit
// is fatal to the invocation; there is no retry.
func (r *USDRecord) Record(ctx context.Context, req Request) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, buildArgs(req)...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrRenderFailed, ctx.Err())
		}
		return fmt.Errorf("%w: %v\n%s", ErrRenderFailed, err, output.Bytes())
	}
	return nil
}

// buildArgs assembles the usdrecord command line for a request.
func buildArgs(req Request) []string {
	frames := req.Frames
	if frames == "" {
		frames = "0:0"
	}
	backend := req.Renderer
	if backend == "" {
		backend = DefaultBackend()
	}
	return []string{
		"--frames", frames,
		"--camera", req.CameraName,
		"--imageWidth", strconv.Itoa(req.Width),
		"--renderer", backend,
		req.InputLayer,
		req.OutputImage,
	}
}
