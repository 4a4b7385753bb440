// Package ffmpeg merges separately downloaded video and audio streams.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/media"
)

// DefaultBinary is looked up in PATH when no explicit binary is configured.
const DefaultBinary = "ffmpeg"

// Muxer runs ffmpeg to stream-copy one video and one audio input into a single container.
type Muxer struct {
	binary  string
	timeout time.Duration

	// command is swapped in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewMuxer returns a muxer running binary. A zero timeout means no limit.
func NewMuxer(binary string, timeout time.Duration) *Muxer {
	if binary == "" {
		binary = DefaultBinary
	}

	return &Muxer{
		binary:  binary,
		timeout: timeout,
		command: exec.CommandContext,
	}
}

// Args returns the ffmpeg arguments for a stream-copy merge. The output path is overwritten
// because the caller reserves it before downloading.
func Args(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", operand(videoPath),
		"-i", operand(audioPath),
		"-c:v", "copy",
		"-c:a", "copy",
		operand(outputPath),
	}
}

// operand keeps a relative path starting with "-" from being parsed as an option.
func operand(path string) string {
	if strings.HasPrefix(path, "-") {
		return "." + string(filepath.Separator) + path
	}

	return path
}

// Mux merges videoPath and audioPath into outputPath. Any unsuccessful exit is returned as
// *media.MergeError carrying ffmpeg's stderr.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	logger := logctx.LoggerFromContext(ctx)

	if m.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer

	cmd := m.command(ctx, m.binary, Args(videoPath, audioPath, outputPath)...)
	cmd.Stderr = &stderr

	logger.Debug("running ffmpeg", "binary", m.binary, "args", cmd.Args[1:])

	start := time.Now()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && stderr.Len() == 0 {
			return &media.MergeError{Stderr: fmt.Sprintf("failed to run %s: %v", m.binary, err), Err: err}
		}

		return &media.MergeError{Stderr: stderr.String(), Err: err}
	}

	logger.Debug("ffmpeg finished", "duration", time.Since(start).String())

	return nil
}
