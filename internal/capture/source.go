package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"
	"runtime"
)

// ExecSource grabs frames by running an external screenshot command that
// writes one encoded image to stdout per invocation. The default command is
// ffmpeg with the platform screen-grab device; at 1 Hz the per-invocation
// cost is negligible and no capture library needs to be linked in.
type ExecSource struct {
	command string
	args    []string
}

// NewExecSource builds a source from an explicit command line.
func NewExecSource(command string, args ...string) *ExecSource {
	return &ExecSource{command: command, args: args}
}

// NewScreenSource builds the default ffmpeg screen-grab source for the
// current platform.
func NewScreenSource() *ExecSource {
	switch runtime.GOOS {
	case "darwin":
		return NewExecSource("ffmpeg",
			"-loglevel", "error",
			"-f", "avfoundation", "-capture_cursor", "1", "-i", "1:none",
			"-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-")
	case "windows":
		return NewExecSource("ffmpeg",
			"-loglevel", "error",
			"-f", "gdigrab", "-i", "desktop",
			"-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-")
	default:
		return NewExecSource("ffmpeg",
			"-loglevel", "error",
			"-f", "x11grab", "-i", ":0",
			"-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-")
	}
}

// Capture runs the screenshot command and decodes its output.
func (s *ExecSource) Capture(ctx context.Context) (image.Image, error) {
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := bytes.TrimSpace(stderr.Bytes())
		if len(detail) > 0 {
			return nil, fmt.Errorf("run %s: %w: %s", s.command, err, detail)
		}
		return nil, fmt.Errorf("run %s: %w", s.command, err)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", s.command, err)
	}
	return img, nil
}
