package foreground

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ExecSampler reads the foreground window identity from an external command
// that prints it on stdout.
type ExecSampler struct {
	command string
	args    []string
}

// NewExecSampler builds a sampler from an explicit command line.
func NewExecSampler(command string, args ...string) *ExecSampler {
	return &ExecSampler{command: command, args: args}
}

// NewWindowSampler builds the default foreground window sampler for the
// current platform.
func NewWindowSampler() *ExecSampler {
	switch runtime.GOOS {
	case "darwin":
		return NewExecSampler("osascript", "-e",
			`tell application "System Events" to get name of first application process whose frontmost is true`)
	default:
		return NewExecSampler("xdotool", "getactivewindow", "getwindowname")
	}
}

// Sample runs the command and returns its trimmed first output line.
func (s *ExecSampler) Sample(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w", s.command, err)
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}
