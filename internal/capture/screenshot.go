package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoScreenshotter indicates no supported screenshot command is installed.
var ErrNoScreenshotter = errors.New("no screenshot command found. Install grim (Wayland), import (X11) or gnome-screenshot")

const filePlaceholder = "{file}"

// screenshotCommands are tried in order when no command is configured.
var screenshotCommands = []string{
	"grim {file}",
	"screencapture -x -t png {file}",
	"import -window root {file}",
	"gnome-screenshot -f {file}",
}

// CommandScreenshotter captures the screen by running an external command
// that writes a PNG to a temp file.
type CommandScreenshotter struct {
	command  string
	lookPath func(string) (string, error)
}

// NewCommandScreenshotter returns a screenshotter for command. The command may
// contain {file} where the output path goes; otherwise the path is appended.
// An empty command auto-detects one of the built-in tools.
func NewCommandScreenshotter(command string) *CommandScreenshotter {
	return &CommandScreenshotter{
		command:  strings.TrimSpace(command),
		lookPath: exec.LookPath,
	}
}

// Capture implements Screenshotter. A failing or silent command is reported
// as a *DeniedError carrying the command's stderr.
func (s *CommandScreenshotter) Capture(ctx context.Context) ([]byte, error) {
	template, err := s.resolve()
	if err != nil {
		return nil, &DeniedError{Reason: err.Error()}
	}

	dir, err := os.MkdirTemp("", "insight-capture-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "screen.png")

	name, args := expand(template, path)
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		return nil, &DeniedError{Reason: reason}
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, &DeniedError{Reason: "screenshot command produced no image"}
	}
	return data, nil
}

func (s *CommandScreenshotter) resolve() (string, error) {
	if s.command != "" {
		return s.command, nil
	}
	for _, candidate := range screenshotCommands {
		name := strings.Fields(candidate)[0]
		if _, err := s.lookPath(name); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNoScreenshotter
}

func expand(template, path string) (string, []string) {
	fields := strings.Fields(template)
	replaced := false
	for i, f := range fields {
		if strings.Contains(f, filePlaceholder) {
			fields[i] = strings.ReplaceAll(f, filePlaceholder, path)
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, path)
	}
	return fields[0], fields[1:]
}
