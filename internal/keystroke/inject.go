package keystroke

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Injector backends.
const (
	BackendAuto    = "auto"
	BackendXdotool = "xdotool"
	BackendYdotool = "ydotool"
	BackendWtype   = "wtype"
)

// ErrNoBackend is returned when no injection tool is installed.
var ErrNoBackend = errors.New("no key injection tool found (install xdotool, ydotool or wtype)")

// ydotool key codes.
const (
	ydoBackspace = 14
	ydoCtrl      = 29
	ydoV         = 47
)

// Runner executes an external command.
type Runner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DetectBackend picks an injection tool for the current session: wtype or
// ydotool under Wayland, xdotool under X11, ydotool otherwise.
func DetectBackend(getenv func(string) string, lookPath func(string) (string, error)) (string, error) {
	has := func(tool string) bool {
		_, err := lookPath(tool)
		return err == nil
	}

	var order []string
	switch {
	case getenv("WAYLAND_DISPLAY") != "":
		order = []string{BackendWtype, BackendYdotool, BackendXdotool}
	case getenv("DISPLAY") != "":
		order = []string{BackendXdotool, BackendYdotool}
	default:
		order = []string{BackendYdotool}
	}
	for _, tool := range order {
		if has(tool) {
			return tool, nil
		}
	}
	return "", ErrNoBackend
}

// CommandInjector synthesizes key presses through an external tool.
// It implements the engine's output sink by typing text directly.
type CommandInjector struct {
	backend string
	run     Runner
}

// NewCommandInjector creates an injector. BackendAuto (or "") detects the
// tool from the environment.
func NewCommandInjector(backend string) (*CommandInjector, error) {
	if backend == "" || backend == BackendAuto {
		detected, err := DetectBackend(os.Getenv, exec.LookPath)
		if err != nil {
			return nil, err
		}
		backend = detected
	}
	return NewCommandInjectorWithRunner(backend, runCommand)
}

// NewCommandInjectorWithRunner creates an injector for a fixed backend that
// runs commands through run.
func NewCommandInjectorWithRunner(backend string, run Runner) (*CommandInjector, error) {
	switch backend {
	case BackendXdotool, BackendYdotool, BackendWtype:
	default:
		return nil, fmt.Errorf("unknown injection backend %q", backend)
	}
	return &CommandInjector{backend: backend, run: run}, nil
}

// Backend returns the tool in use.
func (c *CommandInjector) Backend() string {
	return c.backend
}

// Delete presses backspace n times.
func (c *CommandInjector) Delete(n int) error {
	if n <= 0 {
		return nil
	}
	switch c.backend {
	case BackendXdotool:
		return c.run("xdotool", "key", "--clearmodifiers", "--delay", "0",
			"--repeat", strconv.Itoa(n), "BackSpace")
	case BackendYdotool:
		args := []string{"key"}
		for i := 0; i < n; i++ {
			args = append(args, fmt.Sprintf("%d:1", ydoBackspace), fmt.Sprintf("%d:0", ydoBackspace))
		}
		return c.run("ydotool", args...)
	default:
		args := make([]string, 0, 2*n)
		for i := 0; i < n; i++ {
			args = append(args, "-k", "BackSpace")
		}
		return c.run("wtype", args...)
	}
}

// InsertText types text.
func (c *CommandInjector) InsertText(text string) error {
	if text == "" {
		return nil
	}
	switch c.backend {
	case BackendXdotool:
		return c.run("xdotool", "type", "--clearmodifiers", "--delay", "0", "--", text)
	case BackendYdotool:
		return c.run("ydotool", "type", "--", text)
	default:
		return c.run("wtype", "--", text)
	}
}

// Paste sends the paste chord (ctrl+v).
func (c *CommandInjector) Paste() error {
	switch c.backend {
	case BackendXdotool:
		return c.run("xdotool", "key", "--clearmodifiers", "ctrl+v")
	case BackendYdotool:
		return c.run("ydotool", "key",
			fmt.Sprintf("%d:1", ydoCtrl), fmt.Sprintf("%d:1", ydoV),
			fmt.Sprintf("%d:0", ydoV), fmt.Sprintf("%d:0", ydoCtrl))
	default:
		return c.run("wtype", "-M", "ctrl", "v", "-m", "ctrl")
	}
}
