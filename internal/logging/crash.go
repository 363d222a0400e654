package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version,omitempty"`
	GOOS       string         `json:"goos"`
	GOARCH     string         `json:"goarch"`
	Component  string         `json:"component,omitempty"`
	Operation  string         `json:"operation,omitempty"`
	PanicValue string         `json:"panic_value"`
	StackTrace string         `json:"stack_trace"`
	Context    map[string]any `json:"context,omitempty"`
}

// CrashHandler recovers panics, logs them, and writes a JSON crash report to
// a directory. It keeps the key-handling path alive: a panic in one
// operation is recorded and the caller carries on.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	component string
	logger    *Logger
	onCrash   func(CrashReport)
	seq       int
}

// NewCrashHandler creates a handler writing reports under dir. An empty dir
// disables crash files; panics are still logged.
func NewCrashHandler(dir, component string, logger *Logger) *CrashHandler {
	if logger == nil {
		logger = Default()
	}
	return &CrashHandler{dir: dir, component: component, logger: logger}
}

// SetVersion sets the version recorded in reports.
func (h *CrashHandler) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}

// OnCrash registers a callback invoked after each report is written.
func (h *CrashHandler) OnCrash(fn func(CrashReport)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCrash = fn
}

// Guard runs fn and recovers a panic from it. It reports whether fn panicked.
func (h *CrashHandler) Guard(op string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(op, r, nil)
		}
	}()
	fn()
	return false
}

// HandlePanic records a recovered panic value.
func (h *CrashHandler) HandlePanic(op string, value any, contextInfo map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		Component:  h.component,
		Operation:  op,
		PanicValue: fmt.Sprint(value),
		StackTrace: string(debug.Stack()),
		Context:    contextInfo,
	}

	path, err := h.write(report)
	attrs := []any{"operation", op, "panic", report.PanicValue}
	if path != "" {
		attrs = append(attrs, "report", path)
	}
	if err != nil {
		attrs = append(attrs, "report_error", err)
	}
	h.logger.Error("recovered panic", attrs...)

	if h.onCrash != nil {
		h.onCrash(report)
	}
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if h.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	h.seq++
	name := fmt.Sprintf("crash-%s-%s-%d.json", report.Component, report.Timestamp.Format("20060102-150405"), h.seq)
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the crash reports stored in the handler's directory.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	if h.dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Cleanup removes crash reports older than maxAge.
func (h *CrashHandler) Cleanup(maxAge time.Duration) error {
	if h.dir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
