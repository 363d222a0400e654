package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Is lets errors.Is(err, ErrInvalidConfig) match any collection.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig checks every section of the configuration and returns all
// problems found as ValidationErrors.
func ValidateConfig(c *Config) error {
	if c == nil {
		return ValidationErrors{{Field: "config", Message: "configuration is nil"}}
	}

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStrings(c.Strings)...)
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateHotkeys(&c.Hotkeys)...)
	errs = append(errs, validateOutput(&c.Output)...)
	errs = append(errs, validateHistory(&c.History)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStrings(s Snippets) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]bool, len(s))
	for i, sn := range s {
		if sn.Trigger == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("strings[%d]", i),
				Message: "snippet must not be empty",
			})
			continue
		}
		if seen[sn.Trigger] {
			errs = append(errs, ValidationError{
				Field:   "strings." + sn.Trigger,
				Message: "duplicate snippet",
			})
		}
		seen[sn.Trigger] = true
	}
	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.TimeoutMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.timeout_ms",
			Message: "timeout must be at least 1 ms",
		})
	}
	if e.PollIntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.poll_interval_ms",
			Message: "poll interval must be at least 1 ms",
		})
	}
	if e.PasteDelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.paste_delay_ms",
			Message: "paste delay cannot be negative",
		})
	}
	if e.ClipboardRestoreMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.clipboard_restore_ms",
			Message: "clipboard restore delay cannot be negative",
		})
	}

	return errs
}

func validateHotkeys(h *HotkeyConfig) ValidationErrors {
	var errs ValidationErrors

	bindings := []struct{ field, chord string }{
		{"hotkeys.exit", h.Exit},
		{"hotkeys.toggle_sound", h.ToggleSound},
		{"hotkeys.reload", h.Reload},
		{"hotkeys.reset", h.Reset},
	}

	used := make(map[string]string)
	for _, b := range bindings {
		if b.chord == "" {
			continue
		}
		chord := strings.ToLower(b.chord)
		if strings.HasPrefix(chord, "+") || strings.HasSuffix(chord, "+") || strings.Contains(chord, "++") {
			errs = append(errs, ValidationError{
				Field:   b.field,
				Message: fmt.Sprintf("malformed key chord %q", b.chord),
			})
			continue
		}
		if other, dup := used[chord]; dup {
			errs = append(errs, ValidationError{
				Field:   b.field,
				Message: fmt.Sprintf("chord %q already bound by %s", b.chord, other),
			})
			continue
		}
		used[chord] = b.field
	}

	return errs
}

func validateOutput(o *OutputConfig) ValidationErrors {
	switch o.Backend {
	case "auto", "xdotool", "ydotool", "wtype":
		return nil
	default:
		return ValidationErrors{{
			Field:   "output.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: auto, xdotool, ydotool, wtype)", o.Backend),
		}}
	}
}

func validateHistory(h *HistoryConfig) ValidationErrors {
	var errs ValidationErrors

	if !h.Enabled {
		return errs
	}
	if h.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "history.path",
			Message: "path is required when history is enabled",
		})
	}
	if h.RetainDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.retain_days",
			Message: "retention cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return ValidationErrors{{
			Field:   "metrics.listen",
			Message: fmt.Sprintf("invalid listen address %q: %v", m.Listen, err),
		}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size cannot be negative",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	if i.Enabled && i.SocketPath == "" {
		return ValidationErrors{{
			Field:   "ipc.socket_path",
			Message: "socket path is required when IPC is enabled",
		}}
	}
	return nil
}
