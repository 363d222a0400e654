// Package config handles configuration loading, validation, and management for snipit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete snipit configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Strings maps snippets to replacement templates, in document order.
	Strings Snippets `toml:"strings,omitempty" json:"strings" yaml:"strings"`

	// Settings holds the user-facing toggles.
	Settings SettingsConfig `toml:"settings" json:"settings" yaml:"settings"`

	// Engine holds the matching engine timings.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Hotkeys binds key chords to daemon actions.
	Hotkeys HotkeyConfig `toml:"hotkeys" json:"hotkeys" yaml:"hotkeys"`

	// Input configures the keystroke source.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Output configures keystroke injection.
	Output OutputConfig `toml:"output" json:"output" yaml:"output"`

	// History configures the firing history store.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Metrics configures the optional metrics endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`
}

// SettingsConfig holds the settings section.
type SettingsConfig struct {
	// Sound plays a confirmation after every expansion.
	Sound bool `toml:"sound" json:"sound" yaml:"sound"`
}

// EngineConfig holds the matching engine timings.
type EngineConfig struct {
	// TimeoutMs is the idle period after which the input buffer is cleared.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`

	// PollIntervalMs is how often the idle timeout is checked.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// PasteDelayMs is the pause between deleting the snippet and inserting
	// the expansion.
	PasteDelayMs int `toml:"paste_delay_ms" json:"paste_delay_ms" yaml:"paste_delay_ms"`

	// ClipboardRestoreMs is the grace delay before the previous clipboard
	// content is restored.
	ClipboardRestoreMs int `toml:"clipboard_restore_ms" json:"clipboard_restore_ms" yaml:"clipboard_restore_ms"`
}

// HotkeyConfig binds chords to daemon actions. An empty binding disables it.
type HotkeyConfig struct {
	Exit        string `toml:"exit" json:"exit" yaml:"exit"`
	ToggleSound string `toml:"toggle_sound" json:"toggle_sound" yaml:"toggle_sound"`
	Reload      string `toml:"reload" json:"reload" yaml:"reload"`
	Reset       string `toml:"reset" json:"reset" yaml:"reset"`
}

// InputConfig configures the keystroke source.
type InputConfig struct {
	// Device is the evdev device to read. Empty means auto-detect.
	Device string `toml:"device" json:"device" yaml:"device"`
}

// OutputConfig configures keystroke injection.
type OutputConfig struct {
	// Backend is "auto", "xdotool", "ydotool" or "wtype".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
}

// HistoryConfig configures the firing history store.
type HistoryConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path       string `toml:"path" json:"path" yaml:"path"`
	RetainDays int    `toml:"retain_days" json:"retain_days" yaml:"retain_days"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// LogContent disables redaction of typed and expanded text.
	LogContent bool `toml:"log_content" json:"log_content" yaml:"log_content"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// Error reports an unreadable or malformed configuration store.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DefaultSnippets returns the built-in sample snippets.
func DefaultSnippets() Snippets {
	return Snippets{
		{Trigger: "ttime", Template: "%HH%mm%ss_"},
		{Trigger: "ddate", Template: "%yy%MM%dd_"},
		{Trigger: "date2", Template: "%dd.%MM.%yyyy"},
		{Trigger: "ddd", Template: "%yyyy-%MM-%dd_"},
		{Trigger: "bbb", Template: "Best regards.{n}John Doe"},
		{Trigger: "kkind", Template: "Kind regards.{n}John Doe"},
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Strings: DefaultSnippets(),
		Settings: SettingsConfig{
			Sound: false,
		},
		Engine: EngineConfig{
			TimeoutMs:          2000,
			PollIntervalMs:     100,
			PasteDelayMs:       50,
			ClipboardRestoreMs: 500,
		},
		Hotkeys: HotkeyConfig{
			Exit:        "ctrl+shift+q",
			ToggleSound: "ctrl+shift+p",
			Reload:      "ctrl+shift+s",
			Reset:       "esc",
		},
		Output: OutputConfig{
			Backend: "auto",
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       HistoryPath(),
			RetainDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "snipit.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: SocketPath(),
		},
	}
}

// Dir returns the snipit configuration directory.
// SNIPIT_DIR overrides the platform default.
func Dir() string {
	if envDir := os.Getenv("SNIPIT_DIR"); envDir != "" {
		return envDir
	}
	return PlatformConfigDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "snipit.toml")
}

// ListPath returns the path of the plain-text snippet listing.
func ListPath() string {
	return filepath.Join(Dir(), "List.txt")
}

// PIDPath returns the daemon PID file path.
func PIDPath() string {
	return filepath.Join(PlatformRuntimeDir(), "snipit.pid")
}

// SocketPath returns the default control socket path.
func SocketPath() string {
	return filepath.Join(PlatformRuntimeDir(), "snipit.sock")
}

// Timeout returns the idle timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Engine.TimeoutMs) * time.Millisecond
}

// PollInterval returns the idle check interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
}

// PasteDelay returns the delete-to-insert pause as a duration.
func (c *Config) PasteDelay() time.Duration {
	return time.Duration(c.Engine.PasteDelayMs) * time.Millisecond
}

// ClipboardRestore returns the clipboard restore grace delay.
func (c *Config) ClipboardRestore() time.Duration {
	return time.Duration(c.Engine.ClipboardRestoreMs) * time.Millisecond
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{Dir()}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.IPC.Enabled {
		dirs = append(dirs, filepath.Dir(c.IPC.SocketPath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SNIPIT_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SNIPIT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Engine.TimeoutMs = ms
		}
	}
	if v := os.Getenv("SNIPIT_SOUND"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Settings.Sound = on
		}
	}
	if v := os.Getenv("SNIPIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SNIPIT_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("SNIPIT_INPUT_DEVICE"); v != "" {
		c.Input.Device = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Strings = append(Snippets(nil), c.Strings...)
	return &clone
}

// HistoryPath returns the default firing history database path.
func HistoryPath() string {
	return filepath.Join(PlatformDataDir(), "history.db")
}
