package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("snipit is already running")

// State is the persistent record of a running daemon.
type State struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version"`
	ConfigPath string    `json:"config_path"`
	SocketPath string    `json:"socket_path,omitempty"`
}

// Status is the daemon status as seen from outside the process.
type Status struct {
	Running   bool
	PID       int
	StartedAt time.Time
	Uptime    time.Duration
	Version   string
}

// Manager handles the PID file, state file and single-instance lock.
type Manager struct {
	pidFile   string
	stateFile string
	lock      *os.File
}

// NewManager creates a manager for the PID file at pidFile. The state file
// sits next to it.
func NewManager(pidFile string) *Manager {
	return &Manager{
		pidFile:   pidFile,
		stateFile: strings.TrimSuffix(pidFile, filepath.Ext(pidFile)) + ".state",
	}
}

// PIDFile returns the PID file path.
func (m *Manager) PIDFile() string {
	return m.pidFile
}

// Acquire takes the instance lock and writes the current PID. It fails with
// ErrAlreadyRunning if another process holds the lock.
func (m *Manager) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	f, err := os.OpenFile(m.pidFile, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open pid file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if pid, rerr := m.ReadPID(); rerr == nil {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return ErrAlreadyRunning
	}

	if err := f.Truncate(0); err != nil {
		unlockFile(f)
		f.Close()
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		unlockFile(f)
		f.Close()
		return fmt.Errorf("write pid file: %w", err)
	}

	m.lock = f
	return nil
}

// Release drops the lock and removes the PID and state files.
func (m *Manager) Release() {
	if m.lock != nil {
		unlockFile(m.lock)
		m.lock.Close()
		m.lock = nil
	}
	os.Remove(m.pidFile)
	os.Remove(m.stateFile)
}

// ReadPID reads the daemon's PID from the PID file.
func (m *Manager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// IsRunning checks if the daemon is running.
func (m *Manager) IsRunning() bool {
	pid, err := m.ReadPID()
	if err != nil {
		return false
	}
	return isProcessRunning(pid)
}

// WriteState writes the daemon state.
func (m *Manager) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(m.stateFile, data, 0600)
}

// ReadState reads the daemon state.
func (m *Manager) ReadState() (*State, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// Status returns the current daemon status.
func (m *Manager) Status() *Status {
	status := &Status{}

	if pid, err := m.ReadPID(); err == nil && isProcessRunning(pid) {
		status.Running = true
		status.PID = pid
	}
	if state, err := m.ReadState(); err == nil {
		status.StartedAt = state.StartedAt
		status.Version = state.Version
		if status.Running {
			status.Uptime = time.Since(state.StartedAt)
		}
	}
	return status
}

func (m *Manager) signal(sig syscall.Signal) error {
	pid, err := m.ReadPID()
	if err != nil {
		return fmt.Errorf("read PID: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	return process.Signal(sig)
}

// SignalStop sends SIGTERM to the daemon.
func (m *Manager) SignalStop() error {
	return m.signal(syscall.SIGTERM)
}

// SignalReload sends SIGHUP to the daemon.
func (m *Manager) SignalReload() error {
	return m.signal(syscall.SIGHUP)
}

// WaitForStop waits for the daemon to stop.
func (m *Manager) WaitForStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %v", timeout)
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 checks existence.
	return process.Signal(syscall.Signal(0)) == nil
}
