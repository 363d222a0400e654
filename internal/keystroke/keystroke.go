// Package keystroke delivers key events to the expansion engine and carries
// the output side: clipboard access and key injection.
//
// Platform support:
//   - Linux: reads /dev/input/event* (requires the input group or root)
//   - elsewhere: no live source; SimulatedSource is available for tests
package keystroke

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one key press. Name is either a single printable character or a
// key name such as "space", "backspace", "tab", "esc", "left", "f1" or a
// chord such as "ctrl+shift+q".
type Event struct {
	Name      string
	Timestamp time.Time
}

// Source produces key events in press order.
type Source interface {
	// Start begins delivering events.
	Start(ctx context.Context) error

	// Stop stops delivery and closes the Events channel.
	Stop() error

	// Events returns the channel events are delivered on.
	Events() <-chan Event

	// Available reports whether the source can run with the current
	// permissions, with a human-readable reason.
	Available() (bool, string)
}

var (
	// ErrNotAvailable is returned when no keyboard source can be opened.
	ErrNotAvailable = errors.New("keyboard input not available on this platform")

	// ErrPermissionDenied is returned when input devices exist but cannot be read.
	ErrPermissionDenied = errors.New("insufficient permissions to read keyboard input")

	// ErrAlreadyRunning is returned when Start is called while running.
	ErrAlreadyRunning = errors.New("source already running")
)

const eventBuffer = 256

// BaseSource provides the event channel and lifecycle shared by sources.
type BaseSource struct {
	mu      sync.RWMutex
	running bool
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	count   atomic.Uint64
}

// Events returns the event channel. It is closed by Stop.
func (b *BaseSource) Events() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(chan Event, eventBuffer)
	}
	return b.events
}

// Count returns the number of events delivered.
func (b *BaseSource) Count() uint64 {
	return b.count.Load()
}

// IsRunning returns the running state.
func (b *BaseSource) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *BaseSource) begin(parent context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, ErrAlreadyRunning
	}
	if b.events == nil {
		b.events = make(chan Event, eventBuffer)
	}
	b.ctx, b.cancel = context.WithCancel(parent)
	b.running = true
	return b.ctx, nil
}

func (b *BaseSource) end() bool {
	b.mu.RLock()
	running, cancel := b.running, b.cancel
	b.mu.RUnlock()
	if !running {
		return false
	}

	// Unblocks any Deliver waiting on a full channel.
	cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	close(b.events)
	b.events = nil
	b.cancel = nil
	return true
}

// Deliver sends e, waiting while the channel is full. It returns false once
// the source is stopped.
func (b *BaseSource) Deliver(e Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.running {
		return false
	}
	select {
	case b.events <- e:
		b.count.Add(1)
		return true
	case <-b.ctx.Done():
		return false
	}
}

// New creates the platform source. device selects one input device; empty
// means every keyboard found.
func New(device string) Source {
	return newPlatformSource(device)
}

// SimulatedSource is a source driven by test code.
type SimulatedSource struct {
	BaseSource
	now func() time.Time
}

// NewSimulated creates a simulated source.
func NewSimulated() *SimulatedSource {
	return &SimulatedSource{now: time.Now}
}

// Start begins accepting simulated events.
func (s *SimulatedSource) Start(ctx context.Context) error {
	_, err := s.begin(ctx)
	return err
}

// Stop stops the source and closes its channel.
func (s *SimulatedSource) Stop() error {
	s.end()
	return nil
}

// Available returns true.
func (s *SimulatedSource) Available() (bool, string) {
	return true, "simulated source (for testing)"
}

// Press delivers one named key or character.
func (s *SimulatedSource) Press(name string) bool {
	return s.Deliver(Event{Name: name, Timestamp: s.now()})
}

// Type delivers text one character at a time, using key names for space,
// tab and newline.
func (s *SimulatedSource) Type(text string) int {
	n := 0
	for _, r := range text {
		name := string(r)
		switch r {
		case ' ':
			name = "space"
		case '\t':
			name = "tab"
		case '\n':
			name = "enter"
		}
		if !s.Press(name) {
			break
		}
		n++
	}
	return n
}
