// Package notify provides the audible confirmation played after an
// expansion and desktop notifications for status changes.
package notify

import (
	"errors"
	"io"
	"os"
	"sync"
)

// Notifier signals the user.
type Notifier interface {
	// Beep plays the firing confirmation sound.
	Beep() error

	// Notify shows a desktop notification.
	Notify(summary, body string) error
}

// ErrUnavailable is returned when no notification service can be reached.
var ErrUnavailable = errors.New("desktop notifications unavailable")

// Bell rings the terminal bell.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell creates a bell writing to w, or stderr when w is nil.
func NewBell(w io.Writer) *Bell {
	if w == nil {
		w = os.Stderr
	}
	return &Bell{w: w}
}

// Beep writes BEL.
func (b *Bell) Beep() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\a")
	return err
}

// Notify writes the summary and body as a line.
func (b *Bell) Notify(summary, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := summary
	if body != "" {
		line += ": " + body
	}
	_, err := io.WriteString(b.w, line+"\n")
	return err
}

// Fallback uses Primary and falls back to Secondary when it fails.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

// Beep implements Notifier.
func (f *Fallback) Beep() error {
	if f.Primary != nil {
		if err := f.Primary.Beep(); err == nil {
			return nil
		}
	}
	if f.Secondary == nil {
		return ErrUnavailable
	}
	return f.Secondary.Beep()
}

// Notify implements Notifier.
func (f *Fallback) Notify(summary, body string) error {
	if f.Primary != nil {
		if err := f.Primary.Notify(summary, body); err == nil {
			return nil
		}
	}
	if f.Secondary == nil {
		return ErrUnavailable
	}
	return f.Secondary.Notify(summary, body)
}

// New returns the desktop notifier for this platform, falling back to the
// terminal bell. The error reports why the desktop notifier is missing; the
// returned Notifier is usable either way.
func New(appName string) (Notifier, error) {
	bell := NewBell(nil)
	desktop, err := newPlatformNotifier(appName)
	if err != nil {
		return &Fallback{Secondary: bell}, err
	}
	return &Fallback{Primary: desktop, Secondary: bell}, nil
}
