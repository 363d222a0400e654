package keystroke

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultRestoreDelay is how long the expansion stays on the clipboard
// before the previous contents are put back.
const DefaultRestoreDelay = 500 * time.Millisecond

// Keys is the part of an injector PasteSink needs.
type Keys interface {
	Delete(n int) error
	Paste() error
}

// PasteSink inserts text by staging it on the clipboard and pressing the
// paste chord, then restores the previous clipboard after a delay. Pasting
// keeps multi-line and non-ASCII expansions intact where typing would not.
type PasteSink struct {
	keys         Keys
	clipboard    Clipboard
	restoreDelay time.Duration
	afterFunc    func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
}

// ErrSinkClosed is returned after Close.
var ErrSinkClosed = errors.New("paste sink closed")

// NewPasteSink creates a sink. A non-positive restoreDelay means
// DefaultRestoreDelay.
func NewPasteSink(keys Keys, cb Clipboard, restoreDelay time.Duration) *PasteSink {
	if restoreDelay <= 0 {
		restoreDelay = DefaultRestoreDelay
	}
	return &PasteSink{
		keys:         keys,
		clipboard:    cb,
		restoreDelay: restoreDelay,
		afterFunc:    time.AfterFunc,
		pending:      make(map[*time.Timer]struct{}),
	}
}

// Delete presses backspace n times.
func (p *PasteSink) Delete(n int) error {
	if p.isClosed() {
		return ErrSinkClosed
	}
	return p.keys.Delete(n)
}

// InsertText pastes text through the clipboard.
func (p *PasteSink) InsertText(text string) error {
	if p.isClosed() {
		return ErrSinkClosed
	}

	previous, err := p.clipboard.Read()
	if err != nil {
		previous = ""
	}
	if err := p.clipboard.Write(text); err != nil {
		return fmt.Errorf("stage clipboard: %w", err)
	}
	if err := p.keys.Paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	p.scheduleRestore(previous)
	return nil
}

func (p *PasteSink) scheduleRestore(previous string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	var t *time.Timer
	t = p.afterFunc(p.restoreDelay, func() {
		p.mu.Lock()
		_, live := p.pending[t]
		delete(p.pending, t)
		p.mu.Unlock()
		if live {
			_ = p.clipboard.Write(previous)
		}
	})
	p.pending[t] = struct{}{}
}

// Pending returns the number of clipboard restores not yet run.
func (p *PasteSink) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *PasteSink) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close cancels pending clipboard restores. Restores are best effort and
// skipped on exit.
func (p *PasteSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for t := range p.pending {
		t.Stop()
	}
	p.pending = make(map[*time.Timer]struct{})
	return nil
}
