package engine

import (
	"sync"
	"time"
	"unicode/utf8"
)

// InputBuffer is the rolling record of recently typed characters. All access
// goes through one mutex, shared by key ingestion and the timeout watcher.
type InputBuffer struct {
	mu           sync.Mutex
	text         string
	lastActivity time.Time
}

// Touch records now as the time of the latest key event.
func (b *InputBuffer) Touch(now time.Time) {
	b.mu.Lock()
	b.lastActivity = now
	b.mu.Unlock()
}

// Append adds s to the end of the buffer.
func (b *InputBuffer) Append(s string) {
	b.mu.Lock()
	b.text += s
	b.mu.Unlock()
}

// Backspace removes the last character, if any.
func (b *InputBuffer) Backspace() {
	b.mu.Lock()
	b.backspaceLocked()
	b.mu.Unlock()
}

func (b *InputBuffer) backspaceLocked() {
	if b.text == "" {
		return
	}
	_, size := utf8.DecodeLastRuneInString(b.text)
	b.text = b.text[:len(b.text)-size]
}

// Clear empties the buffer. The activity timestamp is left alone.
func (b *InputBuffer) Clear() {
	b.mu.Lock()
	b.text = ""
	b.mu.Unlock()
}

// ClearIfIdle empties a non-empty buffer whose last activity is more than
// timeout before now. It reports whether it cleared anything.
func (b *InputBuffer) ClearIfIdle(now time.Time, timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.text == "" || now.Sub(b.lastActivity) <= timeout {
		return false
	}
	b.text = ""
	return true
}

// String returns the buffer contents.
func (b *InputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Len returns the number of characters held.
func (b *InputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return utf8.RuneCountInString(b.text)
}

// LastActivity returns the time of the latest key event.
func (b *InputBuffer) LastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActivity
}
