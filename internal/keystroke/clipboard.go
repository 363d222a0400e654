package keystroke

import (
	"errors"

	"github.com/atotto/clipboard"
)

// Clipboard reads and writes the system text clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// ErrClipboardUnsupported is returned when no clipboard utility is present
// (xclip, xsel, wl-clipboard or termux on Linux).
var ErrClipboardUnsupported = errors.New("clipboard not supported on this system")

// SystemClipboard uses the platform clipboard.
type SystemClipboard struct{}

// Read returns the clipboard text.
func (SystemClipboard) Read() (string, error) {
	if clipboard.Unsupported {
		return "", ErrClipboardUnsupported
	}
	return clipboard.ReadAll()
}

// Write replaces the clipboard text.
func (SystemClipboard) Write(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}

// ClipboardAvailable reports whether a clipboard utility was found.
func ClipboardAvailable() bool {
	return !clipboard.Unsupported
}
