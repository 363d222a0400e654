//go:build !linux

package keystroke

import "context"

// StubSource is used on platforms without a key source.
type StubSource struct {
	BaseSource
}

func newPlatformSource(string) Source {
	return &StubSource{}
}

// Available returns false.
func (s *StubSource) Available() (bool, string) {
	return false, "keyboard input not implemented for this platform"
}

// Start returns ErrNotAvailable.
func (s *StubSource) Start(ctx context.Context) error {
	return ErrNotAvailable
}

// Stop is a no-op.
func (s *StubSource) Stop() error {
	return nil
}
