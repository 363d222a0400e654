//go:build !linux

package notify

func newPlatformNotifier(string) (Notifier, error) {
	return nil, ErrUnavailable
}
