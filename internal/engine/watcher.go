package engine

import (
	"context"
	"sync"
	"time"
)

// Defaults for the idle timeout.
const (
	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// TimeoutWatcher clears the engine's buffer once no key has arrived for
// longer than the timeout. It polls rather than arming a timer per key.
type TimeoutWatcher struct {
	engine   *Engine
	timeout  time.Duration
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimeoutWatcher creates a watcher for e. Non-positive durations fall
// back to the defaults.
func NewTimeoutWatcher(e *Engine, timeout, interval time.Duration) *TimeoutWatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &TimeoutWatcher{engine: e, timeout: timeout, interval: interval}
}

// Check runs one poll and reports whether the buffer was cleared.
func (w *TimeoutWatcher) Check() bool {
	if !w.engine.buf.ClearIfIdle(w.engine.clock.Now(), w.timeout) {
		return false
	}
	if m := w.engine.metrics; m != nil {
		m.RecordTimeout()
		m.SetBufferLength(0)
	}
	w.engine.logger.Debug("buffer cleared after inactivity", "timeout", w.timeout)
	return true
}

// Run polls until ctx is cancelled and returns ctx.Err().
func (w *TimeoutWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}

// Start runs the watcher in a goroutine. Calling Start on a running watcher
// does nothing.
func (w *TimeoutWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *TimeoutWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
