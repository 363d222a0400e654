// Package engine turns a stream of key events into snippet expansions.
//
// An Engine owns the InputBuffer, the active snippet table, and the sound
// flag. Key events arrive in order on one goroutine through OnKey; a
// TimeoutWatcher clears the buffer concurrently after a period of
// inactivity. Substitution and emission happen after the buffer lock is
// released.
package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"snipit/internal/flags"
	"snipit/internal/logging"
	"snipit/internal/metrics"
	"snipit/internal/snippet"
)

var (
	// ErrLookupRace means a matched snippet was gone from the table by the
	// time its template was resolved. The firing is abandoned.
	ErrLookupRace = errors.New("snippet removed between match and lookup")

	// ErrNoSink is returned by New without an output sink.
	ErrNoSink = errors.New("engine: output sink is required")
)

// DefaultPasteDelay is the pause between deleting the snippet and inserting
// its expansion.
const DefaultPasteDelay = 50 * time.Millisecond

// Sink deletes characters before the cursor and inserts text at it.
type Sink interface {
	Delete(n int) error
	InsertText(text string) error
}

// Notifier produces the audible confirmation of a firing.
type Notifier interface {
	Beep() error
}

// Recorder persists a summary of each firing. The expanded text is not
// passed on.
type Recorder interface {
	RecordFiring(snippet string, at time.Time, deleted, inserted int) error
}

// EmissionError wraps a failure while deleting or inserting text. The buffer
// has already been cleared when it occurs and nothing is rolled back.
type EmissionError struct {
	Op  string
	Err error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("emit %s: %v", e.Op, e.Err)
}

func (e *EmissionError) Unwrap() error { return e.Err }

// Config holds the collaborators of an Engine. Only Sink is required.
type Config struct {
	Table      *snippet.Table
	Sink       Sink
	Notifier   Notifier
	Recorder   Recorder
	Metrics    *metrics.EngineMetrics
	Logger     *logging.Logger
	Clock      Clock
	Sound      bool
	PasteDelay time.Duration

	// Sleep replaces time.Sleep for the paste delay.
	Sleep func(time.Duration)
}

// Status is a point-in-time view of the engine.
type Status struct {
	Snippets       int    `json:"snippets"`
	BufferLength   int    `json:"buffer_length"`
	Sound          bool   `json:"sound"`
	Firings        uint64 `json:"firings"`
	EmissionErrors uint64 `json:"emission_errors"`
	LookupRaces    uint64 `json:"lookup_races"`
}

// Engine is the expansion state machine.
type Engine struct {
	buf   InputBuffer
	table atomic.Pointer[snippet.Table]
	sound atomic.Bool

	sink       Sink
	notifier   Notifier
	recorder   Recorder
	metrics    *metrics.EngineMetrics
	logger     *logging.Logger
	clock      Clock
	pasteDelay time.Duration
	sleep      func(time.Duration)

	firings        atomic.Uint64
	emissionErrors atomic.Uint64
	lookupRaces    atomic.Uint64
}

// matchedHook is set by tests to run between matching and template lookup,
// with the buffer lock held.
var matchedHook func(*Engine)

// New creates an engine. A nil Table means snippet.Default().
func New(cfg Config) (*Engine, error) {
	if cfg.Sink == nil {
		return nil, ErrNoSink
	}

	e := &Engine{
		sink:       cfg.Sink,
		notifier:   cfg.Notifier,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		pasteDelay: cfg.PasteDelay,
		sleep:      cfg.Sleep,
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.WithComponent("engine")
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.pasteDelay < 0 {
		e.pasteDelay = 0
	}
	if e.sleep == nil {
		e.sleep = time.Sleep
	}

	table := cfg.Table
	if table == nil {
		table = snippet.Default()
	}
	e.table.Store(table)
	e.sound.Store(cfg.Sound)
	if e.metrics != nil {
		e.metrics.Snippets.Set(int64(table.Len()))
	}
	return e, nil
}

// translate maps a key name to the text it adds to the buffer. The second
// result is false for keys that do not touch the buffer content.
func translate(key string) (string, bool) {
	switch key {
	case "space":
		return " ", true
	case "tab":
		return "\t", true
	case "backspace":
		return "", true
	}
	if utf8.RuneCountInString(key) == 1 {
		return key, true
	}
	return "", false
}

// OnKey ingests one key event. Every event, including ignored named keys,
// counts as activity for the idle timeout. When the buffer ends with a
// snippet, the snippet is deleted and its expansion inserted before OnKey
// returns.
func (e *Engine) OnKey(key string) {
	now := e.clock.Now()
	if e.metrics != nil {
		e.metrics.RecordKey()
	}

	text, ok := translate(key)

	e.buf.mu.Lock()
	e.buf.lastActivity = now
	if !ok {
		e.buf.mu.Unlock()
		return
	}
	if key == "backspace" {
		e.buf.backspaceLocked()
		n := utf8.RuneCountInString(e.buf.text)
		e.buf.mu.Unlock()
		e.observeBuffer(n)
		return
	}

	e.buf.text += text
	matched, found := Match(e.buf.text, e.table.Load().Candidates())
	if !found {
		n := utf8.RuneCountInString(e.buf.text)
		e.buf.mu.Unlock()
		e.observeBuffer(n)
		return
	}

	if matchedHook != nil {
		matchedHook(e)
	}
	template, err := e.table.Load().Template(matched)
	if err != nil {
		e.buf.mu.Unlock()
		e.lookupRaces.Add(1)
		if e.metrics != nil {
			e.metrics.RecordLookupRace()
		}
		e.logger.Debug("firing abandoned", "error", fmt.Errorf("%w: %w", ErrLookupRace, err))
		return
	}
	if template == "" {
		n := utf8.RuneCountInString(e.buf.text)
		e.buf.mu.Unlock()
		e.observeBuffer(n)
		e.logger.Debug("empty expansion, not firing", "snippet_len", utf8.RuneCountInString(matched))
		return
	}
	e.buf.text = ""
	e.buf.mu.Unlock()
	e.observeBuffer(0)

	e.fire(matched, template)
}

func (e *Engine) observeBuffer(n int) {
	if e.metrics != nil {
		e.metrics.SetBufferLength(n)
	}
}

// fire runs with the buffer lock released.
func (e *Engine) fire(matched, template string) {
	start := e.clock.Now()
	text := flags.ExpandLineBreaks(flags.Expand(template, start))
	deleted := utf8.RuneCountInString(matched)

	if err := e.emit(deleted, text); err != nil {
		e.emissionErrors.Add(1)
		if e.metrics != nil {
			e.metrics.RecordEmissionError()
		}
		e.logger.Warn("expansion failed", "snippet_len", deleted, "error", err)
		return
	}

	if e.sound.Load() && e.notifier != nil {
		if err := e.notifier.Beep(); err != nil {
			e.logger.Debug("sound failed", "error", err)
		}
	}

	e.firings.Add(1)
	inserted := utf8.RuneCountInString(text)
	end := e.clock.Now()
	if e.metrics != nil {
		e.metrics.RecordFiring(end, end.Sub(start))
	}
	if e.recorder != nil {
		if err := e.recorder.RecordFiring(matched, start, deleted, inserted); err != nil {
			e.logger.Warn("record firing", "error", err)
		}
	}
	e.logger.Debug("expanded", "snippet_len", deleted, "inserted", inserted)
}

func (e *Engine) emit(deleted int, text string) error {
	if err := e.sink.Delete(deleted); err != nil {
		return &EmissionError{Op: "delete", Err: err}
	}
	if e.pasteDelay > 0 {
		e.sleep(e.pasteDelay)
	}
	if err := e.sink.InsertText(text); err != nil {
		return &EmissionError{Op: "insert", Err: err}
	}
	return nil
}

// Reset clears the input buffer.
func (e *Engine) Reset() {
	e.buf.Clear()
	e.observeBuffer(0)
}

// Buffer returns the engine's input buffer.
func (e *Engine) Buffer() *InputBuffer {
	return &e.buf
}

// Table returns the active snippet table.
func (e *Engine) Table() *snippet.Table {
	return e.table.Load()
}

// SetTable swaps in a new snippet table. Matches in flight resolve their
// template against whichever table is current at lookup time.
func (e *Engine) SetTable(t *snippet.Table) {
	if t == nil {
		t = snippet.Default()
	}
	e.table.Store(t)
	if e.metrics != nil {
		e.metrics.RecordReload(t.Len())
	}
	e.logger.Info("snippet table loaded", "snippets", t.Len())
}

// Sound reports whether audible confirmation is on.
func (e *Engine) Sound() bool {
	return e.sound.Load()
}

// SetSound turns audible confirmation on or off.
func (e *Engine) SetSound(on bool) {
	e.sound.Store(on)
}

// ToggleSound flips audible confirmation and returns the new setting.
func (e *Engine) ToggleSound() bool {
	for {
		old := e.sound.Load()
		if e.sound.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	return Status{
		Snippets:       e.table.Load().Len(),
		BufferLength:   e.buf.Len(),
		Sound:          e.sound.Load(),
		Firings:        e.firings.Load(),
		EmissionErrors: e.emissionErrors.Load(),
		LookupRaces:    e.lookupRaces.Load(),
	}
}
