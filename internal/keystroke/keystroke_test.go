package keystroke

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeymapTranslate(t *testing.T) {
	var km Keymap

	press := func(code uint16) string {
		name, ok := km.Translate(code, keyPress)
		if !ok {
			t.Fatalf("code %d produced no event", code)
		}
		km.Translate(code, keyRelease)
		return name
	}

	if got := press(16); got != "q" {
		t.Errorf("q: got %q", got)
	}
	if got := press(57); got != "space" {
		t.Errorf("space: got %q", got)
	}
	if got := press(14); got != "backspace" {
		t.Errorf("backspace: got %q", got)
	}
	if got := press(105); got != "left" {
		t.Errorf("left: got %q", got)
	}

	km.Translate(codeLeftShift, keyPress)
	if got := press(16); got != "Q" {
		t.Errorf("shift+q: got %q", got)
	}
	if got := press(2); got != "!" {
		t.Errorf("shift+1: got %q", got)
	}
	if got := press(57); got != "space" {
		t.Errorf("shift+space: got %q", got)
	}
	km.Translate(codeLeftShift, keyRelease)

	if got := press(2); got != "1" {
		t.Errorf("1 after shift release: got %q", got)
	}
}

func TestKeymapCapsLock(t *testing.T) {
	var km Keymap
	km.Translate(codeCapsLock, keyPress)
	km.Translate(codeCapsLock, keyRelease)

	if got, _ := km.Translate(30, keyPress); got != "A" {
		t.Errorf("caps a: got %q", got)
	}
	if got, _ := km.Translate(3, keyPress); got != "2" {
		t.Errorf("caps does not shift digits: got %q", got)
	}

	km.Translate(codeRightShift, keyPress)
	if got, _ := km.Translate(30, keyPress); got != "a" {
		t.Errorf("caps+shift a: got %q", got)
	}
}

func TestKeymapChords(t *testing.T) {
	var km Keymap
	km.Translate(codeLeftCtrl, keyPress)
	km.Translate(codeRightShift, keyPress)

	if got, _ := km.Translate(16, keyPress); got != "ctrl+shift+q" {
		t.Errorf("got %q", got)
	}
	if got, _ := km.Translate(31, keyPress); got != "ctrl+shift+s" {
		t.Errorf("got %q", got)
	}

	km.Translate(codeRightShift, keyRelease)
	km.Translate(codeLeftAlt, keyPress)
	if got, _ := km.Translate(59, keyPress); got != "ctrl+alt+f1" {
		t.Errorf("got %q", got)
	}

	km.Reset()
	if got, _ := km.Translate(16, keyPress); got != "q" {
		t.Errorf("after reset got %q", got)
	}
}

func TestKeymapRepeatAndRelease(t *testing.T) {
	var km Keymap
	if got, ok := km.Translate(18, keyRepeat); !ok || got != "e" {
		t.Errorf("repeat: got %q, %v", got, ok)
	}
	if _, ok := km.Translate(18, keyRelease); ok {
		t.Error("release produced an event")
	}
	if _, ok := km.Translate(240, keyPress); ok {
		t.Error("unknown code produced an event")
	}
	// Spurious release of a modifier never held.
	km.Translate(codeLeftCtrl, keyRelease)
	if got, _ := km.Translate(16, keyPress); got != "q" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeChord(t *testing.T) {
	tests := map[string]string{
		"ctrl+shift+q":      "ctrl+shift+q",
		"Shift+Ctrl+Q":      "ctrl+shift+q",
		"control + alt + s": "ctrl+alt+s",
		"win+p":             "super+p",
		"Escape":            "esc",
		"esc":               "esc",
	}
	for in, want := range tests {
		if got := NormalizeChord(in); got != want {
			t.Errorf("NormalizeChord(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimulatedSource(t *testing.T) {
	s := NewSimulated()
	events := s.Events()

	if s.Press("a") {
		t.Error("Press delivered before Start")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start: %v", err)
	}

	if n := s.Type("a b\t\n"); n != 5 {
		t.Errorf("Type delivered %d events", n)
	}
	s.Press("ctrl+shift+q")

	want := []string{"a", "space", "b", "tab", "enter", "ctrl+shift+q"}
	for i, w := range want {
		select {
		case ev := <-events:
			if ev.Name != w {
				t.Errorf("event %d: got %q, want %q", i, ev.Name, w)
			}
			if ev.Timestamp.IsZero() {
				t.Errorf("event %d has no timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	if s.Count() != uint64(len(want)) {
		t.Errorf("Count = %d", s.Count())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-events; ok {
		t.Error("events channel not closed by Stop")
	}
	if s.Press("x") {
		t.Error("Press delivered after Stop")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSimulatedSourceStopUnblocksDelivery(t *testing.T) {
	s := NewSimulated()
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < eventBuffer*2; i++ {
			if !s.Press("x") {
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()
	wg.Wait()
}

func TestDetectBackend(t *testing.T) {
	installed := func(tools ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, tool := range tools {
				if tool == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		}
	}
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	tests := []struct {
		name  string
		env   map[string]string
		tools []string
		want  string
		err   error
	}{
		{"wayland prefers wtype", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, []string{"wtype", "ydotool", "xdotool"}, BackendWtype, nil},
		{"wayland falls back to ydotool", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, []string{"ydotool"}, BackendYdotool, nil},
		{"x11 uses xdotool", map[string]string{"DISPLAY": ":0"}, []string{"xdotool", "wtype"}, BackendXdotool, nil},
		{"console uses ydotool", nil, []string{"ydotool", "xdotool"}, BackendYdotool, nil},
		{"nothing installed", map[string]string{"DISPLAY": ":0"}, nil, "", ErrNoBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectBackend(env(tt.env), installed(tt.tools...))
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type commandLog struct {
	mu   sync.Mutex
	cmds [][]string
	err  error
}

func (l *commandLog) run(name string, args ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, append([]string{name}, args...))
	return l.err
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCommandInjector(t *testing.T) {
	tests := []struct {
		backend string
		del     []string
		insert  []string
		paste   []string
	}{
		{
			BackendXdotool,
			[]string{"xdotool", "key", "--clearmodifiers", "--delay", "0", "--repeat", "2", "BackSpace"},
			[]string{"xdotool", "type", "--clearmodifiers", "--delay", "0", "--", "hi"},
			[]string{"xdotool", "key", "--clearmodifiers", "ctrl+v"},
		},
		{
			BackendYdotool,
			[]string{"ydotool", "key", "14:1", "14:0", "14:1", "14:0"},
			[]string{"ydotool", "type", "--", "hi"},
			[]string{"ydotool", "key", "29:1", "47:1", "47:0", "29:0"},
		},
		{
			BackendWtype,
			[]string{"wtype", "-k", "BackSpace", "-k", "BackSpace"},
			[]string{"wtype", "--", "hi"},
			[]string{"wtype", "-M", "ctrl", "v", "-m", "ctrl"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			var log commandLog
			inj, err := NewCommandInjectorWithRunner(tt.backend, log.run)
			if err != nil {
				t.Fatal(err)
			}
			if inj.Backend() != tt.backend {
				t.Errorf("Backend = %q", inj.Backend())
			}

			if err := inj.Delete(0); err != nil {
				t.Fatal(err)
			}
			if err := inj.Delete(2); err != nil {
				t.Fatal(err)
			}
			if err := inj.InsertText(""); err != nil {
				t.Fatal(err)
			}
			if err := inj.InsertText("hi"); err != nil {
				t.Fatal(err)
			}
			if err := inj.Paste(); err != nil {
				t.Fatal(err)
			}

			if len(log.cmds) != 3 {
				t.Fatalf("expected 3 commands, got %v", log.cmds)
			}
			for i, want := range [][]string{tt.del, tt.insert, tt.paste} {
				if !equalArgs(log.cmds[i], want) {
					t.Errorf("command %d = %v, want %v", i, log.cmds[i], want)
				}
			}
		})
	}
}

func TestCommandInjectorUnknownBackend(t *testing.T) {
	if _, err := NewCommandInjectorWithRunner("sendkeys", runCommand); err == nil {
		t.Error("expected error for unknown backend")
	}
}

type memoryClipboard struct {
	mu      sync.Mutex
	text    string
	readErr error
	writes  []string
}

func (m *memoryClipboard) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, m.readErr
}

func (m *memoryClipboard) Write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.writes = append(m.writes, text)
	return nil
}

func (m *memoryClipboard) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

type fakeKeys struct {
	deleted int
	pastes  int
	seen    []string
	cb      *memoryClipboard
}

func (k *fakeKeys) Delete(n int) error {
	k.deleted += n
	return nil
}

func (k *fakeKeys) Paste() error {
	k.pastes++
	k.seen = append(k.seen, k.cb.Text())
	return nil
}

func TestPasteSinkRestoresClipboard(t *testing.T) {
	cb := &memoryClipboard{text: "previous"}
	keys := &fakeKeys{cb: cb}
	sink := NewPasteSink(keys, cb, 10*time.Millisecond)

	if err := sink.Delete(4); err != nil {
		t.Fatal(err)
	}
	if err := sink.InsertText("Best regards.\nJohn Doe"); err != nil {
		t.Fatal(err)
	}

	if keys.deleted != 4 || keys.pastes != 1 {
		t.Errorf("deleted=%d pastes=%d", keys.deleted, keys.pastes)
	}
	if keys.seen[0] != "Best regards.\nJohn Doe" {
		t.Errorf("paste saw clipboard %q", keys.seen[0])
	}

	deadline := time.Now().Add(time.Second)
	for cb.Text() != "previous" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cb.Text() != "previous" {
		t.Errorf("clipboard not restored: %q", cb.Text())
	}
	if sink.Pending() != 0 {
		t.Errorf("pending restores: %d", sink.Pending())
	}
}

func TestPasteSinkClearsClipboardWhenReadFails(t *testing.T) {
	cb := &memoryClipboard{readErr: errors.New("empty")}
	sink := NewPasteSink(&fakeKeys{cb: cb}, cb, time.Millisecond)

	if err := sink.InsertText("x"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for cb.Text() != "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cb.Text() != "" {
		t.Errorf("expansion left on clipboard: %q", cb.Text())
	}
	if sink.Pending() != 0 {
		t.Errorf("pending restores: %d", sink.Pending())
	}
}

func TestPasteSinkCloseCancelsRestore(t *testing.T) {
	cb := &memoryClipboard{text: "previous"}
	sink := NewPasteSink(&fakeKeys{cb: cb}, cb, time.Hour)

	if err := sink.InsertText("expansion"); err != nil {
		t.Fatal(err)
	}
	if sink.Pending() != 1 {
		t.Fatalf("pending = %d", sink.Pending())
	}

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if sink.Pending() != 0 {
		t.Errorf("pending after close = %d", sink.Pending())
	}
	if cb.Text() != "expansion" {
		t.Errorf("clipboard changed after close: %q", cb.Text())
	}
	if err := sink.InsertText("again"); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("InsertText after close: %v", err)
	}
	if err := sink.Delete(1); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Delete after close: %v", err)
	}
}
