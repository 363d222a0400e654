package daemon

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipit/internal/config"
	"snipit/internal/history"
	"snipit/internal/ipc"
	"snipit/internal/keystroke"
	"snipit/internal/logging"
	"snipit/internal/metrics"
)

type call struct {
	op   string
	n    int
	text string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []call
}

func (s *recordingSink) Delete(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{op: "delete", n: n})
	return nil
}

func (s *recordingSink) InsertText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{op: "insert", text: text})
	return nil
}

func (s *recordingSink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

type silentNotifier struct{}

func (silentNotifier) Beep() error                       { return nil }
func (silentNotifier) Notify(summary, body string) error { return nil }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	dir    string
	cfg    *config.Config
	source *keystroke.SimulatedSource
	sink   *recordingSink
	logs   *syncBuffer
	d      *Daemon
	done   chan error
	exited chan struct{}
}

// shortTempDir keeps socket paths under the sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "snipitd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	dir := shortTempDir(t)

	cfg := config.DefaultConfig()
	cfg.Engine.PasteDelayMs = 0
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.IPC.SocketPath = filepath.Join(dir, "s.sock")
	cfg.Metrics.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	cfgPath := filepath.Join(dir, "snipit.toml")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	logs := &syncBuffer{}
	lcfg := logging.DefaultConfig()
	lcfg.Writer = logs
	lcfg.Format = logging.FormatJSON
	lcfg.Level = logging.LevelDebug
	logger, err := logging.New(lcfg)
	require.NoError(t, err)

	h := &harness{
		dir:    dir,
		cfg:    cfg,
		source: keystroke.NewSimulated(),
		sink:   &recordingSink{},
		logs:   logs,
		done:   make(chan error, 1),
		exited: make(chan struct{}),
	}
	h.d, err = New(Options{
		ConfigPath: cfgPath,
		PIDPath:    filepath.Join(dir, "snipit.pid"),
		CrashDir:   filepath.Join(dir, "crash"),
		Version:    "test",
		Logger:     logger,
		Source:     h.source,
		Sink:       h.sink,
		Notifier:   silentNotifier{},
		Registry:   metrics.NewRegistry("test"),
	})
	require.NoError(t, err)
	t.Cleanup(h.d.closeStores)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	go func() {
		h.done <- h.d.Run(context.Background())
		close(h.exited)
	}()
	require.Eventually(t, h.source.IsRunning, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		h.d.Stop()
		select {
		case <-h.exited:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func (h *harness) listPath() string {
	return filepath.Join(h.dir, "List.txt")
}

func TestRunExpandsTypedSnippet(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.source.Type("xbbb")

	require.Eventually(t, func() bool { return len(h.sink.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []call{
		{op: "delete", n: 3},
		{op: "insert", text: "Best regards.\nJohn Doe"},
	}, h.sink.snapshot())
	assert.Equal(t, 0, h.d.Engine().Buffer().Len())
}

func TestRunWritesAndRemovesList(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	data, err := os.ReadFile(h.listPath())
	require.NoError(t, err)
	assert.Equal(t, "ttime\nddate\ndate2\nkkind\nddd\nbbb\n", string(data))

	h.d.Stop()
	require.NoError(t, h.wait(t))

	_, err = os.Stat(h.listPath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(h.dir, "snipit.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestExitHotkeyStopsRun(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.source.Press("ctrl+shift+q")
	assert.NoError(t, h.wait(t))
}

func TestResetHotkeyClearsBuffer(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.source.Type("bb")
	require.Eventually(t, func() bool { return h.d.Engine().Buffer().Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	h.source.Press("esc")
	require.Eventually(t, func() bool { return h.d.Engine().Buffer().Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	h.source.Type("b")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.sink.snapshot())
}

func TestCustomHotkeyBinding(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Hotkeys.ToggleSound = "Control+Alt+S"
	})

	assert.Equal(t, actionToggleSound, h.d.hotkey("ctrl+alt+s"))
	assert.Equal(t, actionNone, h.d.hotkey("ctrl+shift+p"))
	assert.Equal(t, actionNone, h.d.hotkey("q"))
	assert.Equal(t, actionReset, h.d.hotkey("escape"))
}

func TestControlSocket(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.Eventually(t, func() bool { return ipc.IsSocketListening(h.cfg.IPC.SocketPath) }, 2*time.Second, 5*time.Millisecond)
	c, err := ipc.Dial(ipc.DefaultClientConfig(h.cfg.IPC.SocketPath))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Snippets)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.False(t, st.Sound)
	assert.Equal(t, "healthy", st.Health)
	assert.Empty(t, st.Problems)

	h.source.Type("dd")
	require.Eventually(t, func() bool { return h.d.Engine().Buffer().Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, 0, h.d.Engine().Buffer().Len())

	on, err := c.ToggleSound(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, h.d.Engine().Sound())

	saved, err := config.Load(h.d.opts.ConfigPath)
	require.NoError(t, err)
	assert.True(t, saved.Settings.Sound)

	require.NoError(t, c.Shutdown(ctx))
	assert.NoError(t, h.wait(t))
}

func TestReloadPicksUpEditedConfig(t *testing.T) {
	h := newHarness(t, nil)

	cfg := h.cfg.Clone()
	cfg.Strings = config.Snippets{{Trigger: "sig", Template: "Cheers"}}
	require.NoError(t, config.SaveConfig(cfg, h.d.opts.ConfigPath))

	n, err := h.d.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"sig"}, h.d.Engine().Table().Snippets())

	data, err := os.ReadFile(h.listPath())
	require.NoError(t, err)
	assert.Equal(t, "sig\n", string(data))
}

func TestReloadFallsBackToDefaults(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.WriteFile(h.d.opts.ConfigPath, []byte("[strings\nbroken"), 0600))

	n, err := h.d.Reload()
	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 6, n)
	assert.Contains(t, h.logs.String(), "using built-in snippets")
}

func TestRecordsHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.source.Type("kkind")
	require.Eventually(t, func() bool { return len(h.sink.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	h.d.Stop()
	require.NoError(t, h.wait(t))

	store, err := history.Open(h.cfg.History.Path)
	require.NoError(t, err)
	defer store.Close()

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "kkind", recent[0].Snippet)
	assert.Equal(t, 5, recent[0].Deleted)
}

func TestHistoryDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.History.Enabled = false })
	assert.Nil(t, h.d.history)
}

func TestManagerSingleInstance(t *testing.T) {
	pid := filepath.Join(t.TempDir(), "run", "snipit.pid")

	first := NewManager(pid)
	require.NoError(t, first.Acquire())
	defer first.Release()

	got, err := first.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)
	assert.True(t, first.IsRunning())

	second := NewManager(pid)
	err = second.Acquire()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	first.Release()
	require.NoError(t, second.Acquire())
	second.Release()
	assert.False(t, second.IsRunning())
}

func TestManagerState(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "snipit.pid"))
	require.NoError(t, m.Acquire())
	defer m.Release()

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, m.WriteState(&State{PID: os.Getpid(), StartedAt: started, Version: "1.0"}))

	st := m.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "1.0", st.Version)
	assert.True(t, st.StartedAt.Equal(started))
	assert.GreaterOrEqual(t, st.Uptime, time.Minute)
	assert.True(t, strings.HasSuffix(m.stateFile, "snipit.state"))
}

func TestStatusReportsBrokenConfig(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.NoError(t, os.WriteFile(h.d.opts.ConfigPath, []byte("version = \"x\""), 0600))

	st := h.d.Status(context.Background())
	assert.Equal(t, "degraded", st.Health)
	require.Len(t, st.Problems, 1)
	assert.Contains(t, st.Problems[0], "config: degraded")
}
