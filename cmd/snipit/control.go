package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"snipit/internal/config"
	"snipit/internal/daemon"
	"snipit/internal/history"
	"snipit/internal/ipc"
)

// loadQuiet returns the configuration at path, or the defaults if it cannot
// be read. Control commands only need paths from it.
func loadQuiet(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

// withClient runs fn against the daemon's control socket. It reports false
// when no daemon is listening.
func withClient(cfgPath string, fn func(ctx context.Context, c *ipc.Client) error) bool {
	cfg := loadQuiet(cfgPath)
	if !cfg.IPC.Enabled {
		return false
	}

	c, err := ipc.Dial(ipc.DefaultClientConfig(cfg.IPC.SocketPath))
	if errors.Is(err, ipc.ErrDaemonNotRunning) {
		return false
	}
	if err != nil {
		fatalf("Error connecting to snipit: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx, c); err != nil {
		fatalf("Error: %v", err)
	}
	return true
}

func cmdSound(args []string) {
	fs, cfgPath := newFlagSet("sound")
	fs.Parse(args)

	mode := "show"
	if fs.NArg() > 0 {
		mode = fs.Arg(0)
	}

	var on bool
	var call func(ctx context.Context, c *ipc.Client) error
	switch mode {
	case "show":
		call = func(ctx context.Context, c *ipc.Client) error {
			st, err := c.Status(ctx)
			if err == nil {
				on = st.Sound
			}
			return err
		}
	case "toggle":
		call = func(ctx context.Context, c *ipc.Client) (err error) {
			on, err = c.ToggleSound(ctx)
			return err
		}
	default:
		want, err := parseOnOff(mode)
		if err != nil {
			fatalf("Usage: snipit sound [on|off|toggle]")
		}
		call = func(ctx context.Context, c *ipc.Client) (err error) {
			on, err = c.SetSound(ctx, want)
			return err
		}
	}

	if withClient(*cfgPath, call) {
		fmt.Printf("Sound %s\n", onOff(on))
		return
	}

	// No daemon: edit the file. A daemon started later reads it.
	cfg := loadForEdit(*cfgPath)
	switch mode {
	case "show":
	case "toggle":
		cfg.Settings.Sound = !cfg.Settings.Sound
		save(cfg, *cfgPath)
	default:
		cfg.Settings.Sound, _ = parseOnOff(mode)
		save(cfg, *cfgPath)
	}
	fmt.Printf("Sound %s\n", onOff(cfg.Settings.Sound))
}

func cmdReload(args []string) {
	fs, cfgPath := newFlagSet("reload")
	fs.Parse(args)

	ok := withClient(*cfgPath, func(ctx context.Context, c *ipc.Client) error {
		resp, err := c.Reload(ctx)
		if err != nil {
			return err
		}
		if resp.Warning != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s\nLoaded the built-in snippets.\n", resp.Warning)
		}
		fmt.Printf("Reloaded %d snippets\n", resp.Snippets)
		return nil
	})
	if ok {
		return
	}

	mgr := daemon.NewManager(config.PIDPath())
	if !mgr.IsRunning() {
		fatalf("snipit is not running")
	}
	if err := mgr.SignalReload(); err != nil {
		fatalf("Error signalling snipit: %v", err)
	}
	fmt.Println("Reload requested")
}

func cmdReset(args []string) {
	fs, cfgPath := newFlagSet("reset")
	fs.Parse(args)

	ok := withClient(*cfgPath, func(ctx context.Context, c *ipc.Client) error {
		return c.Reset(ctx)
	})
	if !ok {
		fatalf("snipit is not running")
	}
	fmt.Println("Input buffer cleared")
}

func cmdStatus(args []string) {
	fs, cfgPath := newFlagSet("status")
	fs.Parse(args)

	ok := withClient(*cfgPath, func(ctx context.Context, c *ipc.Client) error {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Status:\tRUNNING (PID %d)\n", st.PID)
		fmt.Fprintf(w, "Version:\t%s\n", st.Version)
		fmt.Fprintf(w, "Uptime:\t%s\n", st.Uptime.Round(time.Second))
		fmt.Fprintf(w, "Config:\t%s\n", st.ConfigPath)
		if st.Backend != "" {
			fmt.Fprintf(w, "Output:\t%s\n", st.Backend)
		}
		fmt.Fprintf(w, "Snippets:\t%d\n", st.Snippets)
		fmt.Fprintf(w, "Sound:\t%s\n", onOff(st.Sound))
		fmt.Fprintf(w, "Buffer:\t%d characters\n", st.BufferLength)
		fmt.Fprintf(w, "Expansions:\t%d\n", st.Firings)
		fmt.Fprintf(w, "Health:\t%s\n", st.Health)
		for _, p := range st.Problems {
			fmt.Fprintf(w, "\t  %s\n", p)
		}
		if st.EmissionErrors > 0 || st.LookupRaces > 0 {
			fmt.Fprintf(w, "Failed:\t%d (%d dropped during reload)\n", st.EmissionErrors, st.LookupRaces)
		}
		return w.Flush()
	})
	if ok {
		return
	}

	st := daemon.NewManager(config.PIDPath()).Status()
	if st.Running {
		fmt.Printf("Status: RUNNING (PID %d), control socket unavailable\n", st.PID)
		return
	}
	fmt.Println("Status: NOT RUNNING")
}

func cmdStop(args []string) {
	fs, cfgPath := newFlagSet("stop")
	fs.Parse(args)

	mgr := daemon.NewManager(config.PIDPath())
	ok := withClient(*cfgPath, func(ctx context.Context, c *ipc.Client) error {
		return c.Shutdown(ctx)
	})
	if !ok {
		if !mgr.IsRunning() {
			fatalf("snipit is not running")
		}
		if err := mgr.SignalStop(); err != nil {
			fatalf("Error signalling snipit: %v", err)
		}
	}
	if err := mgr.WaitForStop(5 * time.Second); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Println("snipit stopped")
}

func cmdHistory(args []string) {
	fs, cfgPath := newFlagSet("history")
	limit := fs.Int("n", 20, "number of entries")
	top := fs.Bool("top", false, "show the most used snippets instead")
	since := fs.Duration("since", 30*24*time.Hour, "with -top, only count expansions this recent")
	fs.Parse(args)

	cfg := loadQuiet(*cfgPath)
	if !cfg.History.Enabled {
		fatalf("History is disabled in %s", *cfgPath)
	}
	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Println("No expansions recorded yet")
		return
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		fatalf("Error opening history: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if *top {
		rows, err := store.Top(ctx, time.Now().Add(-*since), *limit)
		if err != nil {
			fatalf("Error reading history: %v", err)
		}
		fmt.Fprintln(w, "SNIPPET\tCOUNT\tLAST USED")
		for _, u := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\n", u.Snippet, u.Count, u.LastFired.Local().Format("2006-01-02 15:04"))
		}
		return
	}

	firings, err := store.Recent(ctx, *limit)
	if err != nil {
		fatalf("Error reading history: %v", err)
	}
	fmt.Fprintln(w, "TIME\tSNIPPET\tINSERTED")
	for _, f := range firings {
		fmt.Fprintf(w, "%s\t%s\t%d chars\n", f.FiredAt.Local().Format("2006-01-02 15:04:05"), f.Snippet, f.Inserted)
	}
}
