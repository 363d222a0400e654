// snipit expands typed snippets into text.
//
//	snipit run              Run the expansion daemon in the foreground
//	snipit init             Write a default configuration
//	snipit list             Show the snippet table
//	snipit add <s> <text>   Add or replace a snippet
//	snipit sound toggle     Turn the confirmation sound on or off
//	snipit status           Show the running daemon's state
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"snipit/internal/config"
	"snipit/internal/daemon"
	"snipit/internal/keystroke"
	"snipit/internal/logging"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		cmdRun(args)
	case "init":
		cmdInit(args)
	case "list":
		cmdList(args)
	case "add":
		cmdAdd(args)
	case "remove", "rm":
		cmdRemove(args)
	case "sound":
		cmdSound(args)
	case "reload":
		cmdReload(args)
	case "reset":
		cmdReset(args)
	case "status":
		cmdStatus(args)
	case "stop":
		cmdStop(args)
	case "history":
		cmdHistory(args)
	case "expand":
		cmdExpand(args)
	case "version":
		fmt.Println("snipit", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`snipit - snippet text expansion

USAGE:
    snipit <command> [options]

COMMANDS:
    run                     Run the expansion daemon in the foreground
    init [-from file.ini]   Write a default configuration, or import a legacy INI
    list                    Show the snippet table, longest snippet first
    add <snippet> <text>    Add or replace a snippet
    remove <snippet>        Remove a snippet
    sound [on|off|toggle]   Show or change the confirmation sound
    reload                  Reload the configuration and clear the buffer
    reset                   Clear the input buffer
    status                  Show the running daemon's state
    stop                    Stop the running daemon
    history [-top]          Show recent expansions or the most used snippets
    expand <template>       Print a template with its flags expanded
    version                 Print the version
    help                    Show this help message

Every command accepts -config <path> (default: ` + config.ConfigPath() + `).

TEMPLATE FLAGS:
    %yyyy %yy %y  year          %MM %M  month       %dd %d  day
    %HH %H        hour (24h)    %hh %h  hour (12h)  %mm %m  minute
    %ss %s        second        {n}     line break
    Backticks are removed from templates; an escaped flag is still expanded.

HOTKEYS (configurable in [hotkeys]):
    ctrl+shift+q  exit     ctrl+shift+p  toggle sound
    ctrl+shift+s  reload   esc           reset`)
}

// newFlagSet returns a flag set carrying the shared -config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("config", config.ConfigPath(), "path to config file")
	return fs, path
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// newLogger builds the process logger from the [logging] section.
func newLogger(c config.LoggingConfig) (*logging.Logger, error) {
	cfg := logging.DefaultConfig()

	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	cfg.Level = level
	cfg.Format = format
	if c.Output != "" {
		cfg.Output = c.Output
	}
	cfg.FilePath = c.FilePath
	cfg.MaxSize = int64(c.MaxSizeMB)
	cfg.MaxBackups = c.MaxBackups
	cfg.MaxAge = c.MaxAgeDays
	cfg.Compress = c.Compress
	cfg.LogContent = c.LogContent
	return logging.New(cfg)
}

func cmdRun(args []string) {
	fs, cfgPath := newFlagSet("run")
	verbose := fs.Bool("v", false, "log at debug level")
	fs.Parse(args)

	logCfg := config.DefaultConfig().Logging
	if cfg, err := config.Load(*cfgPath); err == nil {
		logCfg = cfg.Logging
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	logger, err := newLogger(logCfg)
	if err != nil {
		fatalf("Error configuring logging: %v", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	d, err := daemon.New(daemon.Options{
		ConfigPath: *cfgPath,
		CrashDir:   filepath.Join(config.PlatformDataDir(), "crash"),
		Version:    version,
		Logger:     logger,
	})
	if err != nil {
		fatalf("Error starting snipit: %v", err)
	}

	cfg := d.Config()
	fmt.Printf("snipit %s: %d snippets loaded, sound %s\n", version, d.Engine().Table().Len(), onOff(cfg.Settings.Sound))
	if cfg.Hotkeys.Exit != "" {
		fmt.Printf("Press %s to exit.\n", cfg.Hotkeys.Exit)
	}

	if err := d.Run(context.Background()); err != nil {
		switch {
		case errors.Is(err, daemon.ErrAlreadyRunning):
			fatalf("%v. Use 'snipit stop' first.", err)
		case errors.Is(err, keystroke.ErrNotAvailable), errors.Is(err, keystroke.ErrPermissionDenied):
			fatalf("%v\nAdd your user to the 'input' group or run with access to /dev/input.", err)
		default:
			fatalf("snipit stopped: %v", err)
		}
	}
}

func cmdInit(args []string) {
	fs, cfgPath := newFlagSet("init")
	from := fs.String("from", "", "import snippets and settings from a legacy INI file")
	fs.Parse(args)

	if *from != "" {
		result, err := config.ImportLegacyINI(*from, *cfgPath)
		if err != nil {
			fatalf("Error importing %s: %v", *from, err)
		}
		fmt.Printf("Imported %d snippets from %s into %s\n", result.Imported, *from, *cfgPath)
		if result.Backup != "" {
			fmt.Printf("Previous configuration saved as %s\n", result.Backup)
		}
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		return
	}

	_, created, err := config.LoadOrCreate(*cfgPath)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if created {
		fmt.Printf("Wrote default configuration to %s\n", *cfgPath)
		return
	}
	fmt.Printf("Configuration already exists at %s\n", *cfgPath)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
