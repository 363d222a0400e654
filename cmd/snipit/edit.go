package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"snipit/internal/config"
	"snipit/internal/flags"
	"snipit/internal/snippet"
)

func cmdList(args []string) {
	fs, cfgPath := newFlagSet("list")
	expanded := fs.Bool("expand", false, "show templates with flags expanded")
	fs.Parse(args)

	table, _, err := snippet.LoadFile(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\nShowing the built-in snippets.\n\n", err)
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SNIPPET\tTEMPLATE")
	for _, e := range table.Candidates() {
		tpl := e.Template
		if *expanded {
			tpl = flags.Expand(tpl, now)
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Snippet, strings.ReplaceAll(tpl, flags.LineBreak, `\n`))
	}
	w.Flush()
	fmt.Printf("\n%d snippets\n", table.Len())
}

// loadForEdit loads the configuration, creating it if missing, so edits never
// start from a broken file.
func loadForEdit(path string) *config.Config {
	cfg, _, err := config.LoadOrCreate(path)
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	return cfg
}

func save(cfg *config.Config, path string) {
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		fatalf("Error saving config: %v", err)
	}
}

func cmdAdd(args []string) {
	fs, cfgPath := newFlagSet("add")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fatalf("Usage: snipit add <snippet> <template>")
	}
	trigger := fs.Arg(0)
	template := strings.Join(fs.Args()[1:], " ")
	if strings.TrimSpace(trigger) == "" {
		fatalf("Snippet must not be empty")
	}

	cfg := loadForEdit(*cfgPath)
	_, existed := cfg.Strings.Get(trigger)
	cfg.Strings = cfg.Strings.Set(trigger, template)
	save(cfg, *cfgPath)

	if existed {
		fmt.Printf("Updated %q\n", trigger)
	} else {
		fmt.Printf("Added %q\n", trigger)
	}
}

func cmdRemove(args []string) {
	fs, cfgPath := newFlagSet("remove")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatalf("Usage: snipit remove <snippet>")
	}
	trigger := fs.Arg(0)

	cfg := loadForEdit(*cfgPath)
	var ok bool
	if cfg.Strings, ok = cfg.Strings.Delete(trigger); !ok {
		fatalf("No snippet %q", trigger)
	}
	save(cfg, *cfgPath)
	fmt.Printf("Removed %q\n", trigger)
}

func cmdExpand(args []string) {
	fs, _ := newFlagSet("expand")
	at := fs.String("at", "", "expand at this time (RFC 3339) instead of now")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fatalf("Usage: snipit expand <template>")
	}

	now := time.Now()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fatalf("Invalid -at time: %v", err)
		}
		now = t
	}
	fmt.Println(flags.ExpandLineBreaks(flags.Expand(strings.Join(fs.Args(), " "), now)))
}
