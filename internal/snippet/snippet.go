// Package snippet holds the snippet table: the ordered set of triggers and
// their replacement templates consulted on every keystroke.
//
// A Table is immutable once built. Configuration changes produce a new Table
// which callers swap in as a whole, so a reader never observes a partly
// rebuilt table.
package snippet

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"snipit/internal/config"
)

// ErrNotFound is returned by Template for an unknown snippet.
var ErrNotFound = errors.New("snippet not found")

// errNoConfig is wrapped in a *config.Error when Load is given nothing.
var errNoConfig = errors.New("no configuration")

// Entry is one snippet and its replacement template.
type Entry struct {
	Snippet  string
	Template string
}

// Table is an ordered snippet table, longest snippet first.
type Table struct {
	entries   []Entry
	templates map[string]string
}

// New builds a table from entries in configuration order. A repeated snippet
// keeps its first position and takes its last template. Entries are ordered
// by snippet length in characters, longest first; equal lengths keep
// configuration order.
func New(entries []Entry) *Table {
	t := &Table{templates: make(map[string]string, len(entries))}

	for _, e := range entries {
		if _, seen := t.templates[e.Snippet]; !seen {
			t.entries = append(t.entries, Entry{Snippet: e.Snippet})
		}
		t.templates[e.Snippet] = e.Template
	}
	for i := range t.entries {
		t.entries[i].Template = t.templates[t.entries[i].Snippet]
	}

	sort.SliceStable(t.entries, func(i, j int) bool {
		return utf8.RuneCountInString(t.entries[i].Snippet) > utf8.RuneCountInString(t.entries[j].Snippet)
	})
	return t
}

// FromSnippets builds a table from a configuration's [strings] section.
func FromSnippets(s config.Snippets) *Table {
	entries := make([]Entry, len(s))
	for i, sn := range s {
		entries[i] = Entry{Snippet: sn.Trigger, Template: sn.Template}
	}
	return New(entries)
}

// Default returns the built-in table of sample snippets.
func Default() *Table {
	return FromSnippets(config.DefaultSnippets())
}

// Load builds a table from cfg. It fails with a *config.Error when cfg is
// nil or its [strings] section is malformed; callers then fall back to
// Default.
func Load(cfg *config.Config) (*Table, error) {
	if cfg == nil {
		return nil, &config.Error{Err: errNoConfig}
	}
	for i, sn := range cfg.Strings {
		if sn.Trigger == "" {
			return nil, &config.Error{Err: fmt.Errorf("strings[%d]: snippet must not be empty", i)}
		}
	}
	return FromSnippets(cfg.Strings), nil
}

// LoadFile reads the configuration at path and builds its table. On any
// failure it returns the default configuration and table together with the
// *config.Error, so the caller always has something to run with.
func LoadFile(path string) (*Table, *config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		var t *Table
		if t, err = Load(cfg); err == nil {
			return t, cfg, nil
		}
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) && cfgErr.Path == "" {
			cfgErr.Path = path
		}
	}
	return Default(), config.DefaultConfig(), err
}

// Candidates returns the entries longest-first. The slice is shared and must
// not be modified.
func (t *Table) Candidates() []Entry {
	return t.entries
}

// Template returns the template for snippet, or ErrNotFound.
func (t *Table) Template(snippet string) (string, error) {
	tpl, ok := t.templates[snippet]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, snippet)
	}
	return tpl, nil
}

// Len returns the number of snippets.
func (t *Table) Len() int {
	return len(t.entries)
}

// Snippets returns the snippets in table order.
func (t *Table) Snippets() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Snippet
	}
	return out
}

// WriteList writes the plain-text listing of active snippets, one per line
// in table order, replacing any previous listing.
func WriteList(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create list directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open list file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range t.entries {
		w.WriteString(e.Snippet)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write list file: %w", err)
	}
	return f.Close()
}

// RemoveList deletes the listing. A missing file is not an error.
func RemoveList(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove list file: %w", err)
	}
	return nil
}
