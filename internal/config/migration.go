package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
)

// MigrationResult describes an import of a legacy INI configuration.
type MigrationResult struct {
	Source   string
	Backup   string
	Imported int
	Warnings []string
}

// MigrateLegacyINI reads an INI file in the legacy layout
//
//	[Strings]
//	ttime = %HH%mm%ss_
//	[Settings]
//	SoundSetting = 1
//
// and returns a default configuration carrying its snippets and sound
// setting. Option names are lower-cased and values trimmed, and no
// interpolation is applied, so templates keep their % flags.
func MigrateLegacyINI(path string) (*Config, *MigrationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &Error{Path: path, Err: err}
	}

	sections, warnings, err := parseINI(data)
	if err != nil {
		return nil, nil, &Error{Path: path, Err: err}
	}

	result := &MigrationResult{Source: path, Warnings: warnings}
	cfg := DefaultConfig()

	if entries, ok := sections["strings"]; ok {
		cfg.Strings = Snippets{}
		for _, e := range entries {
			cfg.Strings = cfg.Strings.Set(e.key, e.value)
		}
		result.Imported = len(cfg.Strings)
	} else {
		result.Warnings = append(result.Warnings, "no [Strings] section; keeping the sample snippets")
	}

	for _, e := range sections["settings"] {
		if e.key != "soundsetting" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("ignoring setting %q", e.key))
			continue
		}
		switch strings.ToLower(e.value) {
		case "1", "true", "yes", "on":
			cfg.Settings.Sound = true
		case "0", "false", "no", "off":
			cfg.Settings.Sound = false
		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized SoundSetting %q", e.value))
		}
	}

	return cfg, result, nil
}

type iniEntry struct {
	key   string
	value string
}

// parseINI implements the subset of INI used by the legacy store: section
// headers, key = value or key: value options, # and ; comment lines, and
// indented continuation lines appended with a newline.
func parseINI(data []byte) (map[string][]iniEntry, []string, error) {
	sections := make(map[string][]iniEntry)
	var warnings []string
	var section string
	var last *iniEntry

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			last = nil
			continue
		}

		if last != nil && (raw[0] == ' ' || raw[0] == '\t') {
			last.value += "\n" + trimmed
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(strings.TrimSpace(trimmed[1 : len(trimmed)-1]))
			if _, ok := sections[section]; !ok {
				sections[section] = nil
			}
			last = nil
			continue
		}

		if section == "" {
			return nil, nil, fmt.Errorf("line %d: option outside of any section", lineNo)
		}

		idx := strings.IndexAny(trimmed, "=:")
		if idx <= 0 {
			warnings = append(warnings, fmt.Sprintf("line %d: skipping malformed line", lineNo))
			last = nil
			continue
		}

		key := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
		value := strings.TrimSpace(trimmed[idx+1:])

		entries := sections[section]
		replaced := false
		for i := range entries {
			if entries[i].key == key {
				entries[i].value = value
				last = &entries[i]
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, iniEntry{key: key, value: value})
			last = &entries[len(entries)-1]
		}
		sections[section] = entries
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return sections, warnings, nil
}

// backupConfig copies an existing file at configPath to a timestamped
// sibling and returns its path, or "" when there is nothing to back up.
func backupConfig(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}

	backupPath := configPath + ".backup-" + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

// ImportLegacyINI converts the INI file at iniPath and saves it to
// configPath, backing up any configuration already there.
func ImportLegacyINI(iniPath, configPath string) (*MigrationResult, error) {
	cfg, result, err := MigrateLegacyINI(iniPath)
	if err != nil {
		return nil, err
	}

	backup, err := backupConfig(configPath)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not create backup: %v", err))
	}
	result.Backup = backup

	if err := SaveConfig(cfg, configPath); err != nil {
		return result, err
	}
	return result, nil
}
