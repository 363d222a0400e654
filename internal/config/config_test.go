package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, []string{"ttime", "ddate", "date2", "ddd", "bbb", "kkind"}, cfg.Strings.Triggers())
	assert.False(t, cfg.Settings.Sound)
	assert.Equal(t, 2000, cfg.Engine.TimeoutMs)
	assert.Equal(t, 100, cfg.Engine.PollIntervalMs)
	assert.Equal(t, 50, cfg.Engine.PasteDelayMs)
	assert.Equal(t, 500, cfg.Engine.ClipboardRestoreMs)
	assert.Equal(t, "ctrl+shift+q", cfg.Hotkeys.Exit)
	assert.Equal(t, "esc", cfg.Hotkeys.Reset)
	assert.NoError(t, cfg.Validate())
}

func TestDirHonorsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SNIPIT_DIR", dir)

	assert.Equal(t, dir, Dir())
	assert.Equal(t, filepath.Join(dir, "snipit.toml"), ConfigPath())
	assert.Equal(t, filepath.Join(dir, "List.txt"), ListPath())
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadTOMLKeepsSnippetOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snipit.toml")
	doc := `version = 1

[strings]
zeta = "last letter"
alpha = "first letter"
"with space" = "quoted key"
mid = "line one{n}line two"

[settings]
sound = true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "with space", "mid"}, cfg.Strings.Triggers())
	tpl, ok := cfg.Strings.Get("mid")
	require.True(t, ok)
	assert.Equal(t, "line one{n}line two", tpl)
	assert.True(t, cfg.Settings.Sound)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, 2000, cfg.Engine.TimeoutMs)
}

func TestLoadJSONKeepsSnippetOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snipit.json")
	doc := `{"version": 1, "strings": {"b": "2", "a": "1", "c": "3"}, "settings": {"sound": false}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, cfg.Strings.Triggers())
}

func TestLoadYAMLKeepsSnippetOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snipit.yaml")
	doc := "version: 1\nstrings:\n  sig: \"Cheers{n}Me\"\n  addr: \"Main St 1\"\nsettings:\n  sound: true\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig", "addr"}, cfg.Strings.Triggers())
	assert.True(t, cfg.Settings.Sound)
}

func TestLoadMalformed(t *testing.T) {
	tests := []struct {
		name string
		file string
		doc  string
	}{
		{"broken toml", "snipit.toml", "[strings\nfoo = "},
		{"non-string template", "snipit.toml", "version = 1\n[strings]\nfoo = 3\n"},
		{"broken json", "snipit.json", `{"strings": `},
		{"schema violation", "snipit.json", `{"version": 1, "engine": {"timeout_ms": "soon"}}`},
		{"invalid backend", "snipit.toml", "version = 1\n[output]\nbackend = \"telepathy\"\n"},
		{"empty snippet", "snipit.json", `{"version": 1, "strings": {"": "nothing"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0600))

			_, err := Load(path)
			require.Error(t, err)
			var cfgErr *Error
			assert.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, path, cfgErr.Path)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snipit"+ext)

			cfg := DefaultConfig()
			cfg.Strings = cfg.Strings.Set("sig", "Cheers,{n}\"Me\"")
			cfg.Strings = cfg.Strings.Set("a b", "spaced")
			cfg.Settings.Sound = true
			require.NoError(t, SaveConfig(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Strings, loaded.Strings)
			assert.True(t, loaded.Settings.Sound)
		})
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snipit.toml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snipit.toml", entries[0].Name())
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snipit.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, DefaultSnippets(), cfg.Strings)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SNIPIT_TIMEOUT_MS", "750")
	t.Setenv("SNIPIT_SOUND", "true")
	t.Setenv("SNIPIT_LOG_LEVEL", "debug")
	t.Setenv("SNIPIT_SOCKET_PATH", "/tmp/x.sock")
	t.Setenv("SNIPIT_INPUT_DEVICE", "/dev/input/event3")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, 750, cfg.Engine.TimeoutMs)
	assert.True(t, cfg.Settings.Sound)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/x.sock", cfg.IPC.SocketPath)
	assert.Equal(t, "/dev/input/event3", cfg.Input.Device)
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("SNIPIT_TIMEOUT_MS", "soon")
	t.Setenv("SNIPIT_SOUND", "loud")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, 2000, cfg.Engine.TimeoutMs)
	assert.False(t, cfg.Settings.Sound)
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Strings = clone.Strings.Set("ttime", "changed")

	tpl, _ := cfg.Strings.Get("ttime")
	assert.Equal(t, "%HH%mm%ss_", tpl)
}

func TestSnippetsSetAndDelete(t *testing.T) {
	var s Snippets
	s = s.Set("a", "1")
	s = s.Set("b", "2")
	s = s.Set("a", "3")

	assert.Equal(t, Snippets{{"a", "3"}, {"b", "2"}}, s)

	s, ok := s.Delete("a")
	assert.True(t, ok)
	assert.Equal(t, Snippets{{"b", "2"}}, s)

	_, ok = s.Delete("missing")
	assert.False(t, ok)
}

func TestJSONDuplicateKeysLastValueFirstPosition(t *testing.T) {
	var s Snippets
	require.NoError(t, s.UnmarshalJSON([]byte(`{"x": "1", "y": "2", "x": "3"}`)))
	assert.Equal(t, Snippets{{"x", "3"}, {"y", "2"}}, s)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.TimeoutMs = 0
	cfg.Hotkeys.Reload = cfg.Hotkeys.Exit
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.True(t, strings.Contains(err.Error(), "engine.timeout_ms"))
}

func TestMigrateLegacyINI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Input.ini")
	doc := "[Strings]\nTTime = %HH%mm%ss_\nsig: Best regards.{n}Me\n; comment\nmulti = first\n  second\n\n[Settings]\nSoundSetting = 1\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, result, err := MigrateLegacyINI(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ttime", "sig", "multi"}, cfg.Strings.Triggers())
	tpl, _ := cfg.Strings.Get("multi")
	assert.Equal(t, "first\nsecond", tpl)
	tpl, _ = cfg.Strings.Get("ttime")
	assert.Equal(t, "%HH%mm%ss_", tpl)
	assert.True(t, cfg.Settings.Sound)
	assert.Equal(t, 3, result.Imported)
}

func TestImportLegacyINIBacksUpExisting(t *testing.T) {
	dir := t.TempDir()
	ini := filepath.Join(dir, "Input.ini")
	target := filepath.Join(dir, "snipit.toml")
	require.NoError(t, os.WriteFile(ini, []byte("[Strings]\nhi = hello\n"), 0600))
	require.NoError(t, SaveConfig(DefaultConfig(), target))

	result, err := ImportLegacyINI(ini, target)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Backup)
	assert.FileExists(t, result.Backup)

	cfg, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, cfg.Strings.Triggers())
}

func TestFindConfigFileFallsBackToConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SNIPIT_DIR", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, ConfigPath(), FindConfigFile())

	yamlPath := filepath.Join(dir, "snipit.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("version: 1\n"), 0600))
	assert.Equal(t, yamlPath, FindConfigFile())
}
