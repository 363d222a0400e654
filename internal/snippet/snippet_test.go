package snippet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipit/internal/config"
)

func TestNewOrdersLongestFirstStable(t *testing.T) {
	table := New([]Entry{
		{"bar", "B"},
		{"ab", "1"},
		{"oobar", "O"},
		{"cd", "2"},
		{"xyz", "X"},
	})

	assert.Equal(t, []string{"oobar", "bar", "xyz", "ab", "cd"}, table.Snippets())
}

func TestNewCountsCharactersNotBytes(t *testing.T) {
	table := New([]Entry{{"äöü", "umlauts"}, {"abcd", "ascii"}})
	assert.Equal(t, []string{"abcd", "äöü"}, table.Snippets())
}

func TestNewDuplicateLastWriteWins(t *testing.T) {
	table := New([]Entry{{"a", "first"}, {"bb", "x"}, {"a", "second"}})

	require.Equal(t, 2, table.Len())
	tpl, err := table.Template("a")
	require.NoError(t, err)
	assert.Equal(t, "second", tpl)
	assert.Equal(t, Entry{"a", "second"}, table.Candidates()[1])
}

func TestTemplateNotFound(t *testing.T) {
	_, err := Default().Template("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultIsNonEmpty(t *testing.T) {
	table := Default()
	assert.Equal(t, 6, table.Len())
	tpl, err := table.Template("bbb")
	require.NoError(t, err)
	assert.Equal(t, "Best regards.{n}John Doe", tpl)
}

func TestLoad(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strings = config.Snippets{{Trigger: "sig", Template: "S"}, {Trigger: "addr", Template: "A"}}

	table, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"addr", "sig"}, table.Snippets())
}

func TestLoadFailures(t *testing.T) {
	_, err := Load(nil)
	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)

	cfg := config.DefaultConfig()
	cfg.Strings = config.Snippets{{Trigger: "", Template: "x"}}
	_, err = Load(cfg)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snipit.toml")
	require.NoError(t, os.WriteFile(path, []byte("[strings\nbroken"), 0600))

	table, cfg, err := LoadFile(path)
	require.Error(t, err)

	var cfgErr *config.Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Path)
	assert.Equal(t, Default().Snippets(), table.Snippets())
	assert.NotNil(t, cfg)
	assert.Greater(t, table.Len(), 0)
}

func TestLoadFileMissingFallsBackToDefaults(t *testing.T) {
	table, _, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Greater(t, table.Len(), 0)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snipit.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n[strings]\nhi = \"hello\"\n"), 0600))

	table, cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, table.Snippets())
	assert.Equal(t, 1, len(cfg.Strings))
}

func TestWriteAndRemoveList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "List.txt")
	table := New([]Entry{{"ab", "1"}, {"abc", "2"}})

	require.NoError(t, WriteList(path, table))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc\nab\n", string(data))

	require.NoError(t, WriteList(path, New([]Entry{{"z", "1"}})))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "z\n", string(data))

	require.NoError(t, RemoveList(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, RemoveList(path))
}
