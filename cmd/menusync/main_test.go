package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger("debug", "", &buf)
	require.NoError(t, err)
	logger.Debug("hello", "k", 1)
	require.NoError(t, closer.Close())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])

	buf.Reset()
	logger, _, err = newLogger("warn", "", &buf)
	require.NoError(t, err)
	logger.Info("dropped")
	assert.Empty(t, buf.String())

	_, _, err = newLogger("loud", "", &buf)
	assert.ErrorContains(t, err, `"loud"`)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "menusync.log")
	logger, closer, err := newLogger("info", path, io.Discard)
	require.NoError(t, err)
	logger.Info("to file")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"to file"`)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MENUSYNC_ENVFILE_TEST=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("MENUSYNC_ENVFILE_TEST") })
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("MENUSYNC_ENVFILE_TEST"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "menusync dev\n", out)
}

func TestMigrateCommand_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "menu.db")
	t.Setenv("MENUSYNC_STORE", "sqlite")
	t.Setenv("MENUSYNC_SQLITE_PATH", path)
	t.Setenv("MENUSYNC_LOG_LEVEL", "error")

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "sqlite schema is up to date\n", out)
	assert.FileExists(t, path)
}

func TestMigrateCommand_BadConfig(t *testing.T) {
	t.Setenv("MENUSYNC_STORE", "mongo")
	_, err := execute(t, "migrate")
	assert.ErrorContains(t, err, "MENUSYNC_STORE")
}
