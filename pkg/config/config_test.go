package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultProfile("dev")
	cfg.Marionette.Port = 4444
	require.NoError(t, Save(filepath.Join(dir, FileName), cfg))

	loaded, err := LoadProfile(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, "127.0.0.1:4444", loaded.Marionette.Addr())
	assert.Equal(t, time.Minute, loaded.Marionette.ConnectTimeout())
	assert.Equal(t, 100*time.Millisecond, loaded.Marionette.PollInterval())
	assert.Zero(t, loaded.Marionette.RoundTripTimeout())
	assert.Equal(t, 30*time.Second, loaded.Breaker.OpenTimeout())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
profileName = "min"

[ipc]
socketPath = "/tmp/gw.sock"

[storage]
dbPath = "s.db"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Marionette.Host)
	assert.Equal(t, 2828, cfg.Marionette.Port)
	assert.Equal(t, "WAL", cfg.Storage.JournalMode)
	assert.Equal(t, "NORMAL", cfg.Storage.Synchronous)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoadRejectsInvalid(t *testing.T) {
	base := `profileName = "x"
[ipc]
socketPath = "a.sock"
[storage]
dbPath = "s.db"
`
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no profile name", `[ipc]
socketPath = "a.sock"
[storage]
dbPath = "s.db"`, "profileName required"},
		{"no socket", `profileName = "x"
[storage]
dbPath = "s.db"`, "ipc.socketPath required"},
		{"no db", `profileName = "x"
[ipc]
socketPath = "a.sock"`, "storage.dbPath required"},
		{"port range", base + "[marionette]\nport = 70000\n", "out of range"},
		{"negative timeout", base + "[marionette]\nconnectTimeoutMs = -1\n", "must not be negative"},
		{"frame limit", base + "[marionette]\nmaxFrameBytes = 2147483648\n", "maxFrameBytes"},
		{"journal mode", `profileName = "x"
[ipc]
socketPath = "a.sock"
[storage]
dbPath = "s.db"
journalMode = "fast"`, "journalMode"},
		{"log level", base + "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"file output without path", base + "[logging]\noutput = \"file\"\n", "filePath required"},
		{"bad toml", "profileName = ", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadProfile(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := DefaultProfile("")
	err := Save(filepath.Join(t.TempDir(), FileName), cfg)
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", "s.db"), ResolvePath("/p", "s.db"))
	assert.Equal(t, "/abs/s.db", ResolvePath("/p", "/abs/s.db"))
	assert.Equal(t, "", ResolvePath("/p", ""))
}
