package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfiguration(t *testing.T) {
	dir := t.TempDir()
	contents := `
log_level = "debug"

[server]
url = "wss://chat.example.com/socket"

[user]
display_name = "alice"

[typing]
debounce_ms = 1500

[persistence]
type = "buntdb"

  [persistence.buntdb]
  name = ":memory:"

[recent_rooms]
size = 4

[[filter]]
action = "suppress"
expression = 'Username == "spammer"'
`
	path := filepath.Join(dir, "client.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0o600))

	cfg, err := ReadConfiguration(path, GetFlagSet())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "wss://chat.example.com/socket", cfg.ServerConfig.Url)
	assert.Equal(t, "app://haven-client", cfg.ServerConfig.Origin)
	assert.Equal(t, "alice", cfg.UserConfig.DisplayName)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingConfig.Debounce())
	assert.Equal(t, "buntdb", cfg.PersistenceConfig.Type)
	assert.Equal(t, ":memory:", cfg.PersistenceConfig.BuntDB.Name)
	assert.Equal(t, 4, cfg.RecentRoomsConfig.CacheSize())
	require.Len(t, cfg.FilterConfigs, 1)
	assert.Equal(t, "suppress", cfg.FilterConfigs[0].Action)
}

func TestValidateRequiresServerUrl(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())
	cfg.ServerConfig.Url = "ws://localhost:8000/chat"
	assert.NoError(t, cfg.Validate())
}

func TestTypingDefaults(t *testing.T) {
	assert.Equal(t, 2*time.Second, TypingConfig{}.Debounce())
	assert.Equal(t, 2*time.Second, TypingConfig{DebounceMs: -5}.Debounce())
	assert.Equal(t, defaultRecentRoomsSize, RecentRoomsConfig{}.CacheSize())
}
