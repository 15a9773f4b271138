package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	t.Run("loads values from TOML", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "testflow.toml")
		content := `
[database]
path = "/tmp/tf.db"

[server]
port = 9900

[history]
default_limit = 25
max_limit = 100
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/tf.db", cfg.Database.Path)
		assert.Equal(t, 9900, cfg.Server.Port)
		assert.Equal(t, 25, cfg.History.DefaultLimit)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/testflow.toml")
		assert.Error(t, err)
	})

	t.Run("defaults apply for unset keys", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "testflow.toml")
		require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 1234\n"), 0o644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "testflow.db", cfg.Database.Path)
		assert.Equal(t, 50, cfg.History.DefaultLimit)
		assert.Equal(t, 300, cfg.Queue.RedeliverAfterSeconds)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: DefaultServerPort},
			History: HistoryConfig{DefaultLimit: 50, MaxLimit: 500},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("zero port rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative redeliver rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Queue.RedeliverAfterSeconds = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("max limit below default rejected", func(t *testing.T) {
		cfg := valid()
		cfg.History.MaxLimit = 10
		assert.Error(t, cfg.Validate())
	})
}
