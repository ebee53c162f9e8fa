package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	t.Run("loads file", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{
			"server_endpoint_addr": "www.example:9000",
			"request_timeout":      "10s",
		})

		cfg := &Config{}
		require.NoError(t, parseJson(cfg, []string{"-config", path}))
		assert.Equal(t, "www.example:9000", cfg.ServerEndpointAddr)
		assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	})

	t.Run("no flag leaves config untouched", func(t *testing.T) {
		cfg := &Config{ServerEndpointAddr: "defaults:1234", RequestTimeout: 42 * time.Second}
		require.NoError(t, parseJson(cfg, nil))
		assert.Equal(t, "defaults:1234", cfg.ServerEndpointAddr)
		assert.Equal(t, 42*time.Second, cfg.RequestTimeout)
	})

	t.Run("missing fields keep current values", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"request_timeout": "1s"})
		cfg := &Config{ServerEndpointAddr: "keep:1"}
		require.NoError(t, parseJson(cfg, []string{"-c", path}))
		assert.Equal(t, "keep:1", cfg.ServerEndpointAddr)
		assert.Equal(t, time.Second, cfg.RequestTimeout)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		require.Error(t, parseJson(&Config{}, []string{"-config", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		require.Error(t, parseJson(&Config{}, []string{"-config", filepath.Join(t.TempDir(), "nope.json")}))
	})
}
