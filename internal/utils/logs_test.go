package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsManagerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLogsManagerWithWriter(NewStaticConfig(map[string]string{"log_level": "info"}), &buf)

	lm.Debug("hidden", "relay")
	lm.Info("served", "relay")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "served", entry["msg"])
	assert.Equal(t, "relay", entry["category"])
	assert.Contains(t, entry["file"], "logs_test.go")

	require.NoError(t, lm.SetLogLevel("debug"))
	assert.Equal(t, "debug", lm.GetLogLevel())
	assert.Error(t, lm.SetLogLevel("loud"))

	require.NoError(t, lm.Close())
	buf.Reset()
	lm.Info("after close", "relay")
	assert.Zero(t, buf.Len())
}

func TestLogsManagerWritesFile(t *testing.T) {
	root := t.TempDir()
	t.Setenv(HomeEnv, root)

	lm := NewLogsManager(NewStaticConfig(map[string]string{"logfile": "test.log"}))
	lm.Warn("written", "cli")
	require.NoError(t, lm.Close())

	data, err := os.ReadFile(filepath.Join(root, "logs", "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written"`)
}
