package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zapcore.InfoLevel)

	logger.Debug("hidden")
	logger.Info("book created", zap.String("book.id", "b1"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "book created", entry["msg"])
	assert.Equal(t, "b1", entry["book.id"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "caller")
}

func TestSetupAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shelf.log")

	logger, flush, err := Setup(path, zapcore.DebugLevel)
	require.NoError(t, err)
	logger.Warn("first")
	flush()

	logger, flush, err = Setup(path, zapcore.DebugLevel)
	require.NoError(t, err)
	logger.Error("second")
	flush()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"msg":"first"`)
	assert.Contains(t, lines[1], `"stacktrace"`)
}
