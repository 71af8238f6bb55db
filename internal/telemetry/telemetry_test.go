package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_WritesJSONToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	logger, closer, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("debug line", "session_id", "session_1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, ServiceName+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"debug line"`)
	assert.Contains(t, string(data), `"session_id":"session_1"`)
	assert.Contains(t, string(data), `"service":"agentconsole"`)
}

func TestInitTelemetry_CreatesFiles(t *testing.T) {
	dir := t.TempDir()
	cleanup, err := InitTelemetry(context.Background(), dir)
	require.NoError(t, err)
	cleanup()

	assert.DirExists(t, dir)
}
