package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestSetupFansOutToFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "collector.log")
	closer, err := setup(Config{Format: "text", Level: "info", File: file, UTC: true}, &console)
	require.NoError(t, err)

	slog.Info("cycle started", "solution", "artifactory")
	slog.Debug("hidden")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "cycle started")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "cycle started", rec["msg"])
	assert.Equal(t, "artifactory", rec["solution"])
	ts, err := time.Parse(time.RFC3339Nano, rec["time"].(string))
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Zero(t, offset)
}

func TestCycleIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CycleID(ctx))

	id := NewCycleID()
	ctx = WithCycleID(ctx, id)
	assert.Equal(t, id, CycleID(ctx))
	assert.NotEqual(t, id, NewCycleID())
}
