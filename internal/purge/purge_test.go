package purge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2023, 3, 10, 9, 0, 0, 0, time.UTC)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestAgeDays(t *testing.T) {
	assert.Equal(t, 0, AgeDays(today.AddDate(0, 0, -7), today, 7))
	assert.Equal(t, -1, AgeDays(today.AddDate(0, 0, -8), today, 7))
	assert.Equal(t, 7, AgeDays(today, today, 7))
	assert.Equal(t, 0, AgeDays(today.Add(-2*time.Hour), today, 0))
}

func TestRunDeletesStrictlyOlderFiles(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "artifactory", "old.log")
	boundary := filepath.Join(root, "artifactory", "boundary.log")
	fresh := filepath.Join(root, "xray", "fresh.log")
	other := filepath.Join(root, "xray", "notes.txt")

	touch(t, old, today.AddDate(0, 0, -8))
	touch(t, boundary, today.AddDate(0, 0, -7))
	touch(t, fresh, today)
	touch(t, other, today.AddDate(0, 0, -100))

	res, err := New(root, 7).WithClock(func() time.Time { return today }).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{old}, res.Purged)
	assert.Equal(t, 2, res.Retained)
	assert.EqualValues(t, 2, res.Bytes)

	assert.NoFileExists(t, old)
	assert.FileExists(t, boundary)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other, "only *.log files are purged")
}

func TestRunMissingRoot(t *testing.T) {
	res, err := New(filepath.Join(t.TempDir(), "absent"), 1).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Purged)
}
