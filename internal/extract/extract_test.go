package extract

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/saas-log-collector/internal/storage"
)

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompress(t *testing.T) {
	out, err := Decompress(gz(t, "hello\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	multi := append(gz(t, "a\n"), gz(t, "b\n")...)
	out, err = Decompress(multi, false)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(out))

	out, err = Decompress([]byte("already plain\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "already plain\n", string(out))

	_, err = Decompress(nil, true)
	assert.ErrorIs(t, err, ErrEmpty)

	corrupt := gz(t, "truncated content that is long enough")
	_, err = Decompress(corrupt[:len(corrupt)-6], false)
	assert.Error(t, err)
}

func TestDecompressRejectsUnencodedPlainPayload(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"html error page", "<html><body>Service Unavailable</body></html>"},
		{"json error", `{"errors":[{"status":500,"message":"boom"}]}`},
		{"plain text", "GET /api 200\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress([]byte(tt.data), false)
			assert.ErrorIs(t, err, ErrNotCompressed)
		})
	}
}

func TestExtractAppendsByteForByte(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	e := New(store)

	ctx := context.Background()
	first := "2023-01-01T00:00:00Z|GET|/api/a|200\n"
	second := "2023-01-01T00:00:01Z|PUT|/api/b|201\n"

	n, err := e.Extract(ctx, "artifactory", "request.log", gz(t, first), false)
	require.NoError(t, err)
	assert.EqualValues(t, len(first), n)
	_, err = e.Extract(ctx, "artifactory", "request.log", gz(t, second), false)
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path("artifactory", "request.log"))
	require.NoError(t, err)
	assert.Equal(t, first+second, string(data))
}

func TestExtractCorruptLeavesDestinationUntouched(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	e := New(store)

	payload := gz(t, "some content that will be cut short")
	_, err = e.Extract(context.Background(), "artifactory", "request.log", payload[:len(payload)-4], false)
	require.Error(t, err)

	_, err = os.Stat(store.Path("artifactory", "request.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractErrorPageLeavesDestinationUntouched(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	e := New(store)

	_, err = e.Extract(context.Background(), "artifactory", "request.log", []byte("<html>502 Bad Gateway</html>"), false)
	require.ErrorIs(t, err, ErrNotCompressed)

	_, err = os.Stat(store.Path("artifactory", "request.log"))
	assert.True(t, os.IsNotExist(err))
}
