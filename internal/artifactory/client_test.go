package artifactory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/saas-log-collector/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(config.ConnectionConfig{
		JPDURL:       srv.URL,
		EndPointBase: "/artifactory/",
		AccessToken:  "tok",
	}, WithRetry(3, time.Millisecond))
	require.NoError(t, err)
	return c
}

func TestDoSendsAuthAndResolvesPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/artifactory/jfrog-logs/artifactory/2023-01-01/a.log.gz", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("list"))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "payload")
	})

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "jfrog-logs/artifactory/2023-01-01/a.log.gz",
		Query:  map[string][]string{"list": {"1"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "payload", string(resp.Body))
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.EqualValues(t, 4, calls.Load(), "one attempt plus three retries")
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Get(context.Background(), "x", nil)
	require.ErrorIs(t, err, ErrStatus)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(config.ConnectionConfig{JPDURL: srv.URL}, WithRetry(1, time.Millisecond))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "x"})
	assert.Error(t, err)
}

func TestDoHonoursCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "x"})
	assert.Error(t, err)
}

func TestGzipNegotiation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/plain")
		gz := gzip.NewWriter(w)
		io.WriteString(gz, strings.Repeat("line\n", 100))
		gz.Close()
	})

	resp, err := c.Get(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("line\n", 100), string(resp.Body))
	assert.True(t, resp.Decoded)
}

func TestStoredGzipIsNotDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-gzip")
		gz := gzip.NewWriter(w)
		io.WriteString(gz, "line\n")
		gz.Close()
	})

	resp, err := c.Get(context.Background(), "x.log.gz", nil)
	require.NoError(t, err)
	assert.False(t, resp.Decoded)
	assert.Equal(t, []byte{0x1f, 0x8b}, resp.Body[:2])
}

func TestExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/artifactory/api/repositories/present":
			w.WriteHeader(http.StatusOK)
		case "/artifactory/api/repositories/broken":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	ok, err := c.Exists(ctx, "api/repositories/present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, "api/repositories/absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Exists(ctx, "api/repositories/broken")
	assert.ErrorIs(t, err, ErrStatus)
}

func TestURLKeepsTrailingSlash(t *testing.T) {
	c, err := New(config.ConnectionConfig{JPDURL: "https://acme.jfrog.io/", EndPointBase: "artifactory"})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.jfrog.io/artifactory/audit/artifactory/2023-01-01/",
		c.URL("audit/artifactory/2023-01-01/", nil))
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(config.ConnectionConfig{JPDURL: "acme.jfrog.io"})
	assert.Error(t, err)
}
