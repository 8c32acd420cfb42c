// Package artifactory is a small REST client for the JFrog platform endpoints
// the collector needs: AQL search, repository and storage probes, and plain
// artifact reads and writes.
package artifactory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzhttp"

	"github.com/withObsrvr/saas-log-collector/internal/config"
	"github.com/withObsrvr/saas-log-collector/internal/metrics"
)

// UserAgent identifies the collector to the platform and in marker bodies.
const UserAgent = "jfrog-saas-log-collector"

// Request describes one call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is a fully-read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Decoded is set when the transport removed a gzip or zstd content
	// encoding, so Body is no longer what the server stored.
	Decoded bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsJSON reports whether the response declares a JSON media type.
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// Client issues authenticated requests with bounded retries.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	retries uint64
	backoff time.Duration
	log     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the retry budget and the initial backoff interval.
func WithRetry(retries int, initial time.Duration) Option {
	return func(c *Client) {
		if retries < 0 {
			retries = 0
		}
		c.retries = uint64(retries)
		c.backoff = initial
	}
}

// New builds a client for {jpd_url}/{end_point_base}. Responses are
// negotiated with gzip and decompressed transparently; redirects are
// followed.
func New(cfg config.ConnectionConfig, opts ...Option) (*Client, error) {
	raw := strings.TrimRight(cfg.JPDURL, "/")
	if base := strings.Trim(cfg.EndPointBase, "/"); base != "" {
		raw += "/" + base
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", raw)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		base:  base,
		token: cfg.AccessToken,
		http: &http.Client{
			Timeout:   timeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		retries: uint64(max(cfg.Retries, 0)),
		backoff: cfg.RetryBackoff,
		log:     slog.With("component", "artifactory"),
	}
	if c.backoff <= 0 {
		c.backoff = 500 * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL resolves a path against the base URL.
func (c *Client) URL(p string, q url.Values) string {
	u := c.base.JoinPath(p)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Do executes req, retrying transport failures, 429 and 5xx responses with
// exponential backoff. When retries are exhausted on a status failure the
// last response is returned without error so callers can inspect it.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var last *Response
	attempt := 0

	op := func() error {
		attempt++
		last = nil
		resp, err := c.once(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		last = resp
		if retryable(resp.Status) {
			return fmt.Errorf("%s %s: http %d", req.Method, req.Path, resp.Status)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	notify := func(err error, wait time.Duration) {
		c.log.Warn("request failed, retrying",
			"method", req.Method,
			"path", req.Path,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if m := metrics.Get(); m != nil {
			m.IncRetryAttempts(req.Method)
		}
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if last != nil && ctx.Err() == nil {
			return last, nil
		}
		return nil, fmt.Errorf("%s %s after %d attempts: %w", req.Method, req.Path, attempt, err)
	}
	return last, nil
}

func (c *Client) once(ctx context.Context, r Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, c.URL(r.Path, r.Query), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data, Decoded: resp.Uncompressed}, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// ErrStatus is wrapped by helpers that require a 2xx response.
var ErrStatus = errors.New("unexpected http status")

// StatusError builds an ErrStatus-wrapping error carrying a short body excerpt.
func StatusError(req Request, resp *Response) error {
	excerpt := string(resp.Body)
	if len(excerpt) > 256 {
		excerpt = excerpt[:256]
	}
	return fmt.Errorf("%s %s: %w %d: %s", req.Method, req.Path, ErrStatus, resp.Status, strings.TrimSpace(excerpt))
}

// Get fetches a path and requires a 2xx response.
func (c *Client) Get(ctx context.Context, p string, header http.Header) (*Response, error) {
	return c.expectOK(ctx, Request{Method: http.MethodGet, Path: p, Header: header})
}

// Put stores body at path and requires a 2xx response.
func (c *Client) Put(ctx context.Context, p, contentType string, body []byte) (*Response, error) {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return c.expectOK(ctx, Request{Method: http.MethodPut, Path: p, Header: h, Body: body})
}

// Delete removes path and requires a 2xx response.
func (c *Client) Delete(ctx context.Context, p string) (*Response, error) {
	return c.expectOK(ctx, Request{Method: http.MethodDelete, Path: p})
}

// Exists probes path with GET and reports whether it answered 2xx.
// Authorization failures and server errors are returned as errors; any other
// status means the resource is absent.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	req := Request{Method: http.MethodGet, Path: p}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return false, err
	}
	switch {
	case resp.OK():
		return true, nil
	case resp.Status == http.StatusUnauthorized, resp.Status == http.StatusForbidden, resp.Status >= 500:
		return false, StatusError(req, resp)
	default:
		return false, nil
	}
}

func (c *Client) expectOK(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, StatusError(req, resp)
	}
	return resp, nil
}
