// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package client is the Go SDK for a weft daemon: a typed HTTP client
// for the query API, a buffered uploader for span producers, and an
// OpenTelemetry SpanExporter bridge for code that already runs an otel
// pipeline.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Defaults applied by New when the corresponding option is unset.
const (
	DefaultBaseURL = "http://127.0.0.1:8787"
	DefaultTimeout = 30 * time.Second

	defaultUserAgent     = "weft-client/1.0"
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 100 * time.Millisecond
	defaultMaxBackoff    = 5 * time.Second
)

// Options configures a Client.
type Options struct {
	// BaseURL is the daemon address, e.g. "http://127.0.0.1:8787".
	BaseURL string

	// UserAgent overrides the User-Agent header.
	UserAgent string

	// Timeout bounds each non-streaming request, retries included.
	Timeout time.Duration

	// RetryAttempts is how many times idempotent requests are retried
	// on transient failures. Ingest posts are never retried; the
	// uploader tolerates their loss instead.
	RetryAttempts int

	// HTTPClient replaces the built transport entirely. Mostly for
	// tests.
	HTTPClient *http.Client

	// Logger receives request-level debug logs. Discarded when nil.
	Logger *slog.Logger
}

// Client talks to a weft daemon over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// New creates a Client. Zero-valued options take defaults.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", opts.BaseURL)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryAttempts < 0 {
		return nil, fmt.Errorf("retry attempts must be >= 0, got %d", opts.RetryAttempts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{baseURL: base, logger: logger}

	if opts.HTTPClient != nil {
		c.http = opts.HTTPClient
		c.stream = opts.HTTPClient
		return c, nil
	}

	logging := newLoggingTransport(baseTransport(), opts.UserAgent, logger)
	var rt http.RoundTripper = logging
	if opts.RetryAttempts > 0 {
		rt = newRetryTransport(logging, retryOptions{
			attempts:    opts.RetryAttempts,
			baseBackoff: defaultRetryBackoff,
			maxBackoff:  defaultMaxBackoff,
		})
	}

	c.http = &http.Client{Transport: rt, Timeout: opts.Timeout}

	// Streaming requests stay open for as long as the caller watches,
	// so they bypass both the client timeout and the retry layer.
	c.stream = &http.Client{Transport: logging}

	return c, nil
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int

	// Message is the daemon's error text.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weft api error (%d): %s", e.StatusCode, e.Message)
}

// NotFound reports whether the error is a 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(c.http, req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.http, req, out)
}

func (c *Client) do(hc *http.Client, req *http.Request, out interface{}) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// decodeError turns an error response into an APIError, falling back to
// the raw body when it is not the daemon's {"error": ...} shape.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
}
