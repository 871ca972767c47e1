package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Policy says which failures a request may be retried on.
type Policy int

const (
	// Idempotent requests (reads) are retried on any transient failure:
	// timeouts, connection resets, 5xx and 429 responses.
	Idempotent Policy = iota

	// NonIdempotent requests (login, borrow, return) are retried only when
	// the connection was never established, so the server cannot have seen
	// them. Anything after that is surfaced to the caller.
	NonIdempotent
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Timeout     time.Duration
	UserAgent   string
	MaxAttempts int
	Backoff     Backoff

	// Debug enables request/response tracing through LoggingTransport.
	Debug bool

	// OnRetry, if set, is called before each retry wait.
	OnRetry func(req *Request, attempt int, err error)
}

// DefaultClientConfig returns the configuration used by NewClient when no
// settings are supplied.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:     60 * time.Second,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
		MaxAttempts: 3,
		Backoff:     Backoff{Cooldown: 500 * time.Millisecond, Exponent: 4},
	}
}

// Client wraps HTTP operations with cloudLibrary-specific configuration.
//
// Client provides:
//   - Browser-like User-Agent header (the service rejects unknown agents)
//   - Timeout handling
//   - Retry with exponential backoff, limited by each request's Policy
//   - Streaming file download with progress tracking
//   - File size retrieval via HEAD requests
//
// Example usage:
//
//	client := NewClient(DefaultClientConfig())
//
//	resp, err := client.Do(ctx, &Request{Method: "GET", URL: detailURL})
//
//	written, length, err := client.DownloadFile(ctx, mp3URL, header, "/path/to/file.mp3", nil)
type Client struct {
	httpClient *http.Client
	noRedirect *http.Client
	cfg        ClientConfig
}

// NewClient creates a new HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Debug {
		transport = &LoggingTransport{Base: transport}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		noRedirect: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg: cfg,
	}
}

// Request describes one logical request. It may be sent several times.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Cookies []*http.Cookie
	Body    []byte

	// NoRedirect returns 3xx responses to the caller instead of following them.
	NoRedirect bool

	Policy Policy
}

// Response is a fully read response.
type Response struct {
	StatusCode    int
	Header        http.Header
	Cookies       []*http.Cookie
	ContentLength int64
	Body          []byte
}

// Redirected reports whether the response is a 3xx.
func (r *Response) Redirected() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// Cookie returns the named cookie set by the response, or nil.
func (r *Response) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Do sends req, retrying according to req.Policy. Responses with status
// 400 and above are returned as *StatusError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt+1 >= c.cfg.MaxAttempts || !Retryable(req.Policy, err) {
			return nil, err
		}
		if c.cfg.OnRetry != nil {
			c.cfg.OnRetry(req, attempt+1, err)
		}
		if err := c.cfg.Backoff.Wait(ctx, attempt, RetryAfter(err)); err != nil {
			return nil, err
		}
	}
}

func (c *Client) send(ctx context.Context, r *Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for _, cookie := range r.Cookies {
		req.AddCookie(cookie)
	}

	hc := c.httpClient
	if r.NoRedirect {
		hc = c.noRedirect
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, newStatusError(resp, data)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Cookies:       resp.Cookies(),
		ContentLength: resp.ContentLength,
		Body:          data,
	}, nil
}

// ProgressWriter wraps a writer to track download progress.
//
// Use this to monitor large downloads by providing an OnUpdate callback
// that receives the current bytes written and total expected bytes.
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header), or -1.
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// Get performs a single GET request and returns the response body.
//
// Get does not retry. It is meant for one-shot fetches of static resources
// such as cover thumbnails.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// GetFileSize returns the size of the resource at url via a HEAD request.
//
// It returns -1 with a nil error when the server does not report a length.
func (c *Client) GetFileSize(ctx context.Context, url string, header http.Header) (int64, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodHead, URL: url, Header: header, Policy: Idempotent})
	if err != nil {
		return 0, err
	}
	if resp.ContentLength < 0 {
		return -1, nil
	}
	return resp.ContentLength, nil
}

// DownloadFile streams a single GET of url into destPath.
//
// The file is created (or truncated if it exists). DownloadFile makes one
// attempt; retry decisions belong to the caller, which knows what a partial
// file means. It returns the bytes written and the Content-Length the
// server announced (-1 if none).
//
// Parameters:
//   - ctx: Context for cancellation
//   - url: URL to download from
//   - header: Extra request headers, may be nil
//   - destPath: Local file path to save to
//   - onProgress: Optional callback called with (bytesWritten, totalBytes)
func (c *Client) DownloadFile(ctx context.Context, url string, header http.Header, destPath string, onProgress func(written, total int64)) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, -1, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, -1, newStatusError(resp, data)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return 0, resp.ContentLength, err
	}
	defer file.Close()

	pw := &ProgressWriter{
		Writer:   file,
		Total:    resp.ContentLength,
		OnUpdate: onProgress,
	}

	_, err = io.Copy(pw, resp.Body)
	if err == nil {
		err = file.Sync()
	}
	return pw.Written, resp.ContentLength, err
}
