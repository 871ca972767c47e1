package http

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(onRetry func(*Request, int, error)) *Client {
	return NewClient(ClientConfig{
		Timeout:     5 * time.Second,
		UserAgent:   "test-agent",
		MaxAttempts: 3,
		Backoff:     Backoff{Cooldown: time.Millisecond, Exponent: 1},
		OnRetry:     onRetry,
	})
}

func TestDo_RetriesIdempotentOn5xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	resp, err := testClient(nil).Do(context.Background(), &Request{Method: http.MethodGet, URL: ts.URL})
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(resp.Body))
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDo_NonIdempotentNotRetriedAfterSend(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := testClient(nil).Do(context.Background(), &Request{Method: http.MethodPost, URL: ts.URL, Policy: NonIdempotent})
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDo_NonIdempotentRetriedOnDialFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	var retries int32
	client := testClient(func(*Request, int, error) { atomic.AddInt32(&retries, 1) })

	_, err := client.Do(context.Background(), &Request{Method: http.MethodPost, URL: url, Policy: NonIdempotent})
	require.Error(t, err)
	require.True(t, IsDialFailure(err), "expected dial failure, got %v", err)
	require.EqualValues(t, 2, atomic.LoadInt32(&retries))
}

func TestDo_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := testClient(nil).Do(context.Background(), &Request{Method: http.MethodGet, URL: ts.URL})
	require.True(t, IsNotFound(err))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDo_NoRedirectAndCookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("__session_PROD"); err != nil || c.Value != "tok" {
			t.Errorf("missing session cookie")
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		http.SetCookie(w, &http.Cookie{Name: "set", Value: "v"})
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer ts.Close()

	resp, err := testClient(nil).Do(context.Background(), &Request{
		Method:     http.MethodGet,
		URL:        ts.URL,
		Cookies:    []*http.Cookie{{Name: "__session_PROD", Value: "tok"}},
		NoRedirect: true,
	})
	require.NoError(t, err)
	require.True(t, resp.Redirected())
	require.NotNil(t, resp.Cookie("set"))
	require.Nil(t, resp.Cookie("absent"))
}

func TestDownloadFile(t *testing.T) {
	payload := []byte("ID3-fake-audio-payload")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Session-Key") != "sk" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(payload)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "01.mp3")
	header := http.Header{"Session-Key": []string{"sk"}}

	var lastWritten int64
	written, length, err := testClient(nil).DownloadFile(context.Background(), ts.URL, header, dest, func(w, _ int64) { lastWritten = w })
	require.NoError(t, err)
	require.EqualValues(t, len(payload), written)
	require.EqualValues(t, len(payload), length)
	require.Equal(t, written, lastWritten)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, data)

	_, _, err = testClient(nil).DownloadFile(context.Background(), ts.URL, nil, dest, nil)
	require.True(t, IsUnauthorized(err))
}

func TestGetFileSize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1234")
	}))
	defer ts.Close()

	size, err := testClient(nil).GetFileSize(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1234, size)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"500", &StatusError{Code: 500}, true},
		{"429", &StatusError{Code: 429}, true},
		{"404", &StatusError{Code: 404}, false},
		{"403", &StatusError{Code: 403}, false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"read reset", &net.OpError{Op: "read", Err: errors.New("x")}, false},
		{"dns", &net.DNSError{Err: "no such host"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable_NonIdempotent(t *testing.T) {
	require.False(t, Retryable(NonIdempotent, &StatusError{Code: 503}))
	require.True(t, Retryable(NonIdempotent, &net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, Retryable(Idempotent, &StatusError{Code: 503}))
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Cooldown: 100 * time.Millisecond, Exponent: 2}
	require.Equal(t, 100*time.Millisecond, b.Delay(0, 0))
	require.Equal(t, 400*time.Millisecond, b.Delay(2, 0))
	require.Equal(t, 3*time.Second, b.Delay(0, 3*time.Second))
	require.Equal(t, maxRetryWait, b.Delay(30, 0))
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 2*time.Second, parseRetryAfter("2"))
	require.Zero(t, parseRetryAfter(""))
	require.Zero(t, parseRetryAfter("garbage"))
}

func TestRedactForm(t *testing.T) {
	got := redactForm("action=login&barcode=123&pin=0000&library=lib")
	require.Equal(t, "action=login&barcode=REDACTED&pin=REDACTED&library=lib", got)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestLoggingTransport_LeavesRequestUntouched(t *testing.T) {
	var got string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		got = string(b)
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Request:    req,
		}, nil
	})

	req, err := http.NewRequest(http.MethodPost, "http://lib.test/login", strings.NewReader("barcode=1&pin=2"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body := req.Body

	resp, err := (&LoggingTransport{Base: base}).RoundTrip(req)
	require.NoError(t, err)
	require.True(t, body == req.Body, "request body was replaced")
	require.Equal(t, "barcode=1&pin=2", got)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(b))
}

func TestLoggingTransport_ResponseReadError(t *testing.T) {
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       io.NopCloser(iotest.ErrReader(errors.New("reset"))),
			Request:    req,
		}, nil
	})

	req, err := http.NewRequest(http.MethodGet, "http://lib.test/", nil)
	require.NoError(t, err)

	_, err = (&LoggingTransport{Base: base}).RoundTrip(req)
	require.EqualError(t, err, "reset")
}
