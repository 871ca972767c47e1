// Package http provides the HTTP client used to talk to cloudLibrary and
// the Findaway audio API.
//
// The Client in this package handles:
//   - Browser-like headers the service expects
//   - Retries with exponential backoff, gated by a per-request Policy
//   - Status classification (unauthorized, not found, transient)
//   - Streaming file downloads with progress tracking
//   - Optional request tracing (LoggingTransport)
//
// # Retry Policies
//
// Reads are sent with Idempotent and are retried on timeouts, connection
// resets, 5xx and 429 responses. Requests that change server state (login,
// borrow, return) are sent with NonIdempotent and are retried only when the
// connection could not be established at all:
//
//	resp, err := client.Do(ctx, &http.Request{
//	    Method: "GET",
//	    URL:    borrowURL,
//	    Policy: http.NonIdempotent,
//	})
//
// # Downloads
//
// DownloadFile makes exactly one attempt and reports bytes written and the
// announced Content-Length so the caller can verify the file:
//
//	written, length, err := client.DownloadFile(ctx, url, header, path, nil)
package http
