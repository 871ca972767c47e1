package http

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// maxLoggedBody bounds how much of a body LoggingTransport prints.
const maxLoggedBody = 2048

// LoggingTransport is an http.RoundTripper that logs requests and responses.
// Each exchange is tagged with a short request id so concurrent chapter
// downloads can be told apart. Audio and other binary bodies are not logged.
type LoggingTransport struct {
	Base http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	id := uuid.NewString()[:8]

	var reqBody []byte
	if req.Body != nil && req.GetBody != nil && isText(req.Header.Get("Content-Type")) {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		reqBody, err = io.ReadAll(body)
		body.Close()
		if err != nil {
			return nil, err
		}
	}

	log.Printf("DEBUG [%s] -> %s %s", id, req.Method, redactURL(req))
	if len(reqBody) > 0 {
		log.Printf("DEBUG [%s] -> body: %s", id, redactForm(string(reqBody)))
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		log.Printf("DEBUG [%s] <- error: %v", id, err)
		return resp, err
	}

	log.Printf("DEBUG [%s] <- %d (%s, %d bytes)", id, resp.StatusCode, resp.Header.Get("Content-Type"), resp.ContentLength)

	if isText(resp.Header.Get("Content-Type")) {
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		if len(respBody) > 0 {
			log.Printf("DEBUG [%s] <- body: %s", id, truncate(string(respBody)))
		}
	}

	return resp, nil
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json") || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "x-www-form-urlencoded")
}

func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = redactForm(u.RawQuery)
	return u.String()
}

// redactForm hides credentials in form bodies and query strings.
func redactForm(s string) string {
	parts := strings.Split(s, "&")
	for i, p := range parts {
		key, _, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		switch strings.ToLower(key) {
		case "pin", "password", "barcode":
			parts[i] = key + "=REDACTED"
		}
	}
	return strings.Join(parts, "&")
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}
