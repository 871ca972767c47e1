package cloudlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	clhttp "github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "__session_PROD"

// configCookie is handed out by the library landing page and expected on login.
const configCookie = "__config_PROD"

// Remix data routes. The service answers these with JSON instead of HTML.
const (
	routeRoot           = "root"
	routeMyBooks        = "routes/library.$name.mybooks.current"
	routeDetail         = "routes/library.$name.detail.$id"
	routeListen         = "routes/listen.$id"
	remixRedirectHeader = "X-Remix-Redirect"
)

// Endpoints are the base URLs of the three services a download touches.
type Endpoints struct {
	Ebook    string
	Audio    string
	Findaway string
}

// DefaultEndpoints returns the production base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Ebook:    "https://ebook.yourcloudlibrary.com",
		Audio:    "https://audio.yourcloudlibrary.com",
		Findaway: "https://api.findawayworld.com",
	}
}

// Client is the shared transport for Authenticator, Catalog, Lender and
// StreamResolver. It holds no session state.
type Client struct {
	http      *clhttp.Client
	endpoints Endpoints
}

// NewClient creates a Client. Trailing slashes on endpoints are ignored.
func NewClient(hc *clhttp.Client, endpoints Endpoints) *Client {
	endpoints.Ebook = strings.TrimRight(endpoints.Ebook, "/")
	endpoints.Audio = strings.TrimRight(endpoints.Audio, "/")
	endpoints.Findaway = strings.TrimRight(endpoints.Findaway, "/")
	return &Client{http: hc, endpoints: endpoints}
}

// HTTP returns the underlying transport.
func (c *Client) HTTP() *clhttp.Client {
	return c.http
}

func (c *Client) libraryURL(library string, parts ...string) string {
	var b strings.Builder
	b.WriteString(c.endpoints.Ebook)
	b.WriteString("/library/")
	b.WriteString(url.PathEscape(library))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func (c *Client) loginURL() string {
	return c.endpoints.Ebook + "/?_data=" + routeRoot
}

func (c *Client) myBooksURL(library string, data bool) string {
	u := c.libraryURL(library, "mybooks", "current")
	if data {
		u += "?_data=" + routeMyBooks
	}
	return u
}

func (c *Client) detailURL(library, mediaID string) string {
	return c.libraryURL(library, "detail", mediaID) + "?_data"
}

func (c *Client) lendingURL(library, mediaID, action string) string {
	q := url.Values{}
	q.Set("action", action)
	q.Set("itemId", mediaID)
	q.Set("_data", routeDetail)
	return c.libraryURL(library, "detail", mediaID) + "?" + q.Encode()
}

func (c *Client) listenURL(mediaID string) string {
	return c.endpoints.Audio + "/listen/" + url.PathEscape(mediaID) + "?_data=" + routeListen
}

func (c *Client) findawayMetadataURL(f model.Fulfillment) string {
	return fmt.Sprintf("%s/v4/accounts/%s/audiobooks/%s",
		c.endpoints.Findaway, url.PathEscape(f.AccountID), url.PathEscape(f.FulfillmentID))
}

func (c *Client) playlistURL(f model.Fulfillment) string {
	return fmt.Sprintf("%s/v4/audiobooks/%s/playlists", c.endpoints.Findaway, url.PathEscape(f.FulfillmentID))
}

// sessionRequest builds a request authorized by sess. Data routes are sent
// without following redirects: the service redirects rejected sessions to
// its login page.
func sessionRequest(method, target string, sess model.Session, policy clhttp.Policy) *clhttp.Request {
	return &clhttp.Request{
		Method:     method,
		URL:        target,
		Header:     http.Header{"Accept": {"application/json, */*"}},
		Cookies:    []*http.Cookie{{Name: SessionCookie, Value: sess.Token}},
		NoRedirect: true,
		Policy:     policy,
	}
}

// findawayRequest builds a request authorized by the title's audio license.
func findawayRequest(method, target string, f model.Fulfillment, body []byte) *clhttp.Request {
	header := FindawayHeader(f)
	if body != nil {
		header.Set("Content-Type", "application/json")
	}
	return &clhttp.Request{
		Method: method,
		URL:    target,
		Header: header,
		Body:   body,
		Policy: clhttp.Idempotent,
	}
}

// FindawayHeader returns the headers the Findaway API needs for f.
func FindawayHeader(f model.Fulfillment) http.Header {
	return http.Header{
		"Accept":      {"*/*"},
		"Session-Key": {f.SessionKey},
	}
}

func formBody(values map[string]string) []byte {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	return []byte(form.Encode())
}

// errRedirected reports a data route answered with a redirect.
var errRedirected = errors.New("redirected to login")

// malformedError wraps a response that could not be decoded or validated.
type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return "unexpected response: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// doJSON sends req and decodes the body into out. Redirects come back as
// errRedirected and bad bodies as *malformedError; transport and status
// errors pass through unchanged.
func (c *Client) doJSON(ctx context.Context, req *clhttp.Request, out any) (*clhttp.Response, error) {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Redirected() || resp.Header.Get(remixRedirectHeader) != "" {
		return resp, errRedirected
	}
	if out == nil {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp, &malformedError{err: err}
	}
	return resp, nil
}

// catalogError maps a read failure onto the catalog taxonomy. Cancellation
// is returned as is.
func catalogError(ctx context.Context, err error, sess model.Session, mediaID string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var malformed *malformedError
	switch {
	case clhttp.IsUnauthorized(err), errors.Is(err, errRedirected):
		return &CatalogError{Kind: CatalogUnauthorized, MediaID: mediaID, Err: rejectedSession(sess, err)}
	case clhttp.IsNotFound(err):
		return &CatalogError{Kind: CatalogNotFound, MediaID: mediaID, Err: err}
	case errors.As(err, &malformed):
		return &CatalogError{Kind: CatalogMalformed, MediaID: mediaID, Err: err}
	default:
		return &CatalogError{Kind: CatalogServiceUnavailable, MediaID: mediaID, Err: err}
	}
}

// rejectedSession explains an authorization failure on an established session.
func rejectedSession(sess model.Session, cause error) error {
	if sess.Adopted {
		return &AuthError{Kind: AuthExpiredOrInvalidToken, Err: fmt.Errorf("supplied session token was rejected: %w", cause)}
	}
	return &AuthError{Kind: AuthExpiredOrInvalidToken, Err: fmt.Errorf("session expired: %w", cause)}
}
