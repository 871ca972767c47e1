package cloudlibrary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	clhttp "github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// Authenticator establishes sessions. It never stores them; the returned
// Session is passed explicitly into every later call.
type Authenticator struct {
	client *Client
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(client *Client) *Authenticator {
	return &Authenticator{client: client, now: time.Now}
}

// Establish creates a session for library.
//
// With a token, the token is adopted as is and no request is made; a stale
// token surfaces on the first authenticated call as a CatalogError wrapping
// AuthError(EXPIRED_OR_INVALID_TOKEN). With a username and password, the
// login form is posted and the resulting session is checked against the
// loan page before it is returned.
//
// Credential problems are reported as *ConfigurationError before any
// network traffic.
func (a *Authenticator) Establish(ctx context.Context, library string, creds Credentials) (model.Session, error) {
	if err := creds.Validate(); err != nil {
		return model.Session{}, err
	}
	library = strings.TrimSpace(library)
	if library == "" {
		return model.Session{}, &ConfigurationError{Reason: "library is required"}
	}

	if creds.UsesToken() {
		return model.Session{
			Token:         strings.TrimSpace(creds.Token),
			Library:       library,
			EstablishedAt: a.now(),
			Adopted:       true,
		}, nil
	}

	token, err := a.login(ctx, library, creds)
	if err != nil {
		return model.Session{}, err
	}

	sess := model.Session{Token: token, Library: library, EstablishedAt: a.now()}
	if err := a.verify(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// login posts the login form and returns the session cookie value.
func (a *Authenticator) login(ctx context.Context, library string, creds Credentials) (string, error) {
	cookies, err := a.bootstrap(ctx, library)
	if err != nil {
		return "", err
	}

	req := &clhttp.Request{
		Method: http.MethodPost,
		URL:    a.client.loginURL(),
		Header: http.Header{
			"Content-Type": {"application/x-www-form-urlencoded;charset=UTF-8"},
			"Referer":      {a.client.libraryURL(library, "featured")},
		},
		Cookies: cookies,
		Body: formBody(map[string]string{
			"action":  "login",
			"barcode": creds.Username,
			"pin":     creds.Password,
			"library": library,
		}),
		NoRedirect: true,
		Policy:     clhttp.NonIdempotent,
	}

	resp, err := a.client.http.Do(ctx, req)
	if err != nil {
		return "", authError(ctx, err)
	}

	cookie := resp.Cookie(SessionCookie)
	if cookie == nil || cookie.Value == "" {
		return "", &AuthError{Kind: AuthInvalidCredentials, Err: errors.New("login response did not set a session")}
	}
	return cookie.Value, nil
}

// bootstrap fetches the library landing page for its config cookie. The
// page 404s for unknown libraries.
func (a *Authenticator) bootstrap(ctx context.Context, library string) ([]*http.Cookie, error) {
	resp, err := a.client.http.Do(ctx, &clhttp.Request{
		Method:     http.MethodGet,
		URL:        a.client.libraryURL(library, "featured"),
		NoRedirect: true,
		Policy:     clhttp.Idempotent,
	})
	if err != nil {
		if clhttp.IsNotFound(err) {
			return nil, &AuthError{Kind: AuthInvalidCredentials, Err: fmt.Errorf("unknown library %q", library)}
		}
		return nil, authError(ctx, err)
	}
	if c := resp.Cookie(configCookie); c != nil {
		return []*http.Cookie{c}, nil
	}
	return nil, nil
}

// verify loads the loan page without following redirects. The service
// redirects to its login page when the session was not accepted.
func (a *Authenticator) verify(ctx context.Context, sess model.Session) error {
	req := sessionRequest(http.MethodGet, a.client.myBooksURL(sess.Library, false), sess, clhttp.Idempotent)
	req.Header = nil

	resp, err := a.client.http.Do(ctx, req)
	if err != nil {
		return authError(ctx, err)
	}
	if resp.Redirected() {
		return &AuthError{Kind: AuthInvalidCredentials, Err: fmt.Errorf("login check redirected to %s", resp.Header.Get("Location"))}
	}
	return nil
}

// authError maps a login-phase failure. Client errors mean the service
// refused the credentials; anything else means it could not be reached.
func authError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if code := clhttp.StatusCode(err); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return &AuthError{Kind: AuthInvalidCredentials, Err: err}
	}
	return &AuthError{Kind: AuthServiceUnavailable, Err: err}
}
