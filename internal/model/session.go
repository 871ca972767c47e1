package model

import "time"

// Session is an authenticated identity bound to one library account.
//
// Session is a value type: it is created once by the session layer and then
// passed explicitly into every authenticated call. Nothing mutates it; an
// expired session is replaced or reported, never patched.
type Session struct {
	// Token is the opaque session token (the __session_PROD cookie).
	Token string

	// Library is the library identifier the token is bound to.
	Library string

	// EstablishedAt is when the session was created or adopted.
	EstablishedAt time.Time

	// Adopted is true when the token was supplied by the caller rather than
	// obtained from a login exchange.
	Adopted bool
}

// Valid reports whether the session holds a token bound to a library.
func (s Session) Valid() bool {
	return s.Token != "" && s.Library != ""
}
