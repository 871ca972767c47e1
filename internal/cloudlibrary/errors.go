package cloudlibrary

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a bad or missing argument combination. It is
// always raised before any network call.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// AuthErrorKind classifies authentication failures.
type AuthErrorKind string

const (
	AuthInvalidCredentials    AuthErrorKind = "INVALID_CREDENTIALS"
	AuthExpiredOrInvalidToken AuthErrorKind = "EXPIRED_OR_INVALID_TOKEN"
	AuthServiceUnavailable    AuthErrorKind = "SERVICE_UNAVAILABLE"
)

// AuthError is returned when a session cannot be established or is no
// longer accepted by the service.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed: %s", e.Kind)
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError with the same Kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// CatalogErrorKind classifies catalog failures.
type CatalogErrorKind string

const (
	CatalogNotFound           CatalogErrorKind = "NOT_FOUND"
	CatalogUnauthorized       CatalogErrorKind = "UNAUTHORIZED"
	CatalogServiceUnavailable CatalogErrorKind = "SERVICE_UNAVAILABLE"
	CatalogMalformed          CatalogErrorKind = "MALFORMED_RESPONSE"
	CatalogUnsupportedMedia   CatalogErrorKind = "UNSUPPORTED_MEDIA"
)

// CatalogError is returned by loan listing and metadata calls.
type CatalogError struct {
	Kind    CatalogErrorKind
	MediaID string
	Err     error
}

func (e *CatalogError) Error() string {
	msg := fmt.Sprintf("catalog: %s", e.Kind)
	if e.MediaID != "" {
		msg += fmt.Sprintf(" (media %s)", e.MediaID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Is matches another *CatalogError with the same Kind.
func (e *CatalogError) Is(target error) bool {
	t, ok := target.(*CatalogError)
	return ok && t.Kind == e.Kind
}

// StateErrorKind classifies loan transition outcomes.
type StateErrorKind string

const (
	// StateAlreadyHeld: borrow on a title already on loan. No-op.
	StateAlreadyHeld StateErrorKind = "ALREADY_HELD"

	// StateNotHeld: return on a title not on loan. No-op.
	StateNotHeld StateErrorKind = "NOT_HELD"

	// StateUnavailable: no copy can be borrowed right now.
	StateUnavailable StateErrorKind = "UNAVAILABLE"

	// StateLoanLimit: the account has reached its loan limit.
	StateLoanLimit StateErrorKind = "LOAN_LIMIT"

	// StateRejected: the service refused the transition.
	StateRejected StateErrorKind = "REJECTED"

	// StateOutcomeUnknown: the request may or may not have taken effect.
	StateOutcomeUnknown StateErrorKind = "OUTCOME_UNKNOWN"
)

// StateError is returned by Borrow and Release.
type StateError struct {
	Kind    StateErrorKind
	MediaID string
	Err     error
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("loan state: %s (media %s)", e.Kind, e.MediaID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StateError) Unwrap() error { return e.Err }

// Is matches another *StateError with the same Kind.
func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	return ok && t.Kind == e.Kind
}

// NoOp reports whether the desired end state already held, so nothing was
// requested from the service.
func (e *StateError) NoOp() bool {
	return e.Kind == StateAlreadyHeld || e.Kind == StateNotHeld
}

// IsNoOp reports whether err is a StateError describing a no-op transition.
func IsNoOp(err error) bool {
	var se *StateError
	return errors.As(err, &se) && se.NoOp()
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound     = &CatalogError{Kind: CatalogNotFound}
	ErrUnauthorized = &CatalogError{Kind: CatalogUnauthorized}
	ErrTokenExpired = &AuthError{Kind: AuthExpiredOrInvalidToken}
)
