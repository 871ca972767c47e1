package cloudlibrary

import (
	"context"
	"errors"
	"net/http"

	"github.com/handiism/cloudlibrary-downloader/internal/cloudlibrary/dto"
	clhttp "github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// LoanObserver is the read side the lending state machine derives state from.
type LoanObserver interface {
	ListLoans(ctx context.Context, sess model.Session) ([]model.LoanRecord, error)
	Status(ctx context.Context, sess model.Session, mediaID string) (model.LoanRecord, error)
}

// Transition is the observed before and after state of a borrow or return.
type Transition struct {
	MediaID string
	From    model.LoanStatus
	To      model.LoanStatus
}

// Changed reports whether the loan state moved.
func (t Transition) Changed() bool {
	return t.From.Held() != t.To.Held()
}

type lendingAction string

const (
	actionBorrow lendingAction = "borrow"
	actionReturn lendingAction = "return"
)

// Lender borrows and returns titles.
//
// Every transition observes the current state first, issues at most one
// request, and then re-reads the loan list: the service's own answer is
// never taken as proof that the state changed. Requests are retried only
// when the connection could not be opened, since a repeated borrow can
// consume a second loan slot.
type Lender struct {
	client  *Client
	catalog LoanObserver
}

// NewLender creates a Lender that observes state through catalog.
func NewLender(client *Client, catalog LoanObserver) *Lender {
	return &Lender{client: client, catalog: catalog}
}

// Borrow checks out mediaID.
//
// A title already on loan yields StateError(ALREADY_HELD), a no-op. A title
// without a free copy yields StateError(UNAVAILABLE) without a request.
func (l *Lender) Borrow(ctx context.Context, sess model.Session, mediaID string) (Transition, error) {
	t := Transition{MediaID: mediaID}

	rec, err := l.catalog.Status(ctx, sess, mediaID)
	if err != nil {
		return t, err
	}
	t.From, t.To = rec.Status, rec.Status

	switch rec.Status {
	case model.StatusOnLoan:
		return t, &StateError{Kind: StateAlreadyHeld, MediaID: mediaID}
	case model.StatusNotHeld:
		return t, &StateError{Kind: StateUnavailable, MediaID: mediaID, Err: errors.New("no copy can be borrowed")}
	}

	if err := l.send(ctx, sess, mediaID, actionBorrow); err != nil {
		return t, err
	}

	held, err := l.held(ctx, sess, mediaID)
	if err != nil {
		return t, err
	}
	if !held {
		t.To = model.StatusNotHeld
		return t, &StateError{Kind: StateUnavailable, MediaID: mediaID, Err: errors.New("borrow accepted but the title is not on loan")}
	}
	t.To = model.StatusOnLoan
	return t, nil
}

// Release returns mediaID.
//
// A title not on loan yields StateError(NOT_HELD), a no-op: the desired end
// state already holds.
func (l *Lender) Release(ctx context.Context, sess model.Session, mediaID string) (Transition, error) {
	t := Transition{MediaID: mediaID, From: model.StatusNotHeld, To: model.StatusNotHeld}

	loans, err := l.catalog.ListLoans(ctx, sess)
	if err != nil {
		return t, err
	}
	if _, ok := findLoan(loans, mediaID); !ok {
		return t, &StateError{Kind: StateNotHeld, MediaID: mediaID}
	}
	t.From, t.To = model.StatusOnLoan, model.StatusOnLoan

	if err := l.send(ctx, sess, mediaID, actionReturn); err != nil {
		return t, err
	}

	held, err := l.held(ctx, sess, mediaID)
	if err != nil {
		return t, err
	}
	if held {
		return t, &StateError{Kind: StateRejected, MediaID: mediaID, Err: errors.New("return accepted but the title is still on loan")}
	}
	t.To = model.StatusNotHeld
	return t, nil
}

// held re-reads the loan list after a transition. A failure here leaves the
// outcome of the transition unknown.
func (l *Lender) held(ctx context.Context, sess model.Session, mediaID string) (bool, error) {
	loans, err := l.catalog.ListLoans(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, &StateError{Kind: StateOutcomeUnknown, MediaID: mediaID, Err: err}
	}
	_, ok := findLoan(loans, mediaID)
	return ok, nil
}

// send issues one lending action and interprets the answer.
func (l *Lender) send(ctx context.Context, sess model.Session, mediaID string, action lendingAction) error {
	req := sessionRequest(http.MethodGet, l.client.lendingURL(sess.Library, mediaID, string(action)), sess, clhttp.NonIdempotent)

	var result dto.JSONLendingResult
	if _, err := l.client.doJSON(ctx, req, &result); err != nil {
		return lendingError(ctx, err, sess, mediaID)
	}

	if !result.Failed() {
		return nil
	}
	if result.Error == nil {
		return &StateError{Kind: StateRejected, MediaID: mediaID, Err: errors.New("service reported status FAILED")}
	}

	kind := StateRejected
	if action == actionBorrow {
		kind = StateUnavailable
		if result.Error.ReaktorErrorMessage == dto.ErrorTooManyLoans {
			kind = StateLoanLimit
		}
	}
	return &StateError{Kind: kind, MediaID: mediaID, Err: errors.New(result.Error.Message())}
}

// lendingError maps a failed lending request. Only failures that prove the
// request was refused or never delivered are definite; everything else may
// have taken effect.
func lendingError(ctx context.Context, err error, sess model.Session, mediaID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var malformed *malformedError
	switch {
	case clhttp.IsUnauthorized(err), errors.Is(err, errRedirected):
		return &StateError{Kind: StateRejected, MediaID: mediaID, Err: rejectedSession(sess, err)}
	case clhttp.IsDialFailure(err):
		return &StateError{Kind: StateRejected, MediaID: mediaID, Err: err}
	case errors.As(err, &malformed):
		return &StateError{Kind: StateOutcomeUnknown, MediaID: mediaID, Err: err}
	}

	if code := clhttp.StatusCode(err); code >= 400 && code < 500 && code != http.StatusRequestTimeout {
		return &StateError{Kind: StateRejected, MediaID: mediaID, Err: err}
	}
	return &StateError{Kind: StateOutcomeUnknown, MediaID: mediaID, Err: err}
}
