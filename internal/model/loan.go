package model

import "time"

// LoanStatus is the observed loan state of a title for the account.
type LoanStatus int

const (
	// StatusNotHeld means the account does not hold the title.
	StatusNotHeld LoanStatus = iota

	// StatusAvailableToBorrow is the NOT_HELD sub-state in which the service
	// reports a copy can be borrowed right now.
	StatusAvailableToBorrow

	// StatusOnLoan means the title is checked out to the account.
	StatusOnLoan
)

// String returns the status name used in reports.
func (s LoanStatus) String() string {
	switch s {
	case StatusAvailableToBorrow:
		return "AVAILABLE_TO_BORROW"
	case StatusOnLoan:
		return "ON_LOAN"
	default:
		return "NOT_HELD"
	}
}

// Held reports whether the status counts as ON_LOAN.
func (s LoanStatus) Held() bool {
	return s == StatusOnLoan
}

// MediaTypeMP3 is the only media type the downloader can fetch.
const MediaTypeMP3 = "Mp3"

// LoanRecord is a snapshot of one title's loan state, as reported by the
// service at the moment of the last catalog query.
type LoanRecord struct {
	MediaID   string
	Title     string
	Authors   []string
	DueDate   *time.Time
	Status    LoanStatus
	MediaType string
}

// IsAudiobook reports whether the record is an MP3 audiobook.
func (r LoanRecord) IsAudiobook() bool {
	return r.MediaType == MediaTypeMP3
}
