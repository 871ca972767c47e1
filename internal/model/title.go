package model

import (
	"regexp"
	"time"
)

// TitleMetadata is the full bibliographic and media description of one
// audiobook, fetched for a single request and owned by its caller.
type TitleMetadata struct {
	MediaID      string
	Title        string
	Authors      []string
	ISBN         string
	Description  string
	Narrators    []string
	Language     string
	Publisher    string
	ThumbnailURL string
	Series       []Series

	// Chapters are in service order; Chapters[i].Index == i.
	Chapters []ChapterRef

	// Fulfillment is the audio license the chapter streams are served under.
	Fulfillment Fulfillment
}

// FirstAuthor returns the first listed author, or "" when there is none.
func (m *TitleMetadata) FirstAuthor() string {
	if len(m.Authors) == 0 {
		return ""
	}
	return m.Authors[0]
}

// HasThumbnail reports whether a cover image URL is known.
func (m *TitleMetadata) HasThumbnail() bool {
	return m.ThumbnailURL != ""
}

// Series is one series membership of a title.
type Series struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

var seriesNumber = regexp.MustCompile(` #(\d+)$`)

// ParseSeries splits a "Name #3" string into name and number. Strings
// without a trailing number keep the whole string as the name.
func ParseSeries(s string) Series {
	loc := seriesNumber.FindStringSubmatchIndex(s)
	if loc == nil {
		return Series{Name: s}
	}
	return Series{Name: s[:loc[0]], Number: s[loc[2]:loc[3]]}
}

// Fulfillment identifies the audio license for a borrowed title.
type Fulfillment struct {
	AccountID     string
	FulfillmentID string
	LicenseID     string
	SessionKey    string
}

// ChapterRef addresses one audio segment of a title.
type ChapterRef struct {
	// Index is zero-based and authoritative for ordering and naming.
	Index int

	// Title is the chapter title, if the service provides one.
	Title string

	// SourceLocator is the URL the chapter audio is served from.
	SourceLocator string

	// Duration is zero when unknown.
	Duration time.Duration
}
