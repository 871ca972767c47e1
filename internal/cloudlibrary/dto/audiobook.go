package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// JSONListen is the audio fulfillment route response for a borrowed title.
type JSONListen struct {
	Audiobook *JSONAudiobookLoan `json:"audiobook"`
}

// JSONAudiobookLoan holds the audio license for a loan.
type JSONAudiobookLoan struct {
	FulfillmentID FlexString     `json:"fulfillmentId"`
	AccountID     FlexString     `json:"accountId"`
	SessionKey    string         `json:"sessionKey"`
	LicenseID     FlexString     `json:"licenseId"`
	Items         []JSONLoanItem `json:"items"`
}

// JSONLoanItem is one chapter as listed on the loan.
type JSONLoanItem struct {
	Title    string          `json:"title"`
	Duration ServiceDuration `json:"duration"`
}

// Validate checks the response shape.
func (l *JSONListen) Validate() error {
	a := l.Audiobook
	if a == nil {
		return errors.New("response does not contain audiobook")
	}
	var missing []string
	if a.FulfillmentID == "" {
		missing = append(missing, "fulfillmentId")
	}
	if a.AccountID == "" {
		missing = append(missing, "accountId")
	}
	if a.SessionKey == "" {
		missing = append(missing, "sessionKey")
	}
	if a.LicenseID == "" {
		missing = append(missing, "licenseId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("audiobook is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ToFulfillment extracts the license.
func (l *JSONListen) ToFulfillment() model.Fulfillment {
	return model.Fulfillment{
		AccountID:     string(l.Audiobook.AccountID),
		FulfillmentID: string(l.Audiobook.FulfillmentID),
		LicenseID:     string(l.Audiobook.LicenseID),
		SessionKey:    l.Audiobook.SessionKey,
	}
}

// JSONFindawayMetadata is the Findaway audiobook metadata response.
type JSONFindawayMetadata struct {
	Audiobook *JSONFindawayAudiobook `json:"audiobook"`
}

// JSONFindawayAudiobook holds the Findaway description of a title.
type JSONFindawayAudiobook struct {
	Title     string     `json:"title"`
	Authors   StringList `json:"authors"`
	Narrators StringList `json:"narrators"`
	Language  string     `json:"language"`
	CoverURL  string     `json:"cover_url"`
	Publisher string     `json:"publisher"`
	Series    StringList `json:"series"`
}

// Validate checks the response shape.
func (m *JSONFindawayMetadata) Validate() error {
	if m.Audiobook == nil {
		return errors.New("response does not contain audiobook")
	}
	return nil
}

// JSONPlaylistRequest is the body of the playlist request.
type JSONPlaylistRequest struct {
	LicenseID string `json:"license_id"`
}

// JSONPlaylist is the Findaway playlist response.
type JSONPlaylist struct {
	Playlist *[]JSONPlaylistEntry `json:"playlist"`
}

// JSONPlaylistEntry is one signed chapter URL.
type JSONPlaylistEntry struct {
	URL      string          `json:"url"`
	Duration ServiceDuration `json:"duration"`
}

// Validate checks the response shape.
func (p *JSONPlaylist) Validate() error {
	if p.Playlist == nil {
		return errors.New("response does not contain playlist")
	}
	if len(*p.Playlist) == 0 {
		return errors.New("playlist is empty")
	}
	for i, entry := range *p.Playlist {
		if entry.URL == "" {
			return fmt.Errorf("playlist[%d] has no url", i)
		}
	}
	return nil
}

// URLs returns the chapter URLs in playlist order.
func (p *JSONPlaylist) URLs() []string {
	urls := make([]string, len(*p.Playlist))
	for i, entry := range *p.Playlist {
		urls[i] = entry.URL
	}
	return urls
}

// TitleParts is everything the service returns about one borrowed title.
type TitleParts struct {
	MediaID  string
	Book     *JSONBook
	Listen   *JSONListen
	Findaway *JSONFindawayMetadata
	Playlist *JSONPlaylist
}

// ToTitleMetadata merges the parts. Chapters follow playlist order and take
// their titles and durations from the loan items at the same position.
func (p *TitleParts) ToTitleMetadata() *model.TitleMetadata {
	fw := p.Findaway.Audiobook
	items := p.Listen.Audiobook.Items

	authors := []string(fw.Authors)
	if len(authors) == 0 {
		authors = []string(p.Book.Authors)
	}

	publisher := fw.Publisher
	if publisher == "" {
		publisher = p.Book.Publisher
	}

	series := make([]model.Series, 0, len(fw.Series))
	for _, s := range fw.Series {
		series = append(series, model.ParseSeries(s))
	}

	chapters := make([]model.ChapterRef, len(*p.Playlist.Playlist))
	for i, entry := range *p.Playlist.Playlist {
		ch := model.ChapterRef{
			Index:         i,
			SourceLocator: entry.URL,
			Duration:      time.Duration(entry.Duration),
		}
		if i < len(items) {
			ch.Title = items[i].Title
			if ch.Duration == 0 {
				ch.Duration = time.Duration(items[i].Duration)
			}
		}
		chapters[i] = ch
	}

	return &model.TitleMetadata{
		MediaID:      p.MediaID,
		Title:        p.Book.FullTitle(),
		Authors:      authors,
		ISBN:         p.Book.ISBN,
		Description:  p.Book.Description,
		Narrators:    []string(fw.Narrators),
		Language:     fw.Language,
		Publisher:    publisher,
		ThumbnailURL: fw.CoverURL,
		Series:       series,
		Chapters:     chapters,
		Fulfillment:  p.Listen.ToFulfillment(),
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), b)
}
