package cloudlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/handiism/cloudlibrary-downloader/internal/cloudlibrary/dto"
	clhttp "github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// Catalog reads loan and title data. Every call takes the session
// explicitly, retries transient failures, and never caches results.
type Catalog struct {
	client *Client
}

// NewCatalog creates a Catalog.
func NewCatalog(client *Client) *Catalog {
	return &Catalog{client: client}
}

// ListLoans returns the titles currently on loan, in the order the service
// reports them.
func (c *Catalog) ListLoans(ctx context.Context, sess model.Session) ([]model.LoanRecord, error) {
	req := sessionRequest(http.MethodPost, c.client.myBooksURL(sess.Library, true), sess, clhttp.Idempotent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Body = formBody(map[string]string{
		"format": "",
		"sort":   "BorrowedDateDescending",
	})

	var items dto.JSONPatronItems
	if _, err := c.client.doJSON(ctx, req, &items); err != nil {
		return nil, catalogError(ctx, err, sess, "")
	}
	if err := items.Validate(); err != nil {
		return nil, &CatalogError{Kind: CatalogMalformed, Err: err}
	}
	return items.ToLoanRecords(), nil
}

// Status observes the loan state of one title. A title on the loan list is
// ON_LOAN; otherwise the detail page decides between AVAILABLE_TO_BORROW
// and NOT_HELD.
func (c *Catalog) Status(ctx context.Context, sess model.Session, mediaID string) (model.LoanRecord, error) {
	loans, err := c.ListLoans(ctx, sess)
	if err != nil {
		return model.LoanRecord{}, err
	}
	if rec, ok := findLoan(loans, mediaID); ok {
		return rec, nil
	}

	book, err := c.detail(ctx, sess, mediaID)
	if err != nil {
		return model.LoanRecord{}, err
	}
	status := model.StatusNotHeld
	if book.CanLoan() {
		status = model.StatusAvailableToBorrow
	}
	return book.ToLoanRecord(mediaID, status), nil
}

// FetchTitleMetadata returns the full description of a title the account
// can access, with chapters in service order.
//
// It fails with NOT_FOUND, and no partial data, when the title does not
// exist or the account holds no license for it, and with UNSUPPORTED_MEDIA
// when the title is not an MP3 audiobook.
func (c *Catalog) FetchTitleMetadata(ctx context.Context, sess model.Session, mediaID string) (*model.TitleMetadata, error) {
	book, err := c.detail(ctx, sess, mediaID)
	if err != nil {
		return nil, err
	}
	if book.MediaType != "" && book.MediaType != model.MediaTypeMP3 {
		return nil, &CatalogError{
			Kind:    CatalogUnsupportedMedia,
			MediaID: mediaID,
			Err:     fmt.Errorf("media type %q is not an audiobook", book.MediaType),
		}
	}

	listen, err := c.listen(ctx, sess, mediaID)
	if err != nil {
		return nil, err
	}
	license := listen.ToFulfillment()

	var findaway dto.JSONFindawayMetadata
	if _, err := c.client.doJSON(ctx, findawayRequest(http.MethodGet, c.client.findawayMetadataURL(license), license, nil), &findaway); err != nil {
		return nil, catalogError(ctx, err, sess, mediaID)
	}
	if err := findaway.Validate(); err != nil {
		return nil, &CatalogError{Kind: CatalogMalformed, MediaID: mediaID, Err: err}
	}

	playlist, err := c.client.playlist(ctx, license)
	if err != nil {
		return nil, catalogError(ctx, err, sess, mediaID)
	}

	parts := dto.TitleParts{
		MediaID:  mediaID,
		Book:     book,
		Listen:   listen,
		Findaway: &findaway,
		Playlist: playlist,
	}
	return parts.ToTitleMetadata(), nil
}

func (c *Catalog) detail(ctx context.Context, sess model.Session, mediaID string) (*dto.JSONBook, error) {
	var detail dto.JSONDetail
	req := sessionRequest(http.MethodGet, c.client.detailURL(sess.Library, mediaID), sess, clhttp.Idempotent)
	if _, err := c.client.doJSON(ctx, req, &detail); err != nil {
		return nil, catalogError(ctx, err, sess, mediaID)
	}
	if detail.Book == nil {
		return nil, &CatalogError{Kind: CatalogNotFound, MediaID: mediaID, Err: errors.New("no such title")}
	}
	return detail.Book, nil
}

// listen fetches the audio license. The audio site answers titles the
// account does not hold with a 404 or a redirect back to the catalog.
func (c *Catalog) listen(ctx context.Context, sess model.Session, mediaID string) (*dto.JSONListen, error) {
	var listen dto.JSONListen
	req := sessionRequest(http.MethodGet, c.client.listenURL(mediaID), sess, clhttp.Idempotent)
	if _, err := c.client.doJSON(ctx, req, &listen); err != nil {
		if errors.Is(err, errRedirected) {
			return nil, &CatalogError{Kind: CatalogNotFound, MediaID: mediaID, Err: errors.New("title is not on loan")}
		}
		return nil, catalogError(ctx, err, sess, mediaID)
	}
	if listen.Audiobook == nil {
		return nil, &CatalogError{Kind: CatalogNotFound, MediaID: mediaID, Err: errors.New("title is not on loan")}
	}
	if err := listen.Validate(); err != nil {
		return nil, &CatalogError{Kind: CatalogMalformed, MediaID: mediaID, Err: err}
	}
	return &listen, nil
}

// playlist requests signed chapter URLs for a license. Each call returns
// fresh signatures.
func (c *Client) playlist(ctx context.Context, license model.Fulfillment) (*dto.JSONPlaylist, error) {
	body, err := json.Marshal(dto.JSONPlaylistRequest{LicenseID: license.LicenseID})
	if err != nil {
		return nil, err
	}

	var playlist dto.JSONPlaylist
	if _, err := c.doJSON(ctx, findawayRequest(http.MethodPost, c.playlistURL(license), license, body), &playlist); err != nil {
		return nil, err
	}
	if err := playlist.Validate(); err != nil {
		return nil, &malformedError{err: err}
	}
	return &playlist, nil
}

func findLoan(loans []model.LoanRecord, mediaID string) (model.LoanRecord, bool) {
	for _, rec := range loans {
		if rec.MediaID == mediaID {
			return rec, true
		}
	}
	return model.LoanRecord{}, false
}
