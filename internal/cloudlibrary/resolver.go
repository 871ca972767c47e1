package cloudlibrary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/handiism/cloudlibrary-downloader/internal/download"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// playlistTTL is how long a refreshed playlist is shared between workers.
const playlistTTL = 30 * time.Second

// StreamResolver resolves chapters to Findaway streams.
//
// The first attempt uses the signed URL from the metadata fetch. Retries
// request a fresh playlist so expired signatures are replaced. Concurrent
// retries of one title share a single refresh.
type StreamResolver struct {
	client *Client
	now    func() time.Time

	mu        sync.Mutex
	playlists map[string]*cachedPlaylist
}

type cachedPlaylist struct {
	mu      sync.Mutex
	fetched time.Time
	urls    []string
}

// NewStreamResolver creates a StreamResolver.
func NewStreamResolver(client *Client) *StreamResolver {
	return &StreamResolver{
		client:    client,
		now:       time.Now,
		playlists: make(map[string]*cachedPlaylist),
	}
}

// Resolve implements download.Resolver.
func (r *StreamResolver) Resolve(ctx context.Context, _ model.Session, meta *model.TitleMetadata, ch model.ChapterRef, attempt int) (download.Stream, error) {
	stream := download.Stream{URL: ch.SourceLocator, Header: FindawayHeader(meta.Fulfillment)}
	if attempt == 0 {
		return stream, nil
	}

	urls, err := r.refresh(ctx, meta.Fulfillment)
	if err != nil {
		return download.Stream{}, err
	}
	if ch.Index >= len(urls) {
		return download.Stream{}, fmt.Errorf("refreshed playlist has %d chapters, need chapter %d", len(urls), ch.Index+1)
	}
	stream.URL = urls[ch.Index]
	return stream, nil
}

func (r *StreamResolver) refresh(ctx context.Context, license model.Fulfillment) ([]string, error) {
	r.mu.Lock()
	entry, ok := r.playlists[license.FulfillmentID]
	if !ok {
		entry = &cachedPlaylist{}
		r.playlists[license.FulfillmentID] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.urls != nil && r.now().Sub(entry.fetched) <= playlistTTL {
		return entry.urls, nil
	}

	playlist, err := r.client.playlist(ctx, license)
	if err != nil {
		return nil, fmt.Errorf("refresh playlist: %w", err)
	}
	entry.urls = playlist.URLs()
	entry.fetched = r.now()
	return entry.urls, nil
}
