package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/handiism/cloudlibrary-downloader/internal/audio"
	"github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
	"github.com/stretchr/testify/require"
)

// chapterServer serves /c<N>.mp3 with a deterministic payload and counts
// GET requests per chapter.
type chapterServer struct {
	*httptest.Server

	mu      sync.Mutex
	gets    map[int]int
	handler func(w nethttp.ResponseWriter, r *nethttp.Request, chapter, call int) bool
}

func newChapterServer(t *testing.T) *chapterServer {
	cs := &chapterServer{gets: make(map[int]int)}
	cs.Server = httptest.NewServer(nethttp.HandlerFunc(cs.serve))
	t.Cleanup(cs.Close)
	return cs
}

func payload(chapter int) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("chapter-%d;", chapter)), 200+chapter)
}

func (cs *chapterServer) serve(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/c"), ".mp3")
	chapter, err := strconv.Atoi(name)
	if err != nil {
		nethttp.NotFound(w, r)
		return
	}

	call := 0
	if r.Method == nethttp.MethodGet {
		cs.mu.Lock()
		cs.gets[chapter]++
		call = cs.gets[chapter]
		cs.mu.Unlock()
	}

	if cs.handler != nil && cs.handler(w, r, chapter, call) {
		return
	}

	body := payload(chapter)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == nethttp.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (cs *chapterServer) getCount(chapter int) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.gets[chapter]
}

// urlResolver maps chapters to the test server and records attempts.
type urlResolver struct {
	base string

	mu       sync.Mutex
	attempts map[int][]int
}

func (r *urlResolver) Resolve(_ context.Context, _ model.Session, _ *model.TitleMetadata, ch model.ChapterRef, attempt int) (Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts == nil {
		r.attempts = make(map[int][]int)
	}
	r.attempts[ch.Index] = append(r.attempts[ch.Index], attempt)
	return Stream{URL: fmt.Sprintf("%s/c%d.mp3", r.base, ch.Index), Header: nethttp.Header{"Session-Key": {"key"}}}, nil
}

func testMeta(n int) *model.TitleMetadata {
	meta := &model.TitleMetadata{MediaID: "abc123", Title: "Some Book", Authors: []string{"Jane Doe"}}
	for i := 0; i < n; i++ {
		meta.Chapters = append(meta.Chapters, model.ChapterRef{Index: i, Title: fmt.Sprintf("Part %d", i+1)})
	}
	return meta
}

func testPipeline(fetcher Fetcher, resolver Resolver) *Pipeline {
	return NewPipeline(fetcher, resolver, Options{
		Workers:     3,
		MaxAttempts: 3,
		Backoff:     http.Backoff{Cooldown: time.Millisecond, Exponent: 1},
	}, nil)
}

func testClient() *http.Client {
	return http.NewClient(http.ClientConfig{Timeout: 5 * time.Second, UserAgent: "test", MaxAttempts: 1})
}

var testSession = model.Session{Token: "tok", Library: "mylib"}

func TestDownload_OneChapterAlwaysFails(t *testing.T) {
	srv := newChapterServer(t)
	srv.handler = func(w nethttp.ResponseWriter, r *nethttp.Request, chapter, _ int) bool {
		if chapter == 3 && r.Method == nethttp.MethodGet {
			nethttp.Error(w, "boom", nethttp.StatusInternalServerError)
			return true
		}
		return false
	}

	dir := t.TempDir()
	outcomes := testPipeline(testClient(), &urlResolver{base: srv.URL}).Download(context.Background(), testSession, testMeta(6), dir)

	require.Len(t, outcomes, 6)
	for i, o := range outcomes {
		require.Equal(t, i, o.Chapter.Index)
		if i == 3 {
			require.Equal(t, model.Failed, o.Result)
			var de *DownloadError
			require.ErrorAs(t, o.Reason, &de)
			require.Equal(t, 3, de.Attempts)
			require.Equal(t, 500, http.StatusCode(o.Reason))
			require.NoFileExists(t, o.Path)
			require.NoFileExists(t, o.Path+partSuffix)
			continue
		}
		require.Equal(t, model.Succeeded, o.Result, "chapter %d: %v", i, o.Reason)
		data, err := os.ReadFile(o.Path)
		require.NoError(t, err)
		require.Equal(t, payload(i), data)
		require.Equal(t, int64(len(data)), o.BytesWritten)
	}
	require.Equal(t, 3, srv.getCount(3))

	tally := model.Summarize(outcomes)
	require.Equal(t, 5, tally.Succeeded)
	require.Equal(t, 1, tally.Failed)
	require.False(t, tally.Complete())
}

func TestDownload_RecoversFromDroppedConnection(t *testing.T) {
	srv := newChapterServer(t)
	srv.handler = func(w nethttp.ResponseWriter, r *nethttp.Request, chapter, call int) bool {
		if chapter == 2 && r.Method == nethttp.MethodGet && call == 1 {
			body := payload(chapter)
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(nethttp.StatusOK)
			_, _ = w.Write(body[:10])
			w.(nethttp.Flusher).Flush()
			panic(nethttp.ErrAbortHandler)
		}
		return false
	}

	resolver := &urlResolver{base: srv.URL}
	outcomes := testPipeline(testClient(), resolver).Download(context.Background(), testSession, testMeta(5), t.TempDir())

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		require.Equal(t, model.Succeeded, o.Result, "chapter %d: %v", i, o.Reason)
	}
	require.Equal(t, 2, srv.getCount(2))
	require.LessOrEqual(t, srv.getCount(2), 3)
	require.Equal(t, []int{0, 1}, resolver.attempts[2])

	data, err := os.ReadFile(outcomes[2].Path)
	require.NoError(t, err)
	require.Equal(t, payload(2), data)
}

func TestDownload_RerunSkipsCompleteChapters(t *testing.T) {
	srv := newChapterServer(t)
	dir := t.TempDir()
	meta := testMeta(4)
	resolver := &urlResolver{base: srv.URL}

	first := testPipeline(testClient(), resolver).Download(context.Background(), testSession, meta, dir)
	snapshot := make(map[string][]byte)
	for _, o := range first {
		require.Equal(t, model.Succeeded, o.Result)
		data, err := os.ReadFile(o.Path)
		require.NoError(t, err)
		snapshot[o.Path] = data
	}

	// Chapter 1 missing, chapter 2 truncated, chapter 3 left as a stale part file.
	require.NoError(t, os.Remove(first[1].Path))
	require.NoError(t, os.WriteFile(first[2].Path, snapshot[first[2].Path][:20], 0644))
	require.NoError(t, os.Rename(first[3].Path, first[3].Path+partSuffix))

	second := testPipeline(testClient(), resolver).Download(context.Background(), testSession, meta, dir)

	require.True(t, second[0].Skipped)
	require.Equal(t, 1, srv.getCount(0))
	for i := 1; i < 4; i++ {
		require.False(t, second[i].Skipped, "chapter %d", i)
		require.Equal(t, 2, srv.getCount(i), "chapter %d", i)
	}

	for path, want := range snapshot {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestDownload_CancelledBeforeStart(t *testing.T) {
	srv := newChapterServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := testPipeline(testClient(), &urlResolver{base: srv.URL}).Download(ctx, testSession, testMeta(3), t.TempDir())

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		require.Equal(t, model.Failed, o.Result)
		require.ErrorIs(t, o.Reason, context.Canceled)
	}
	for i := 0; i < 3; i++ {
		require.Zero(t, srv.getCount(i))
	}
}

func TestDownload_CancelledMidStream(t *testing.T) {
	srv := newChapterServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.handler = func(w nethttp.ResponseWriter, r *nethttp.Request, chapter, call int) bool {
		if chapter != 0 || r.Method != nethttp.MethodGet || call != 1 {
			return false
		}
		body := payload(chapter)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write(body[:len(body)/2])
		w.(nethttp.Flusher).Flush()
		cancel()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		return true
	}

	dir := t.TempDir()
	meta := testMeta(3)
	resolver := &urlResolver{base: srv.URL}
	p := NewPipeline(testClient(), resolver, Options{
		Workers:     1,
		MaxAttempts: 3,
		Backoff:     http.Backoff{Cooldown: time.Millisecond, Exponent: 1},
	}, nil)

	outcomes := p.Download(ctx, testSession, meta, dir)

	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		require.Equal(t, model.Failed, o.Result, "chapter %d", i)
		require.ErrorIs(t, o.Reason, context.Canceled, "chapter %d", i)
		require.NoFileExists(t, o.Path)
		require.NoFileExists(t, o.Path+partSuffix)
	}
	require.Equal(t, 1, srv.getCount(0))
	require.Zero(t, srv.getCount(1))
	require.Zero(t, srv.getCount(2))
	require.Equal(t, []int{0}, resolver.attempts[0])
	require.Empty(t, resolver.attempts[1])
	require.Empty(t, resolver.attempts[2])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	rerun := p.Download(context.Background(), testSession, meta, dir)
	for i, o := range rerun {
		require.Equal(t, model.Succeeded, o.Result, "chapter %d: %v", i, o.Reason)
		data, err := os.ReadFile(o.Path)
		require.NoError(t, err)
		require.Equal(t, payload(i), data)
	}
	require.Equal(t, 2, srv.getCount(0))
}

func TestDownload_RerunSkipsTaggedChapters(t *testing.T) {
	srv := newChapterServer(t)
	dir := t.TempDir()
	meta := testMeta(2)
	meta.Description = "A long description that ends up in every chapter tag."
	cover := bytes.Repeat([]byte{0xFF}, 4096)

	run := func() []model.DownloadOutcome {
		p := testPipeline(testClient(), &urlResolver{base: srv.URL})
		p.SetTagger(audio.NewTagger(audio.DefaultTagConfig()).WithCover(cover))
		return p.Download(context.Background(), testSession, meta, dir)
	}

	first := run()
	for i, o := range first {
		require.Equal(t, model.Succeeded, o.Result, "chapter %d: %v", i, o.Reason)
		info, err := os.Stat(o.Path)
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(len(payload(i))+len(cover)), "chapter %d was not tagged", i)
	}

	second := run()
	for i, o := range second {
		require.Equal(t, model.Succeeded, o.Result, "chapter %d", i)
		require.True(t, o.Skipped, "chapter %d", i)
		require.Equal(t, 1, srv.getCount(i), "chapter %d", i)
	}
}

func TestPayloadSize(t *testing.T) {
	srv := newChapterServer(t)
	dir := t.TempDir()

	p := testPipeline(testClient(), &urlResolver{base: srv.URL})
	p.SetTagger(audio.NewTagger(audio.DefaultTagConfig()).WithCover([]byte("cover")))
	outcomes := p.Download(context.Background(), testSession, testMeta(1), dir)
	require.Equal(t, model.Succeeded, outcomes[0].Result)

	tagged, err := os.Stat(outcomes[0].Path)
	require.NoError(t, err)
	got, err := payloadSize(outcomes[0].Path, tagged.Size())
	require.NoError(t, err)
	require.Equal(t, int64(len(payload(0))), got)

	plain := filepath.Join(dir, "plain.mp3")
	require.NoError(t, os.WriteFile(plain, payload(1), 0644))
	got, err = payloadSize(plain, int64(len(payload(1))))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload(1))), got)
}

func TestDownload_FileNamesFollowChapterOrder(t *testing.T) {
	srv := newChapterServer(t)
	dir := t.TempDir()

	outcomes := testPipeline(testClient(), &urlResolver{base: srv.URL}).Download(context.Background(), testSession, testMeta(3), dir)

	var names []string
	for _, o := range outcomes {
		names = append(names, filepath.Base(o.Path))
	}
	require.Equal(t, []string{"01 - Part 1.mp3", "02 - Part 2.mp3", "03 - Part 3.mp3"}, names)
}

// fakeFetcher writes a fixed body and reports a fixed Content-Length.
type fakeFetcher struct {
	body   []byte
	length int64
	calls  int
}

func (f *fakeFetcher) GetFileSize(context.Context, string, nethttp.Header) (int64, error) {
	return f.length, nil
}

func (f *fakeFetcher) DownloadFile(_ context.Context, _ string, _ nethttp.Header, destPath string, _ func(int64, int64)) (int64, int64, error) {
	f.calls++
	if err := os.WriteFile(destPath, f.body, 0644); err != nil {
		return 0, -1, err
	}
	return int64(len(f.body)), f.length, nil
}

func TestDownload_Verification(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		check   func(t *testing.T, err error)
	}{
		{
			name:    "short payload",
			fetcher: &fakeFetcher{body: []byte("0123456789"), length: 20},
			check: func(t *testing.T, err error) {
				var sm *SizeMismatchError
				require.ErrorAs(t, err, &sm)
				require.Equal(t, int64(10), sm.Written)
				require.Equal(t, int64(20), sm.Expected)
			},
		},
		{
			name:    "empty payload",
			fetcher: &fakeFetcher{body: nil, length: -1},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, errEmptyPayload)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := testPipeline(tt.fetcher, &urlResolver{base: "http://example.invalid"}).Download(context.Background(), testSession, testMeta(1), t.TempDir())

			require.Equal(t, model.Failed, outcomes[0].Result)
			require.Equal(t, 3, tt.fetcher.calls)
			require.NoFileExists(t, outcomes[0].Path)
			require.NoFileExists(t, outcomes[0].Path+partSuffix)
			tt.check(t, outcomes[0].Reason)
		})
	}
}

type recordingTagger struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingTagger) TagChapter(path string, _ *model.TitleMetadata, _ model.ChapterRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return r.err
}

func TestDownload_TagErrorsAreWarnings(t *testing.T) {
	srv := newChapterServer(t)
	tagger := &recordingTagger{err: errors.New("bad frame")}

	p := testPipeline(testClient(), &urlResolver{base: srv.URL})
	p.SetTagger(tagger)
	outcomes := p.Download(context.Background(), testSession, testMeta(2), t.TempDir())

	for _, o := range outcomes {
		require.Equal(t, model.Succeeded, o.Result)
	}
	require.ElementsMatch(t, []string{"01 - Part 1.mp3", "02 - Part 2.mp3"}, tagger.paths)

	received, done, total := p.Progress()
	require.Equal(t, int64(len(payload(0))+len(payload(1))), received)
	require.Equal(t, int32(2), done)
	require.Equal(t, int32(2), total)
}
