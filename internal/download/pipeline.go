package download

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/handiism/cloudlibrary-downloader/internal/http"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
	"github.com/handiism/cloudlibrary-downloader/internal/progress"
	"golang.org/x/sync/errgroup"
)

// partSuffix marks a chapter file that has not been verified yet.
const partSuffix = ".part"

// Stream is a retrievable chapter payload.
type Stream struct {
	URL    string
	Header nethttp.Header
}

// Resolver turns a chapter into a stream. It is called once per attempt,
// so an implementation can refresh expired permissions on retries.
type Resolver interface {
	Resolve(ctx context.Context, sess model.Session, meta *model.TitleMetadata, ch model.ChapterRef, attempt int) (Stream, error)
}

// Fetcher performs the network side of a chapter download. *http.Client
// satisfies it.
type Fetcher interface {
	GetFileSize(ctx context.Context, url string, header nethttp.Header) (int64, error)
	DownloadFile(ctx context.Context, url string, header nethttp.Header, destPath string, onProgress func(written, total int64)) (int64, int64, error)
}

// Tagger post-processes a verified chapter file.
type Tagger interface {
	TagChapter(path string, meta *model.TitleMetadata, ch model.ChapterRef) error
}

// DownloadError is the reason recorded for a chapter that failed.
type DownloadError struct {
	Chapter  int
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("chapter %d failed after %d attempt(s): %v", e.Chapter+1, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// errEmptyPayload is returned when a stream completes without data.
var errEmptyPayload = errors.New("empty payload")

// SizeMismatchError is returned when a stream ends before its announced length.
type SizeMismatchError struct {
	Written  int64
	Expected int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: wrote %d of %d bytes", e.Written, e.Expected)
}

// Options configures a Pipeline.
type Options struct {
	// Workers is the number of chapters downloaded in parallel.
	Workers int

	// MaxAttempts is the total number of tries per chapter.
	MaxAttempts int

	// Backoff is the wait between tries.
	Backoff http.Backoff

	// ChapterFileNameFormat names chapter files; see model.PathConfig.
	ChapterFileNameFormat string
}

// Pipeline downloads the chapters of one title.
//
// Chapters are fetched by a bounded worker pool. Each chapter is streamed
// to a ".part" file, verified, and only then renamed to its final name, so
// a file under the final name is always complete. A chapter that keeps
// failing is recorded as FAILED without affecting the others.
//
// Example:
//
//	pipeline := download.NewPipeline(client, resolver, opts, onProgress)
//	outcomes := pipeline.Download(ctx, sess, meta, layout.Dir)
//	tally := model.Summarize(outcomes)
type Pipeline struct {
	fetcher  Fetcher
	resolver Resolver
	tagger   Tagger
	opts     Options

	totalChapters int32
	doneChapters  int32
	receivedBytes int64

	onProgress progress.Func
}

// NewPipeline creates a Pipeline.
func NewPipeline(fetcher Fetcher, resolver Resolver, opts Options, onProgress progress.Func) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Pipeline{
		fetcher:    fetcher,
		resolver:   resolver,
		opts:       opts,
		onProgress: onProgress,
	}
}

// SetTagger enables post-processing of MP3 chapters. A nil tagger disables it.
func (p *Pipeline) SetTagger(t Tagger) {
	p.tagger = t
}

// Progress returns the bytes received and chapters finished in the current
// download. It is safe to call while Download runs.
func (p *Pipeline) Progress() (received int64, done, total int32) {
	return atomic.LoadInt64(&p.receivedBytes), atomic.LoadInt32(&p.doneChapters), atomic.LoadInt32(&p.totalChapters)
}

// Download fetches every chapter of meta into destination and returns one
// outcome per chapter, in chapter order. It never returns early: failures
// are recorded per chapter. After ctx is cancelled no new chapter starts
// and the remaining ones are recorded as failed with the context error.
func (p *Pipeline) Download(ctx context.Context, sess model.Session, meta *model.TitleMetadata, destination string) []model.DownloadOutcome {
	outcomes := make([]model.DownloadOutcome, len(meta.Chapters))
	layout := model.NewChapterLayout(destination, meta, p.opts.ChapterFileNameFormat)

	atomic.StoreInt32(&p.totalChapters, int32(len(meta.Chapters)))
	atomic.StoreInt32(&p.doneChapters, 0)
	atomic.StoreInt64(&p.receivedBytes, 0)

	if err := os.MkdirAll(destination, 0755); err != nil {
		for i, ch := range meta.Chapters {
			outcomes[i] = failedOutcome(ch, layout.ChapterPath(ch), 0, err)
		}
		return outcomes
	}

	// A plain group: one chapter's failure must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)

	for i, ch := range meta.Chapters {
		i, ch := i, ch
		target := layout.ChapterPath(ch)
		if ctx.Err() != nil {
			outcomes[i] = failedOutcome(ch, target, 0, ctx.Err())
			continue
		}
		g.Go(func() error {
			outcomes[i] = p.downloadChapter(ctx, sess, meta, ch, target)
			atomic.AddInt32(&p.doneChapters, 1)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *Pipeline) downloadChapter(ctx context.Context, sess model.Session, meta *model.TitleMetadata, ch model.ChapterRef, target string) model.DownloadOutcome {
	name := filepath.Base(target)
	part := target + partSuffix

	var (
		lastErr  error
		attempts int
		checked  bool
	)

	for tries := 0; tries < p.opts.MaxAttempts; tries++ {
		if tries > 0 {
			p.onProgress.Emit(progress.LevelWarning, "Retry %d/%d for %s: %v", tries+1, p.opts.MaxAttempts, name, lastErr)
			if err := p.opts.Backoff.Wait(ctx, tries-1, http.RetryAfter(lastErr)); err != nil {
				lastErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++

		stream, err := p.resolver.Resolve(ctx, sess, meta, ch, tries)
		if err != nil {
			lastErr = fmt.Errorf("resolve: %w", err)
			continue
		}

		if !checked {
			checked = true
			if p.complete(ctx, target, stream) {
				p.onProgress.Emit(progress.LevelVerbose, "Skipping existing: %s", name)
				return model.DownloadOutcome{Chapter: ch, Result: model.Succeeded, Path: target, Skipped: true}
			}
		}

		written, err := p.fetch(ctx, stream, part)
		if err != nil {
			lastErr = err
			continue
		}
		if err := os.Rename(part, target); err != nil {
			lastErr = err
			continue
		}

		p.tag(target, meta, ch)
		p.onProgress.Emit(progress.LevelVerbose, "Downloaded: %s", name)
		return model.DownloadOutcome{Chapter: ch, Result: model.Succeeded, BytesWritten: written, Path: target}
	}

	_ = os.Remove(part)
	p.onProgress.Emit(progress.LevelError, "Failed: %s: %v", name, lastErr)
	return failedOutcome(ch, target, attempts, lastErr)
}

// fetch streams one attempt into part and verifies it.
func (p *Pipeline) fetch(ctx context.Context, stream Stream, part string) (int64, error) {
	var reported int64
	written, length, err := p.fetcher.DownloadFile(ctx, stream.URL, stream.Header, part, func(w, _ int64) {
		atomic.AddInt64(&p.receivedBytes, w-reported)
		reported = w
	})

	if err == nil {
		switch {
		case written == 0:
			err = errEmptyPayload
		case length >= 0 && written != length:
			err = &SizeMismatchError{Written: written, Expected: length}
		}
	}
	if err != nil {
		atomic.AddInt64(&p.receivedBytes, -reported)
		return 0, err
	}
	return written, nil
}

// complete reports whether target already holds the chapter. Only verified
// payloads are ever renamed to the target name, so a file whose audio
// payload has exactly the stream length (or a stream of unknown length) is
// complete. A tag added after verification is not part of the payload.
func (p *Pipeline) complete(ctx context.Context, target string, stream Stream) bool {
	info, err := os.Stat(target)
	if err != nil || info.Size() == 0 {
		return false
	}

	expected, err := p.fetcher.GetFileSize(ctx, stream.URL, stream.Header)
	if err != nil || expected == 0 {
		return false
	}
	if expected < 0 || info.Size() == expected {
		return true
	}
	if !isMP3(target) {
		return false
	}

	payload, err := payloadSize(target, info.Size())
	if err != nil {
		return false
	}
	return payload == expected
}

func (p *Pipeline) tag(target string, meta *model.TitleMetadata, ch model.ChapterRef) {
	if p.tagger == nil || !isMP3(target) {
		return
	}
	if err := p.tagger.TagChapter(target, meta, ch); err != nil {
		p.onProgress.Emit(progress.LevelWarning, "Error tagging %s: %v", filepath.Base(target), err)
	}
}

func failedOutcome(ch model.ChapterRef, target string, attempts int, err error) model.DownloadOutcome {
	return model.DownloadOutcome{
		Chapter: ch,
		Result:  model.Failed,
		Reason:  &DownloadError{Chapter: ch.Index, Attempts: attempts, Err: err},
		Path:    target,
	}
}
