package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/handiism/cloudlibrary-downloader/internal/audio"
	"github.com/handiism/cloudlibrary-downloader/internal/cloudlibrary"
	"github.com/handiism/cloudlibrary-downloader/internal/config"
	"github.com/handiism/cloudlibrary-downloader/internal/download"
	"github.com/handiism/cloudlibrary-downloader/internal/http"
	ioutils "github.com/handiism/cloudlibrary-downloader/internal/io"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
	"github.com/handiism/cloudlibrary-downloader/internal/progress"
)

// ErrNoTitles is returned when there is nothing to download: no title was
// requested and the account holds no MP3 audiobooks.
var ErrNoTitles = errors.New("no audiobooks on loan")

// Options selects what one invocation does.
type Options struct {
	// Library overrides Settings.Library when set.
	Library     string
	Credentials cloudlibrary.Credentials

	// MediaID is the title to download. Empty means every MP3 loan.
	MediaID string

	DumpJSON bool
	Release  bool

	// List prints the current loans and stops.
	List bool
}

// TitleReport is the result for one title.
type TitleReport struct {
	MediaID  string
	Title    string
	Dir      string
	Outcomes []model.DownloadOutcome
	Tally    model.Tally

	Borrowed *cloudlibrary.Transition
	Released *cloudlibrary.Transition

	// BorrowErr is set when the title was not on loan and borrowing it
	// failed. The download is still attempted.
	BorrowErr error
	// Err is set when the title could not be downloaded at all.
	Err error
	// ReleaseErr is set when a requested return did not take effect.
	ReleaseErr error
}

// Report summarizes a run.
type Report struct {
	Session model.Session
	Loans   []model.LoanRecord
	Titles  []TitleReport
}

// Transitions returns every loan state change made during the run.
func (r *Report) Transitions() []cloudlibrary.Transition {
	var out []cloudlibrary.Transition
	for _, t := range r.Titles {
		if t.Borrowed != nil {
			out = append(out, *t.Borrowed)
		}
		if t.Released != nil {
			out = append(out, *t.Released)
		}
	}
	return out
}

// App runs the authenticate, borrow, download, dump and return sequence.
type App struct {
	settings     *config.Settings
	httpClient   *http.Client
	auth         *cloudlibrary.Authenticator
	catalog      *cloudlibrary.Catalog
	lender       *cloudlibrary.Lender
	pipeline     *download.Pipeline
	tagConfig    *audio.TagConfig
	playlist     *audio.PlaylistCreator
	imageService *ioutils.ImageService

	onProgress progress.Func
}

// New creates an App. Settings are validated here so that a bad
// configuration is reported before any network call.
func New(settings *config.Settings, onProgress progress.Func) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, &cloudlibrary.ConfigurationError{Reason: err.Error()}
	}

	httpClient := http.NewClient(settings.ToClientConfig())
	client := cloudlibrary.NewClient(httpClient, cloudlibrary.Endpoints{
		Ebook:    settings.EbookBaseURL,
		Audio:    settings.AudioBaseURL,
		Findaway: settings.FindawayBaseURL,
	})
	catalog := cloudlibrary.NewCatalog(client)

	pipeline := download.NewPipeline(httpClient, cloudlibrary.NewStreamResolver(client), download.Options{
		Workers:               settings.MaxConcurrentChaptersDownload,
		MaxAttempts:           settings.DownloadMaxRetries,
		Backoff:               settings.Backoff(),
		ChapterFileNameFormat: settings.ChapterFileNameFormat,
	}, onProgress)

	tagConfig := audio.DefaultTagConfig()
	tagConfig.ModifyTags = settings.ModifyTags

	return &App{
		settings:     settings,
		httpClient:   httpClient,
		auth:         cloudlibrary.NewAuthenticator(client),
		catalog:      catalog,
		lender:       cloudlibrary.NewLender(client, catalog),
		pipeline:     pipeline,
		tagConfig:    tagConfig,
		playlist:     audio.NewPlaylistCreator(audio.ParsePlaylistFormat(settings.PlaylistFormat), settings.M3UExtended),
		imageService: ioutils.NewImageService(),
		onProgress:   onProgress,
	}, nil
}

// Progress reports the state of the chapter download in progress.
func (a *App) Progress() (received int64, done, total int32) {
	return a.pipeline.Progress()
}

// Run executes one invocation. The returned error is set when the run was
// aborted; per-title failures are recorded in the report. Use ExitCode to
// turn both into a process exit status.
func (a *App) Run(ctx context.Context, opts Options) (*Report, error) {
	library := opts.Library
	if library == "" {
		library = a.settings.Library
	}
	report := &Report{}

	sess, err := a.auth.Establish(ctx, library, opts.Credentials)
	if err != nil {
		return report, err
	}
	report.Session = sess
	if sess.Adopted {
		a.onProgress.Emit(progress.LevelVerbose, "Using session token for %s", sess.Library)
	} else {
		a.onProgress.Emit(progress.LevelSuccess, "Logged in to %s", sess.Library)
	}

	loans, err := a.catalog.ListLoans(ctx, sess)
	if err != nil {
		return report, err
	}
	report.Loans = loans
	a.onProgress.Emit(progress.LevelVerbose, "%d title(s) on loan", len(loans))

	if opts.List {
		for _, loan := range loans {
			a.onProgress.Emit(progress.LevelInfo, "%s", describeLoan(loan))
		}
		return report, nil
	}

	if opts.MediaID != "" {
		tr := a.runTitle(ctx, sess, loans, opts.MediaID, opts)
		report.Titles = append(report.Titles, tr)
		if tr.Err != nil {
			return report, tr.Err
		}
		return report, ctx.Err()
	}

	var targets []model.LoanRecord
	for _, loan := range loans {
		if loan.IsAudiobook() {
			targets = append(targets, loan)
		} else {
			a.onProgress.Emit(progress.LevelVerbose, "Skipping %s (%s): not an MP3 audiobook", loan.MediaID, loan.MediaType)
		}
	}
	if len(targets) == 0 {
		return report, ErrNoTitles
	}

	for _, loan := range targets {
		if ctx.Err() != nil {
			break
		}
		tr := a.runTitle(ctx, sess, loans, loan.MediaID, opts)
		report.Titles = append(report.Titles, tr)

		// A rejected session fails every remaining title the same way.
		if errors.Is(tr.Err, cloudlibrary.ErrUnauthorized) {
			return report, tr.Err
		}
	}
	return report, ctx.Err()
}

func (a *App) runTitle(ctx context.Context, sess model.Session, loans []model.LoanRecord, mediaID string, opts Options) TitleReport {
	tr := TitleReport{MediaID: mediaID}

	if !held(loans, mediaID) {
		if err := a.borrow(ctx, sess, mediaID, &tr); err != nil {
			tr.Err = err
			return tr
		}
	}

	meta, err := a.catalog.FetchTitleMetadata(ctx, sess, mediaID)
	if err != nil {
		a.onProgress.Emit(progress.LevelError, "Cannot fetch %s: %v", mediaID, err)
		if tr.BorrowErr != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w (borrow failed: %v)", err, tr.BorrowErr)
		}
		tr.Err = err
		return tr
	}
	tr.Title = meta.Title
	a.onProgress.Emit(progress.LevelInfo, "Found %s - %s (%d chapters)", meta.FirstAuthor(), meta.Title, len(meta.Chapters))

	layout := model.NewLayout(meta, a.settings.ToPathConfig())
	tr.Dir = layout.Dir
	if err := ioutils.EnsureDir(layout.Dir); err != nil {
		tr.Err = fmt.Errorf("create %s: %w", layout.Dir, err)
		return tr
	}

	cover := a.fetchCover(ctx, meta, layout)
	if tagger := a.tagger(cover); tagger != nil {
		a.pipeline.SetTagger(tagger)
	} else {
		a.pipeline.SetTagger(nil)
	}

	tr.Outcomes = a.pipeline.Download(ctx, sess, meta, layout.Dir)
	tr.Tally = model.Summarize(tr.Outcomes)

	if opts.DumpJSON {
		path := layout.MetadataPath()
		if err := ioutils.WriteJSON(path, NewMetadataDocument(meta, tr.Outcomes)); err != nil {
			a.onProgress.Emit(progress.LevelWarning, "Error writing metadata: %v", err)
		} else {
			a.onProgress.Emit(progress.LevelVerbose, "Wrote %s", path)
		}
	}

	if a.settings.CreatePlaylist && tr.Tally.Succeeded > 0 {
		content := a.playlist.CreatePlaylist(meta, tr.Outcomes)
		if err := ioutils.WriteFile(layout.PlaylistPath(a.playlist.Format().Extension()), []byte(content)); err != nil {
			a.onProgress.Emit(progress.LevelWarning, "Error creating playlist: %v", err)
		} else {
			a.onProgress.Emit(progress.LevelSuccess, "Created playlist for %s", meta.Title)
		}
	}

	if tr.Tally.Complete() {
		a.onProgress.Emit(progress.LevelSuccess, "Downloaded %s: %d chapter(s), %d already present", meta.Title, tr.Tally.Succeeded, tr.Tally.Skipped)
	} else {
		a.onProgress.Emit(progress.LevelWarning, "Finished %s, %d of %d chapter(s) failed", meta.Title, tr.Tally.Failed, len(tr.Outcomes))
		for _, o := range tr.Outcomes {
			if o.Result == model.Failed {
				a.onProgress.Emit(progress.LevelError, "%v", o.Reason)
			}
		}
	}

	if opts.Release {
		a.release(ctx, sess, mediaID, &tr)
	}
	return tr
}

// borrow puts mediaID on loan. It returns an error when the title stays
// inaccessible; a borrow whose outcome is unknown is reported and the
// download is attempted anyway.
func (a *App) borrow(ctx context.Context, sess model.Session, mediaID string, tr *TitleReport) error {
	a.onProgress.Emit(progress.LevelInfo, "Borrowing %s", mediaID)

	t, err := a.lender.Borrow(ctx, sess, mediaID)
	if err == nil || cloudlibrary.IsNoOp(err) {
		tr.Borrowed = &t
		a.onProgress.Emit(progress.LevelSuccess, "Borrowed %s", mediaID)
		return nil
	}

	var se *cloudlibrary.StateError
	if !errors.As(err, &se) {
		a.onProgress.Emit(progress.LevelError, "Cannot borrow %s: %v", mediaID, err)
		return err
	}

	// The title may still be accessible; the metadata fetch decides.
	tr.BorrowErr = err
	a.onProgress.Emit(progress.LevelWarning, "Cannot borrow %s: %v. Trying anyway", mediaID, err)
	return nil
}

func (a *App) release(ctx context.Context, sess model.Session, mediaID string, tr *TitleReport) {
	if !tr.Tally.Complete() {
		a.onProgress.Emit(progress.LevelWarning, "Keeping %s on loan: %d chapter(s) still missing", mediaID, tr.Tally.Failed)
		return
	}
	if ctx.Err() != nil {
		return
	}

	t, err := a.lender.Release(ctx, sess, mediaID)
	switch {
	case err == nil:
		tr.Released = &t
		a.onProgress.Emit(progress.LevelSuccess, "Returned %s", mediaID)
	case cloudlibrary.IsNoOp(err):
		a.onProgress.Emit(progress.LevelVerbose, "%s was not on loan", mediaID)
	default:
		tr.ReleaseErr = err
		a.onProgress.Emit(progress.LevelError, "Cannot return %s: %v", mediaID, err)
	}
}

// fetchCover downloads the thumbnail once. Failures only cost the cover.
func (a *App) fetchCover(ctx context.Context, meta *model.TitleMetadata, layout *model.Layout) []byte {
	inTags := a.settings.SaveCoverArtInTags
	if !meta.HasThumbnail() || (!inTags && !a.settings.SaveCoverArtInFolder) {
		return nil
	}

	data, err := a.httpClient.Get(ctx, meta.ThumbnailURL)
	if err == nil {
		data, err = a.imageService.PrepareCover(ctx, data, a.settings.CoverArtMaxSize)
	}
	if err != nil {
		a.onProgress.Emit(progress.LevelWarning, "Error downloading cover for %s: %v", meta.Title, err)
		return nil
	}

	if a.settings.SaveCoverArtInFolder {
		if err := ioutils.WriteFile(layout.CoverPath(), data); err != nil {
			a.onProgress.Emit(progress.LevelWarning, "Error saving cover: %v", err)
		}
	}
	a.onProgress.Emit(progress.LevelVerbose, "Downloaded cover for %s", meta.Title)

	if !inTags {
		return nil
	}
	return data
}

// tagger returns the chapter tagger for this title, or nil when there is
// nothing to write.
func (a *App) tagger(cover []byte) *audio.Tagger {
	if !a.settings.ModifyTags && cover == nil {
		return nil
	}
	t := audio.NewTagger(a.tagConfig)
	if cover != nil {
		t = t.WithCover(cover)
	}
	return t
}

func held(loans []model.LoanRecord, mediaID string) bool {
	for _, loan := range loans {
		if loan.MediaID == mediaID {
			return true
		}
	}
	return false
}

func describeLoan(loan model.LoanRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", loan.MediaID, loan.Title)
	if len(loan.Authors) > 0 {
		fmt.Fprintf(&b, " by %s", strings.Join(loan.Authors, ", "))
	}
	if loan.MediaType != "" {
		fmt.Fprintf(&b, " [%s]", loan.MediaType)
	}
	if loan.DueDate != nil {
		fmt.Fprintf(&b, " due %s", loan.DueDate.Format("2006-01-02"))
	}
	return b.String()
}
