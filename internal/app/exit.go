package app

import (
	"context"
	"errors"

	"github.com/handiism/cloudlibrary-downloader/internal/cloudlibrary"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitAuth        = 3
	ExitNotFound    = 4
	ExitPartial     = 5
	ExitInterrupted = 130
)

// ExitCode maps the result of Run to a process exit status. report may be
// nil when Run was never reached.
func ExitCode(err error, report *Report) int {
	if err != nil {
		return classify(err)
	}
	if report == nil {
		return ExitOK
	}

	code := ExitOK
	for _, t := range report.Titles {
		switch {
		case t.Err != nil:
			return classify(t.Err)
		case !t.Tally.Complete():
			code = ExitPartial
		case t.ReleaseErr != nil && code == ExitOK:
			code = ExitFailure
		}
	}
	return code
}

func classify(err error) int {
	var (
		configErr  *cloudlibrary.ConfigurationError
		authErr    *cloudlibrary.AuthError
		catalogErr *cloudlibrary.CatalogError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &authErr), errors.Is(err, cloudlibrary.ErrUnauthorized):
		return ExitAuth
	case errors.Is(err, ErrNoTitles):
		return ExitNotFound
	case errors.As(err, &catalogErr):
		if catalogErr.Kind == cloudlibrary.CatalogNotFound || catalogErr.Kind == cloudlibrary.CatalogUnsupportedMedia {
			return ExitNotFound
		}
		return ExitFailure
	default:
		return ExitFailure
	}
}
