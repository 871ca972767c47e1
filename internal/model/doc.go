// Package model defines the core data structures used throughout
// the cloudlibrary-downloader application.
//
// # Session
//
// Session is the authenticated identity, passed by value into every call
// that talks to the service. There is no ambient session state.
//
// # Loans and Titles
//
// LoanRecord is a snapshot of a title's loan state. TitleMetadata is the
// full description of a borrowed audiobook, including its ordered
// ChapterRefs:
//
//	for _, ch := range meta.Chapters {
//	    fmt.Println(ch.Index, ch.Title, ch.SourceLocator)
//	}
//
// # Download Outcomes
//
// DownloadOutcome records one chapter's result; Summarize tallies a title:
//
//	tally := model.Summarize(outcomes)
//	fmt.Printf("%d ok, %d failed\n", tally.Succeeded, tally.Failed)
//
// # Path Layout
//
// Layout computes where a title and its chapters are stored:
//
//	layout := model.NewLayout(meta, &model.PathConfig{
//	    DownloadsPath:         "audiobooks",
//	    FolderNameFormat:      "{id} - {author} - {title}",
//	    ChapterFileNameFormat: "{chapternum} - {title}",
//	})
package model
