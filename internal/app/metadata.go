package app

import (
	"path/filepath"

	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// MetadataDocument is the record written to <media_id>.json next to the
// chapter files.
type MetadataDocument struct {
	MediaID     string            `json:"media_id"`
	Authors     []string          `json:"authors"`
	Title       string            `json:"title"`
	ISBN        string            `json:"isbn,omitempty"`
	Description string            `json:"description,omitempty"`
	Narrator    []string          `json:"narrator"`
	Language    string            `json:"language,omitempty"`
	Publisher   string            `json:"publisher,omitempty"`
	Thumbnail   string            `json:"thumbnail,omitempty"`
	Series      []model.Series    `json:"series"`
	Chapters    []MetadataChapter `json:"chapters"`
}

// MetadataChapter describes one chapter file.
type MetadataChapter struct {
	Index           int     `json:"index"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	File            string  `json:"file,omitempty"`
}

// NewMetadataDocument builds the metadata record for meta. File names are
// taken from successful outcomes; failed chapters are listed without one.
func NewMetadataDocument(meta *model.TitleMetadata, outcomes []model.DownloadOutcome) MetadataDocument {
	doc := MetadataDocument{
		MediaID:     meta.MediaID,
		Authors:     nonNil(meta.Authors),
		Title:       meta.Title,
		ISBN:        meta.ISBN,
		Description: meta.Description,
		Narrator:    nonNil(meta.Narrators),
		Language:    meta.Language,
		Publisher:   meta.Publisher,
		Thumbnail:   meta.ThumbnailURL,
		Series:      meta.Series,
		Chapters:    make([]MetadataChapter, len(meta.Chapters)),
	}
	if doc.Series == nil {
		doc.Series = []model.Series{}
	}

	for i, ch := range meta.Chapters {
		c := MetadataChapter{
			Index:           ch.Index,
			Title:           ch.Title,
			DurationSeconds: ch.Duration.Seconds(),
		}
		if i < len(outcomes) && outcomes[i].Result == model.Succeeded {
			c.File = filepath.Base(outcomes[i].Path)
		}
		doc.Chapters[i] = c
	}
	return doc
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
