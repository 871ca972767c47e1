package audio

import (
	"fmt"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// audiobookGenre is written to TCON when string tags are modified.
const audiobookGenre = "Audiobook"

// TagEditAction defines how to handle individual ID3 tags.
type TagEditAction int

const (
	// TagEmpty removes the frame.
	TagEmpty TagEditAction = iota

	// TagModify sets the frame from the title metadata.
	TagModify

	// TagDoNotModify leaves the frame as delivered by the service.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags:   true,
//	    Artist:       TagModify,      // authors
//	    Album:        TagModify,      // book title
//	    ChapterTitle: TagModify,      // chapter title
//	    Narrator:     TagModify,      // narrators, as composer
//	    Comments:     TagDoNotModify, // keep the publisher's comment
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no string tags are modified.
	ModifyTags bool

	// Artist controls the TPE1 (Lead artist) frame: all authors.
	Artist TagEditAction

	// AlbumArtist controls the TPE2 (Album artist) frame: first author.
	AlbumArtist TagEditAction

	// Album controls the TALB (Album title) frame: the book title.
	Album TagEditAction

	// ChapterTitle controls the TIT2 (Title) frame.
	ChapterTitle TagEditAction

	// TrackNumber controls the TRCK (Track number) frame as "n/total".
	TrackNumber TagEditAction

	// Narrator controls the TCOM (Composer) frame.
	Narrator TagEditAction

	// Series controls the TIT1 (Content group) frame.
	Series TagEditAction

	// Publisher controls the TPUB frame.
	Publisher TagEditAction

	// Comments controls the COMM frame: the book description.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration: every frame is
// set from the title metadata.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:   true,
		Artist:       TagModify,
		AlbumArtist:  TagModify,
		Album:        TagModify,
		ChapterTitle: TagModify,
		TrackNumber:  TagModify,
		Narrator:     TagModify,
		Series:       TagModify,
		Publisher:    TagModify,
		Comments:     TagModify,
	}
}

// Tagger writes ID3 tags to chapter MP3 files.
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig()).WithCover(jpegBytes)
//	err := tagger.TagChapter(path, meta, meta.Chapters[0])
type Tagger struct {
	config *TagConfig
	cover  []byte
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// WithCover returns a copy of t that also embeds cover as front cover art.
func (t *Tagger) WithCover(cover []byte) *Tagger {
	return &Tagger{config: t.config, cover: cover}
}

// TagChapter writes tags for chapter ch of meta to the file at path.
func (t *Tagger) TagChapter(path string, meta *model.TitleMetadata, ch model.ChapterRef) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if t.config.ModifyTags {
		t.updateStringTags(tag, meta, ch)
	}

	if t.cover != nil {
		t.updateArtwork(tag)
	}

	return tag.Save()
}

// updateStringTags updates text frames based on configuration.
func (t *Tagger) updateStringTags(tag *id3v2.Tag, meta *model.TitleMetadata, ch model.ChapterRef) {
	title := ch.Title
	if title == "" {
		title = fmt.Sprintf("Chapter %d", ch.Index+1)
	}

	var series []string
	for _, s := range meta.Series {
		if s.Number != "" {
			series = append(series, fmt.Sprintf("%s #%s", s.Name, s.Number))
		} else {
			series = append(series, s.Name)
		}
	}

	setText(tag, "TPE1", t.config.Artist, strings.Join(meta.Authors, ", "))
	setText(tag, "TPE2", t.config.AlbumArtist, meta.FirstAuthor())
	setText(tag, "TALB", t.config.Album, meta.Title)
	setText(tag, "TIT2", t.config.ChapterTitle, title)
	setText(tag, "TRCK", t.config.TrackNumber, fmt.Sprintf("%d/%d", ch.Index+1, len(meta.Chapters)))
	setText(tag, "TCOM", t.config.Narrator, strings.Join(meta.Narrators, ", "))
	setText(tag, "TIT1", t.config.Series, strings.Join(series, "; "))
	setText(tag, "TPUB", t.config.Publisher, meta.Publisher)

	switch t.config.Comments {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Comments"))
	case TagModify:
		tag.DeleteFrames(tag.CommonID("Comments"))
		if meta.Description != "" {
			tag.AddCommentFrame(id3v2.CommentFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: "eng",
				Text:     meta.Description,
			})
		}
	}

	tag.SetGenre(audiobookGenre)
}

// setText applies action to a text frame. Empty values remove the frame.
func setText(tag *id3v2.Tag, id string, action TagEditAction, value string) {
	switch action {
	case TagEmpty:
		tag.DeleteFrames(id)
	case TagModify:
		tag.DeleteFrames(id)
		if value != "" {
			tag.AddTextFrame(id, id3v2.EncodingUTF8, value)
		}
	}
}

// updateArtwork embeds cover art as an attached picture frame.
func (t *Tagger) updateArtwork(tag *id3v2.Tag) {
	tag.DeleteFrames(tag.CommonID("Attached picture"))

	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     t.cover,
	})
}
