package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

func writeUntaggedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "01 - Opening.mp3")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 256), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testMetadata() *model.TitleMetadata {
	return &model.TitleMetadata{
		MediaID:     "abc123",
		Title:       "Some Book",
		Authors:     []string{"Jane Doe", "John Roe"},
		Narrators:   []string{"Nick Narrator"},
		Publisher:   "Pub House",
		Description: "A story.",
		Series:      []model.Series{{Name: "The Saga", Number: "3"}},
		Chapters: []model.ChapterRef{
			{Index: 0, Title: "Opening"},
			{Index: 1},
		},
	}
}

func TestTagger_TagChapter(t *testing.T) {
	path := writeUntaggedFile(t)
	meta := testMetadata()
	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	tagger := NewTagger(nil).WithCover(cover)
	if err := tagger.TagChapter(path, meta, meta.Chapters[0]); err != nil {
		t.Fatalf("TagChapter() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()

	checks := map[string]string{
		"TIT2": "Opening",
		"TALB": "Some Book",
		"TPE1": "Jane Doe, John Roe",
		"TPE2": "Jane Doe",
		"TRCK": "1/2",
		"TCOM": "Nick Narrator",
		"TIT1": "The Saga #3",
		"TPUB": "Pub House",
		"TCON": "Audiobook",
	}
	for id, want := range checks {
		if got := tag.GetTextFrame(id).Text; got != want {
			t.Errorf("%s = %q, want %q", id, got, want)
		}
	}

	pictures := tag.GetFrames(tag.CommonID("Attached picture"))
	if len(pictures) != 1 {
		t.Fatalf("got %d pictures, want 1", len(pictures))
	}
	if pic, ok := pictures[0].(id3v2.PictureFrame); !ok || !bytes.Equal(pic.Picture, cover) {
		t.Error("cover art not embedded")
	}
}

func TestTagger_FallbackTitleAndRetag(t *testing.T) {
	path := writeUntaggedFile(t)
	meta := testMetadata()
	tagger := NewTagger(DefaultTagConfig())

	for i := 0; i < 2; i++ {
		if err := tagger.TagChapter(path, meta, meta.Chapters[1]); err != nil {
			t.Fatalf("TagChapter() error = %v", err)
		}
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()

	if got := tag.Title(); got != "Chapter 2" {
		t.Errorf("Title() = %q, want Chapter 2", got)
	}
	if n := len(tag.GetFrames("TALB")); n != 1 {
		t.Errorf("got %d TALB frames after retagging, want 1", n)
	}
	if n := len(tag.GetFrames(tag.CommonID("Comments"))); n != 1 {
		t.Errorf("got %d comment frames after retagging, want 1", n)
	}
}

func TestTagger_DoNotModify(t *testing.T) {
	path := writeUntaggedFile(t)
	meta := testMetadata()

	cfg := &TagConfig{ModifyTags: false}
	if err := NewTagger(cfg).TagChapter(path, meta, meta.Chapters[0]); err != nil {
		t.Fatalf("TagChapter() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()

	if tag.Album() != "" {
		t.Errorf("Album() = %q, want empty", tag.Album())
	}
}
