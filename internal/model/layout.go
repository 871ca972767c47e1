package model

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// maxFolderNameLen caps the title folder name, matching what cloudLibrary
// users already have on disk from earlier tools.
const maxFolderNameLen = 100

// PathConfig holds path formatting settings for titles and chapters.
//
// FolderNameFormat supports {id}, {author} and {title}.
// ChapterFileNameFormat supports {chapternum}, {index} and {title}; the
// extension is taken from the chapter's source URL.
//
// Example configuration:
//
//	cfg := &PathConfig{
//	    DownloadsPath:         "/home/user/audiobooks",
//	    FolderNameFormat:      "{id} - {author} - {title}",
//	    ChapterFileNameFormat: "{chapternum} - {title}",
//	}
type PathConfig struct {
	DownloadsPath         string
	FolderNameFormat      string
	ChapterFileNameFormat string
}

// Layout is the deterministic on-disk layout of one downloaded title.
//
// Example:
//
//	layout := NewLayout(meta, cfg)
//	// layout.Dir = "/home/user/audiobooks/abc123 - Jane Doe - Some Book"
//	// layout.ChapterPath(meta.Chapters[0]) = ".../01 - Opening Credits.mp3"
type Layout struct {
	// Dir is the title directory.
	Dir string

	mediaID       string
	chapterFormat string
	numberWidth   int
}

// NewLayout computes the layout for meta.
func NewLayout(meta *TitleMetadata, cfg *PathConfig) *Layout {
	name := cfg.FolderNameFormat
	name = strings.ReplaceAll(name, "{id}", meta.MediaID)
	name = strings.ReplaceAll(name, "{author}", meta.FirstAuthor())
	name = strings.ReplaceAll(name, "{title}", meta.Title)
	name = sanitizeFileName(name)
	if r := []rune(name); len(r) > maxFolderNameLen {
		name = strings.TrimRight(string(r[:maxFolderNameLen]), " .")
	}

	return NewChapterLayout(filepath.Join(cfg.DownloadsPath, name), meta, cfg.ChapterFileNameFormat)
}

// NewChapterLayout returns a layout rooted at an already chosen title
// directory.
func NewChapterLayout(dir string, meta *TitleMetadata, chapterFormat string) *Layout {
	width := len(strconv.Itoa(len(meta.Chapters)))
	if width < 2 {
		width = 2
	}
	if chapterFormat == "" {
		chapterFormat = "{chapternum} - {title}"
	}

	return &Layout{
		Dir:           dir,
		mediaID:       meta.MediaID,
		chapterFormat: chapterFormat,
		numberWidth:   width,
	}
}

// ChapterPath returns the target file path for a chapter.
func (l *Layout) ChapterPath(ch ChapterRef) string {
	title := ch.Title
	if title == "" {
		title = fmt.Sprintf("Chapter %d", ch.Index+1)
	}

	fileName := l.chapterFormat
	fileName = strings.ReplaceAll(fileName, "{chapternum}", fmt.Sprintf("%0*d", l.numberWidth, ch.Index+1))
	fileName = strings.ReplaceAll(fileName, "{index}", strconv.Itoa(ch.Index))
	fileName = strings.ReplaceAll(fileName, "{title}", title)
	fileName = sanitizeFileName(fileName)

	ext := chapterExtension(ch.SourceLocator)
	filePath := filepath.Join(l.Dir, fileName+ext)

	// Limit total path length for Windows compatibility (MAX_PATH = 260)
	if len(filePath) >= 260 {
		prefix := fmt.Sprintf("%0*d", l.numberWidth, ch.Index+1)
		filePath = filepath.Join(l.Dir, prefix+ext)
	}

	return filePath
}

// MetadataPath returns the path of the metadata JSON dump.
func (l *Layout) MetadataPath() string {
	return filepath.Join(l.Dir, sanitizeFileName(l.mediaID)+".json")
}

// PlaylistPath returns the path of the chapter playlist with extension ext.
func (l *Layout) PlaylistPath(ext string) string {
	return filepath.Join(l.Dir, sanitizeFileName(l.mediaID)+ext)
}

// CoverPath returns the path the cover image is saved to.
func (l *Layout) CoverPath() string {
	return filepath.Join(l.Dir, "cover.jpg")
}

// chapterExtension returns the file extension of the locator's path,
// falling back to ".mp3".
func chapterExtension(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return ".mp3"
	}
	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 6 {
		return ".mp3"
	}
	return strings.ToLower(ext)
}

// sanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Leading and trailing whitespace is removed
func sanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = whitespace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots = regexp.MustCompile(`\.+$`)
	whitespace   = regexp.MustCompile(`\s+`)
)
