package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// FormatM3U creates .m3u files (most compatible).
	// Can be extended with EXTINF lines for duration/title info.
	FormatM3U PlaylistFormat = iota

	// FormatPLS creates .pls files (Winamp/SHOUTcast format).
	FormatPLS
)

// ParsePlaylistFormat maps a settings value to a format. Unknown values
// fall back to M3U.
func ParsePlaylistFormat(s string) PlaylistFormat {
	if strings.EqualFold(s, "pls") {
		return FormatPLS
	}
	return FormatM3U
}

// Extension returns the file extension for the format, with the dot.
func (f PlaylistFormat) Extension() string {
	if f == FormatPLS {
		return ".pls"
	}
	return ".m3u"
}

// PlaylistCreator generates a chapter playlist for a downloaded title.
//
// Only chapters that were downloaded (or already present) are listed, in
// chapter order. Paths are relative to the title directory.
//
// Example:
//
//	creator := NewPlaylistCreator(FormatM3U, true)
//	content := creator.CreatePlaylist(meta, outcomes)
//	os.WriteFile(layout.PlaylistPath(FormatM3U.Extension()), []byte(content), 0644)
//
//	// Result:
//	// #EXTM3U
//	// #EXTINF:612,Jane Doe - Chapter 1
//	// 01 - Chapter 1.mp3
type PlaylistCreator struct {
	format   PlaylistFormat
	extended bool // For M3U: include EXTINF lines with duration/title
}

// NewPlaylistCreator creates a new PlaylistCreator.
func NewPlaylistCreator(format PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{
		format:   format,
		extended: extended,
	}
}

// Format returns the playlist format.
func (p *PlaylistCreator) Format() PlaylistFormat {
	return p.format
}

// CreatePlaylist generates playlist content for the successful outcomes.
func (p *PlaylistCreator) CreatePlaylist(meta *model.TitleMetadata, outcomes []model.DownloadOutcome) string {
	entries := make([]entry, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Result != model.Succeeded {
			continue
		}
		title := o.Chapter.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", o.Chapter.Index+1)
		}
		entries = append(entries, entry{
			file:    filepath.Base(o.Path),
			title:   title,
			seconds: int(o.Chapter.Duration.Seconds()),
		})
	}

	if p.format == FormatPLS {
		return p.createPLS(entries)
	}
	return p.createM3U(meta, entries)
}

type entry struct {
	file    string
	title   string
	seconds int
}

// createM3U generates an M3U playlist.
//
// Extended M3U format (when extended=true):
//
//	#EXTM3U
//	#EXTINF:180,Author - Chapter title
//	filename1.mp3
//
// Unknown durations are written as -1.
func (p *PlaylistCreator) createM3U(meta *model.TitleMetadata, entries []entry) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
		sb.WriteString(fmt.Sprintf("#PLAYLIST:%s\n", meta.Title))
	}

	for _, e := range entries {
		if p.extended {
			seconds := e.seconds
			if seconds == 0 {
				seconds = -1
			}
			label := e.title
			if author := meta.FirstAuthor(); author != "" {
				label = author + " - " + e.title
			}
			sb.WriteString(fmt.Sprintf("#EXTINF:%d,%s\n", seconds, label))
		}
		sb.WriteString(e.file + "\n")
	}

	return sb.String()
}

// createPLS generates a PLS playlist.
//
//	[playlist]
//	File1=01 - Chapter 1.mp3
//	Title1=Chapter 1
//	Length1=180
//	NumberOfEntries=1
//	Version=2
func (p *PlaylistCreator) createPLS(entries []entry) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")

	for i, e := range entries {
		idx := i + 1
		length := e.seconds
		if length == 0 {
			length = -1
		}
		sb.WriteString(fmt.Sprintf("File%d=%s\n", idx, e.file))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", idx, e.title))
		sb.WriteString(fmt.Sprintf("Length%d=%d\n", idx, length))
	}

	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(entries)))
	sb.WriteString("Version=2\n")

	return sb.String()
}
