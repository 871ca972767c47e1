// Package audio post-processes downloaded chapters: ID3 tagging and
// chapter playlists.
//
// # ID3 Tagging
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig()).WithCover(jpegBytes)
//	err := tagger.TagChapter(path, meta, chapter)
//
// The tagger writes:
//   - Authors (TPE1), first author (TPE2)
//   - Book title (TALB), chapter title (TIT2)
//   - Chapter number as n/total (TRCK)
//   - Narrators as composer (TCOM)
//   - Series (TIT1), publisher (TPUB), description (COMM)
//   - Cover art (APIC)
//
// # Playlist Generation
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U, true) // extended M3U
//	content := creator.CreatePlaylist(meta, outcomes)
//
// Supported formats are M3U (with optional extended info) and PLS.
package audio
