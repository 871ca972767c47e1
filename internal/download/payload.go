package download

import (
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
)

func isMP3(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

// payloadSize returns the number of audio bytes in an MP3 file of the given
// size, excluding a leading ID3v2 tag.
func payloadSize(path string, size int64) (int64, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return 0, err
	}
	defer tag.Close()

	return size - int64(tag.Size()), nil
}
