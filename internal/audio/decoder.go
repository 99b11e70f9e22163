package audio

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
)

// SupportedFormats returns list of supported audio formats
func SupportedFormats() []string {
	return []string{".mp3", ".wav", ".flac"}
}

// IsSupported checks if a file format is supported
func IsSupported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// DecodeAudio decodes an audio stream based on the file extension
func DecodeAudio(r io.ReadSeekCloser, filePath string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".mp3":
		return mp3.Decode(r)
	case ".wav":
		return wav.Decode(r)
	case ".flac":
		return flac.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", bridgeerrors.ErrInvalidFormat, ext)
	}
}

// byteSource adapts an in-memory buffer to the decoder input. Each channel
// of an asset decodes its own copy so pool members can play independently.
type byteSource struct {
	*bytes.Reader
}

func newByteSource(data []byte) *byteSource {
	return &byteSource{Reader: bytes.NewReader(data)}
}

func (*byteSource) Close() error { return nil }

// DecodeLive decodes an endless MP3 stream (live HTTP bodies). The source
// is not seekable, so the resulting streamer reports no usable length and
// callers must not seek it.
func DecodeLive(r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return mp3.Decode(r)
}
