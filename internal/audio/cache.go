package audio

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// cachedExtensions are the file types the purge removes. Anything else in
// the cache directory is left alone.
var cachedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".aiff": true,
	".caf":  true,
}

// ClearCache deletes cached audio files from dir. Open handles are
// unaffected; in-flight remote streams keep their already-opened data. A
// missing or empty directory is not an error.
func ClearCache(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !cachedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// cachePathFor maps a remote URL to its on-disk cache location. The name
// is a digest of the URL so concurrent assets for the same source share
// one download.
func cachePathFor(dir, rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	trimmed, _, _ := strings.Cut(rawURL, "?")
	ext := strings.ToLower(filepath.Ext(trimmed))
	if !cachedExtensions[ext] {
		ext = ".mp3"
	}
	return filepath.Join(dir, hex.EncodeToString(sum[:])+ext)
}
