package bridge

import (
	"log"
	"os"
	"path/filepath"

	"github.com/dhowden/tag"
	"github.com/soundctl/audiobridge/api"
)

// NowPlaying publishes metadata onto the system now-playing surface.
// Every method is best-effort: a failure is logged by the caller and
// never surfaces as a playback error.
type NowPlaying interface {
	Publish(meta api.NotificationMetadata) error
	UpdateState(playing bool) error
	Clear() error
}

// LogNowPlaying is the default surface: it writes to the injected logger.
// Hosts with a real lock-screen integration supply their own NowPlaying.
type LogNowPlaying struct {
	Log *log.Logger
}

func (n *LogNowPlaying) Publish(meta api.NotificationMetadata) error {
	if n.Log != nil {
		n.Log.Printf("now playing: %q by %q (%s)", meta.Title, meta.Artist, meta.Album)
	}
	return nil
}

func (n *LogNowPlaying) UpdateState(playing bool) error {
	if n.Log != nil {
		n.Log.Printf("now playing state: playing=%v", playing)
	}
	return nil
}

func (n *LogNowPlaying) Clear() error {
	if n.Log != nil {
		n.Log.Printf("now playing: cleared")
	}
	return nil
}

// metadataFromFile fills missing metadata fields from the file's embedded
// tags. Files without tags fall back to the bare filename as title.
func metadataFromFile(path string, meta api.NotificationMetadata) api.NotificationMetadata {
	if meta.Title == "" {
		meta.Title = filepath.Base(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer file.Close()

	tags, err := tag.ReadFrom(file)
	if err != nil {
		return meta
	}
	if meta.Title == filepath.Base(path) && tags.Title() != "" {
		meta.Title = tags.Title()
	}
	if meta.Artist == "" {
		meta.Artist = tags.Artist()
	}
	if meta.Album == "" {
		meta.Album = tags.Album()
	}
	return meta
}
