package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soundctl/audiobridge/api"
	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
)

// newPlayOnceID builds a collision-resistant transient id. The millisecond
// stamp keeps the ids sortable in logs.
func newPlayOnceID() string {
	return fmt.Sprintf("playOnce_%d_%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// PlayOnce loads a sound under a generated id, optionally starts it, and
// tears everything down again after the first completion. The id is
// tracked before the load so a completion racing the return path still
// finds its cleanup entry; a failed load rolls the tracking back.
func (c *Coordinator) PlayOnce(opts api.PlayOnceOptions) (string, error) {
	if opts.AssetPath == "" {
		return "", bridgeerrors.NewBridgeError("playOnce", "", bridgeerrors.ErrAssetPathMissing)
	}
	volume := api.ClampVolume(api.FloatOr(opts.Volume, api.DefaultVolume))
	autoPlay := api.BoolOr(opts.AutoPlay, true)
	assetID := newPlayOnceID()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", bridgeerrors.ErrBridgeClosed
	}
	c.playOnce[assetID] = playOnceInfo{}
	if !opts.Metadata.Empty() {
		c.metadata[assetID] = opts.Metadata
	}

	src, err := c.resolver.Resolve(opts.AssetPath, opts.IsURL)
	if err != nil {
		c.rollbackPlayOnceLocked(assetID)
		c.mu.Unlock()
		return "", bridgeerrors.NewBridgeError("playOnce", assetID, err)
	}

	eng, err := c.buildEngine(assetID, src, opts.Headers, 1, volume, 0)
	if err != nil {
		c.rollbackPlayOnceLocked(assetID)
		c.mu.Unlock()
		return "", err
	}
	c.assets[assetID] = eng
	c.sources[assetID] = src
	if opts.DeleteAfterPlay {
		if p, ok := deletablePath(src); ok {
			c.playOnce[assetID] = playOnceInfo{deletePath: p}
		}
	}
	c.mu.Unlock()

	eng.SetOnComplete(func() { c.cleanupPlayOnce(assetID) })

	if autoPlay {
		c.RequestActivate()
		eng.Play(0, 0)
		c.publishNowPlaying(assetID)
	}
	return assetID, nil
}

func (c *Coordinator) rollbackPlayOnceLocked(assetID string) {
	delete(c.playOnce, assetID)
	delete(c.metadata, assetID)
}

// cleanupPlayOnce runs once after the transient asset completes: unload,
// deregister, clear the now-playing surface if it was showing, delete the
// backing file when requested, and release the session if idle.
func (c *Coordinator) cleanupPlayOnce(assetID string) {
	c.mu.Lock()
	info, tracked := c.playOnce[assetID]
	if !tracked {
		c.mu.Unlock()
		return
	}
	eng := c.assets[assetID]
	delete(c.assets, assetID)
	delete(c.sources, assetID)
	delete(c.playOnce, assetID)
	delete(c.metadata, assetID)
	wasCurrent := c.currentAsset == assetID
	if wasCurrent {
		c.currentAsset = ""
	}
	show := c.showNotification
	c.mu.Unlock()

	if eng != nil {
		eng.Unload()
	}
	if wasCurrent && show {
		if err := c.nowPlaying.Clear(); err != nil {
			c.log.Printf("clear now playing: %v", err)
		}
	}
	if info.deletePath != "" {
		if err := os.Remove(info.deletePath); err != nil && !os.IsNotExist(err) {
			c.log.Printf("delete play-once file %s: %v", info.deletePath, err)
		}
	}
	c.maybeEndSession()
}

// deletablePath accepts only local file-URL sources whose resolved path
// sits inside the temp directory or the user cache, so delete-after-play
// can never reach into bundled application assets.
func deletablePath(src Source) (string, bool) {
	if src.Remote || !src.FileURL || src.Path == "" {
		return "", false
	}
	abs, err := filepath.Abs(src.Path)
	if err != nil {
		return "", false
	}
	for _, dir := range safeDeleteDirs() {
		if dir == "" {
			continue
		}
		if rel, err := filepath.Rel(dir, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return abs, true
		}
	}
	return "", false
}

func safeDeleteDirs() []string {
	dirs := []string{os.TempDir()}
	if cache, err := os.UserCacheDir(); err == nil {
		dirs = append(dirs, cache)
	}
	return dirs
}
