package bridge

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
)

// Source is the outcome of resolving an asset path.
type Source struct {
	// Remote indicates a URL-backed stream rather than a local file.
	Remote bool
	// URL is set for remote sources.
	URL string
	// Path is the local file path for non-remote sources.
	Path string
	// FileURL records that the caller handed us an explicit file:// URL.
	// Only such sources are eligible for delete-after-play.
	FileURL bool
}

// Resolver maps caller-supplied asset paths onto playable sources.
type Resolver struct {
	// PublicDir is the bundle root that bare relative paths resolve
	// against, mirroring the conventional public/ asset folder.
	PublicDir string
}

// Resolve applies the lookup order: file URL, remote URL, bundle-relative
// path, raw local path. Local results are verified to exist on disk.
func (r *Resolver) Resolve(assetPath string, isURL bool) (Source, error) {
	if assetPath == "" {
		return Source{}, bridgeerrors.ErrAssetPathMissing
	}

	if u, err := url.Parse(assetPath); err == nil && u.Scheme != "" {
		if u.Scheme == "file" {
			return r.localSource(u.Path, true)
		}
		return Source{Remote: true, URL: assetPath}, nil
	}

	if !isURL {
		rel := strings.TrimPrefix(assetPath, "public/")
		return r.localSource(filepath.Join(r.PublicDir, rel), false)
	}

	return r.localSource(assetPath, false)
}

func (r *Resolver) localSource(path string, fileURL bool) (Source, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Source{}, &bridgeerrors.ResolveError{Path: path, Err: bridgeerrors.ErrAssetFileMissing}
	}
	return Source{Path: path, FileURL: fileURL}, nil
}
