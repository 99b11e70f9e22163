package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dhowden/tag"
	"github.com/soundctl/audiobridge/internal/audio"
	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
)

// Entry describes one playable file found under the public directory. The
// AssetID is the path relative to the scan root, which is exactly the
// string a host passes to preload.
type Entry struct {
	AssetID string
	Path    string
	Title   string
	Artist  string
	Album   string
	Size    int64
}

// Scanner walks the public directory concurrently using a worker pool
type Scanner struct {
	workers int
}

// NewScanner creates a new file scanner
func NewScanner(workers int) *Scanner {
	if workers <= 0 {
		workers = 4
	}
	return &Scanner{workers: workers}
}

// Scan walks root and returns channels for entries and errors
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Entry, <-chan error) {
	entries := make(chan Entry, 100)
	errs := make(chan error, 10)
	files := make(chan string, 100)

	var wg sync.WaitGroup

	go func() {
		defer close(files)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				select {
				case errs <- &bridgeerrors.ScanError{Path: p, Err: err}:
				default:
				}
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if !d.IsDir() && audio.IsSupported(p) {
				select {
				case files <- p:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})

		if err != nil && err != context.Canceled {
			select {
			case errs <- &bridgeerrors.ScanError{Path: root, Err: err}:
			default:
			}
		}
	}()

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range files {
				select {
				case <-ctx.Done():
					return
				default:
				}

				entry, err := readEntry(root, path)
				if err != nil {
					select {
					case errs <- &bridgeerrors.ScanError{Path: path, Err: err}:
					default:
					}
					continue
				}

				select {
				case entries <- entry:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(entries)
		close(errs)
	}()

	return entries, errs
}

// ScanAll collects every entry under root, sorted by asset id.
func (s *Scanner) ScanAll(ctx context.Context, root string) ([]Entry, error) {
	entries, errs := s.Scan(ctx, root)

	var out []Entry
	for entry := range entries {
		out = append(out, entry)
	}
	// Drain so the error channel's senders never block.
	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, firstErr
}

// readEntry builds an Entry from the file's size and embedded tags. Files
// without tags still produce an entry with the filename as title.
func readEntry(root, path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	entry := Entry{
		AssetID: filepath.ToSlash(rel),
		Path:    path,
		Title:   filepath.Base(path),
		Size:    info.Size(),
	}

	file, err := os.Open(path)
	if err != nil {
		return entry, nil
	}
	defer file.Close()

	if tags, err := tag.ReadFrom(file); err == nil {
		if tags.Title() != "" {
			entry.Title = tags.Title()
		}
		entry.Artist = tags.Artist()
		entry.Album = tags.Album()
	}
	return entry, nil
}
