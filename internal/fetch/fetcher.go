// Package fetch downloads one remote media item into the managed download
// directory, content-addressed by a derived identifier.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maxgrab/maxgrab/internal/media"
)

// Error marks a download that failed or produced no file. Terminal for that
// item; the batch continues with its siblings. Fetch never retries on its
// own; retry policy belongs to the caller.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Asset is a downloaded local file. The fetcher owns it until it is handed to
// the upload or fallback path, which borrow it read-only; only the reaper
// deletes it, exactly once.
type Asset struct {
	Path string
	Item media.Item

	release sync.Once
}

// Release removes the local file. Safe to call more than once; only the first
// call deletes. A missing file is not an error and removal failures never
// propagate past this boundary.
func (a *Asset) Release(log *slog.Logger) {
	a.release.Do(func() {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			if log != nil {
				log.Warn("remove local asset failed", slog.String("path", a.Path), slog.Any("error", err))
			}
		}
	})
}

// Downloader runs the external extractor to fetch url into dest with the
// given format selector.
type Downloader interface {
	Download(ctx context.Context, url, format, dest string) error
}

// Fetcher downloads media items into a managed directory. Fetches are
// idempotent by derived identifier: an already-present file is a cache hit.
type Fetcher struct {
	dir        string
	downloader Downloader
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a fetcher writing under dir.
func NewFetcher(log *slog.Logger, dir string, downloader Downloader) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		dir:        dir,
		downloader: downloader,
		httpClient: &http.Client{},
		logger:     log.With(slog.String("service", "fetch")),
	}
}

// Dir returns the managed download directory.
func (f *Fetcher) Dir() string { return f.dir }

// formatFor prefers a combined video+audio container matching the target
// extension for video items, so minimal deployments without a muxer still
// work; it degrades to best-available when the combined format is absent.
func formatFor(item media.Item) string {
	if item.Kind() == media.KindVideo {
		return fmt.Sprintf("best[ext=%s]/best", strings.ToLower(item.FileExtension))
	}
	return "best"
}

// Fetch downloads the item to its derived path, or returns the existing file
// without any network call when the path is already present. Presence of the
// output file is the sole success signal: extractor exit status alone is not
// trusted, since some sources report success without producing a file.
func (f *Fetcher) Fetch(ctx context.Context, item media.Item, derivedID string) (*Asset, error) {
	item = item.Normalize()
	path := filepath.Join(f.dir, derivedID+"."+item.FileExtension)

	if _, err := os.Stat(path); err == nil {
		f.logger.Debug("cache hit", slog.String("path", path))
		return &Asset{Path: path, Item: item}, nil
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, &Error{URL: item.SourceURL, Err: err}
	}

	var err error
	if isDirectFileURL(item.SourceURL, item.FileExtension) {
		err = f.downloadDirect(ctx, item.SourceURL, path)
	} else {
		err = f.downloader.Download(ctx, item.SourceURL, formatFor(item), path)
	}
	if err != nil {
		return nil, &Error{URL: item.SourceURL, Err: err}
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return nil, &Error{URL: item.SourceURL, Err: fmt.Errorf("no output file after download: %w", statErr)}
	}

	f.logger.Info("fetched", slog.String("path", path), slog.String("title", item.Title))
	return &Asset{Path: path, Item: item}, nil
}

// isDirectFileURL reports whether the URL points straight at a media file
// with the expected extension, in which case no extractor run is needed.
func isDirectFileURL(rawURL, ext string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), "."+strings.ToLower(ext))
}

// downloadDirect streams the URL body into dest through a temp file and an
// atomic rename, so a half-written file never appears at the final path.
func (f *Fetcher) downloadDirect(ctx context.Context, fileURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	tmp := dest + ".part"
	tmpFile, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmp)
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
