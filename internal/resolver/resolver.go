// Package resolver turns an input URL into a normalized media descriptor by
// shelling out to yt-dlp. The extractor's scraping internals are opaque here:
// only its JSON output shape is consumed.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/maxgrab/maxgrab/internal/media"
)

// Error marks a URL that could not be resolved to any downloadable media.
// Terminal for that URL; callers report it and do not retry.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Runner executes the extractor binary and returns its stdout.
type Runner interface {
	Output(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the yt-dlp binary via os/exec.
type ExecRunner struct {
	Binary string
}

// Output runs the binary with the given arguments and returns stdout. Stderr
// from a failed run is folded into the error for diagnostics.
func (r ExecRunner) Output(ctx context.Context, args ...string) ([]byte, error) {
	binary := r.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	out, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", binary, err)
	}
	return out, nil
}

// Service resolves URLs and downloads media through a Runner.
type Service struct {
	runner Runner
	logger *slog.Logger
}

// NewService creates a resolver service backed by the given runner.
func NewService(log *slog.Logger, runner Runner) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runner: runner,
		logger: log.With(slog.String("service", "resolver")),
	}
}

// extractorInfo mirrors the subset of yt-dlp -J output the bot consumes.
type extractorInfo struct {
	Title       string          `json:"title"`
	Duration    float64         `json:"duration"`
	Uploader    string          `json:"uploader"`
	Description string          `json:"description"`
	WebpageURL  string          `json:"webpage_url"`
	Ext         string          `json:"ext"`
	Thumbnail   string          `json:"thumbnail"`
	Entries     []extractorInfo `json:"entries"`
}

// Resolve describes what the URL points at without downloading anything.
func (s *Service) Resolve(ctx context.Context, url string) (media.Descriptor, error) {
	out, err := s.runner.Output(ctx, "-J", "--no-warnings", url)
	if err != nil {
		return media.Descriptor{}, &Error{URL: url, Err: err}
	}

	var info extractorInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return media.Descriptor{}, &Error{URL: url, Err: fmt.Errorf("decode extractor output: %w", err)}
	}

	if len(info.Entries) > 0 {
		items := make([]media.Item, 0, len(info.Entries))
		for _, entry := range info.Entries {
			items = append(items, itemFromInfo(entry, url))
		}
		s.logger.Info("resolved collection", slog.String("url", url), slog.Int("items", len(items)))
		return media.Collection(info.Title, items, info.Description), nil
	}

	item := itemFromInfo(info, url)
	s.logger.Info("resolved single item",
		slog.String("url", url),
		slog.String("title", item.Title),
		slog.Int("duration", item.DurationSeconds),
	)
	return media.Single(item), nil
}

func itemFromInfo(info extractorInfo, fallbackURL string) media.Item {
	sourceURL := info.WebpageURL
	if strings.TrimSpace(sourceURL) == "" {
		sourceURL = fallbackURL
	}
	return media.Item{
		SourceURL:       sourceURL,
		Title:           info.Title,
		Author:          info.Uploader,
		DurationSeconds: int(info.Duration),
		Description:     info.Description,
		FileExtension:   info.Ext,
		ThumbnailURL:    info.Thumbnail,
	}.Normalize()
}

// Download fetches the media at url into dest using the given format
// selector. The runner is trusted only for transport: callers decide success
// by checking that dest exists afterwards.
func (s *Service) Download(ctx context.Context, url, format, dest string) error {
	_, err := s.runner.Output(ctx, "-f", format, "-o", dest, "--no-warnings", url)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}
