// Package reaper disposes of downloaded files: immediately after a delivery
// attempt concludes, and periodically for anything a crash or bug left
// behind in the downloads directory.
package reaper

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maxgrab/maxgrab/internal/fetch"
)

type Service struct {
	dir       string
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger

	now func() time.Time
}

func NewService(log *slog.Logger, dir string, retention time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		dir:       dir,
		retention: retention,
		cron:      cron.New(),
		logger:    log.With(slog.String("service", "reaper")),
		now:       time.Now,
	}
}

// Release removes one delivered asset. Releasing the same asset twice is a
// no-op on the second call.
func (s *Service) Release(asset *fetch.Asset) {
	asset.Release(s.logger)
}

// Start sweeps once immediately, then hourly. The startup sweep clears
// leftovers from a previous run that never reached its release point.
func (s *Service) Start() error {
	s.Sweep()
	if _, err := s.cron.AddFunc("@hourly", s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the periodic sweep and waits for a running one to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep removes every regular file in the downloads directory older than the
// retention window. Files still inside the window belong to in-flight
// deliveries and are left alone.
func (s *Service) Sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("sweep: read downloads dir failed", slog.String("dir", s.dir), slog.Any("error", err))
		}
		return
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("sweep: remove failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("sweep removed stale downloads", slog.Int("count", removed))
	}
}
