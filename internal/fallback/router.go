// Package fallback re-uploads a local asset to secondary hosting backends and
// produces a durable public link when the primary delivery channel fails.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted means every configured backend failed for the asset. Terminal
// for that item; the recipient is told plainly that it could not be delivered.
var ErrExhausted = errors.New("all fallback backends exhausted")

// Backend uploads a local file to one hosting service and returns a durable
// shareable link.
type Backend interface {
	Name() string
	Upload(ctx context.Context, localPath string) (string, error)
}

// Router tries backends in configured order and stops at the first durable
// link. It is invoked only after the primary path has failed, never
// speculatively.
type Router struct {
	backends []Backend
	logger   *slog.Logger
}

// NewRouter creates a router over the given backends, tried in order.
func NewRouter(log *slog.Logger, backends ...Backend) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		backends: backends,
		logger:   log.With(slog.String("service", "fallback")),
	}
}

// Relay uploads the asset to the first backend that accepts it and returns
// the public link. Exhausting all backends returns an error wrapping
// ErrExhausted.
func (r *Router) Relay(ctx context.Context, localPath string) (string, error) {
	if len(r.backends) == 0 {
		return "", fmt.Errorf("relay %s: no backends configured: %w", localPath, ErrExhausted)
	}
	var lastErr error
	for _, backend := range r.backends {
		link, err := backend.Upload(ctx, localPath)
		if err == nil {
			r.logger.Info("relayed via fallback backend",
				slog.String("backend", backend.Name()),
				slog.String("path", localPath),
			)
			return link, nil
		}
		lastErr = err
		r.logger.Warn("fallback backend failed",
			slog.String("backend", backend.Name()),
			slog.Any("error", err),
		)
	}
	return "", fmt.Errorf("relay %s: %v: %w", localPath, lastErr, ErrExhausted)
}
