// Package deliver drives the per-item delivery pipeline: readiness-aware
// sends, the ordered chain of delivery strategies, and batch coordination.
package deliver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maxgrab/maxgrab/internal/maxapi"
)

// ErrFinal means every scheduled send attempt found the attachment still
// processing.
var ErrFinal = errors.New("attachment never became ready")

// Poller retries a send while the remote attachment is still processing,
// following a fixed escalating delay schedule. Unrelated errors fail
// immediately: a permanently broken send must not be mistaken for one that
// would succeed a few seconds later.
type Poller struct {
	schedule []time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewPoller creates a poller with the given delay schedule. The total number
// of send attempts is len(schedule)+1.
func NewPoller(log *slog.Logger, schedule []time.Duration) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		schedule: schedule,
		sleep:    sleepCtx,
		logger:   log.With(slog.String("service", "poller")),
	}
}

// Deliver runs send, retrying per the schedule while the error is the
// classified not-ready condition. A success returns immediately; any other
// error returns immediately; an exhausted schedule returns ErrFinal.
func (p *Poller) Deliver(ctx context.Context, send func(ctx context.Context) error) error {
	err := send(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, maxapi.ErrNotReady) {
		return err
	}

	for i, delay := range p.schedule {
		p.logger.Debug("attachment not ready, waiting",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
		)
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		err = send(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, maxapi.ErrNotReady) {
			return err
		}
	}
	return ErrFinal
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
