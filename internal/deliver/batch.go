package deliver

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/maxgrab/maxgrab/internal/fetch"
	"github.com/maxgrab/maxgrab/internal/logger"
	"github.com/maxgrab/maxgrab/internal/maxapi"
	"github.com/maxgrab/maxgrab/internal/media"
)

// End-of-batch courtesy texts.
const (
	supportNote = "❤️ If you like the bot, you can support the project:\n💸 https://donate.example.com\nThank you!"
	failureNote = "❌ Could not deliver any files."
)

// Fetcher downloads one item to local storage.
type Fetcher interface {
	Fetch(ctx context.Context, item media.Item, derivedID string) (*fetch.Asset, error)
}

// Releaser disposes of a local asset once its delivery attempt concludes.
type Releaser interface {
	Release(asset *fetch.Asset)
}

// Deliverer runs the strategy chain for one asset.
type Deliverer interface {
	Deliver(ctx context.Context, target maxapi.ChatTarget, caption string, asset *fetch.Asset) Outcome
}

// Report aggregates per-item outcomes for one descriptor.
type Report struct {
	Outcomes     []Outcome
	AnySucceeded bool
}

// Coordinator fans a descriptor out into concurrent fetches, sequences
// delivery in descriptor order, and aggregates partial success.
type Coordinator struct {
	fetcher   Fetcher
	chain     Deliverer
	messenger Messenger
	releaser  Releaser
	logger    *slog.Logger
}

// NewCoordinator wires the batch coordinator.
func NewCoordinator(log *slog.Logger, fetcher Fetcher, chain Deliverer, messenger Messenger, releaser Releaser) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		fetcher:   fetcher,
		chain:     chain,
		messenger: messenger,
		releaser:  releaser,
		logger:    log.With(slog.String("service", "batch")),
	}
}

// Run processes every item of the descriptor against the target chat.
// Collection members are fetched concurrently but delivered strictly in
// descriptor order, each captioned with its 1-based index and the total.
// One member's failure never aborts its siblings.
func (c *Coordinator) Run(ctx context.Context, target maxapi.ChatTarget, desc media.Descriptor) Report {
	log := logger.FromContext(ctx)
	items := desc.Items
	total := len(items)
	report := Report{Outcomes: make([]Outcome, total)}
	if total == 0 {
		return report
	}

	assets, fetchErrs := c.fetchAll(ctx, desc)

	for i, item := range items {
		asset := assets[i]
		if asset == nil {
			report.Outcomes[i] = Outcome{Err: fmt.Errorf("fetch: %w", fetchErrs[i])}
			c.notifyItemFailure(ctx, target, desc, i+1, total)
			continue
		}

		caption := c.captionFor(item, desc, i)
		outcome := c.chain.Deliver(ctx, target, caption, asset)
		c.releaser.Release(asset)
		report.Outcomes[i] = outcome

		if outcome.Delivered {
			report.AnySucceeded = true
			log.Info("item delivered",
				slog.String("title", item.Title),
				slog.String("via", string(outcome.Via)),
			)
		} else {
			log.Error("item delivery exhausted",
				slog.String("title", item.Title),
				slog.Any("error", outcome.Err),
			)
			c.notifyItemFailure(ctx, target, desc, i+1, total)
		}
	}

	c.finish(ctx, target, desc, report)
	return report
}

// fetchAll downloads all items, concurrently for collections. A nil slot in
// the asset slice marks a failed fetch, with the cause at the same index of
// the error slice. Completion order carries no meaning; only descriptor
// order does.
func (c *Coordinator) fetchAll(ctx context.Context, desc media.Descriptor) ([]*fetch.Asset, []error) {
	log := logger.FromContext(ctx)
	items := desc.Items
	assets := make([]*fetch.Asset, len(items))
	errs := make([]error, len(items))

	if !desc.IsCollection() {
		asset, err := c.fetcher.Fetch(ctx, items[0], media.DeriveID(items[0].Title, -1))
		if err != nil {
			log.Error("fetch failed", slog.String("url", items[0].SourceURL), slog.Any("error", err))
			errs[0] = err
			return assets, errs
		}
		assets[0] = asset
		return assets, errs
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			asset, err := c.fetcher.Fetch(gctx, item, media.DeriveID(item.Title, i))
			if err != nil {
				// Fetch failures skip the member, never the batch.
				log.Error("fetch failed",
					slog.Int("index", i),
					slog.String("url", item.SourceURL),
					slog.Any("error", err),
				)
				errs[i] = err
				return nil
			}
			assets[i] = asset
			return nil
		})
	}
	_ = g.Wait()
	return assets, errs
}

func (c *Coordinator) captionFor(item media.Item, desc media.Descriptor, i int) string {
	if desc.IsCollection() {
		return Caption(item, i+1, len(desc.Items))
	}
	return Caption(item, 0, 0)
}

func (c *Coordinator) notifyItemFailure(ctx context.Context, target maxapi.ChatTarget, desc media.Descriptor, index, total int) {
	text := "❌ Could not deliver the file."
	if desc.IsCollection() {
		text = fmt.Sprintf("❌ Could not deliver file %d/%d.", index, total)
	}
	if _, err := c.messenger.SendMessage(ctx, target, text, nil); err != nil {
		c.logger.Warn("failure notice not sent", slog.Any("error", err))
	}
}

// finish emits the end-of-batch messages. The shared description and the
// courtesy note are sent only when at least one item got through. A wholly
// failed collection gets a single terminal notice instead; a failed single
// item already got its per-item notice, so no second message piles on.
func (c *Coordinator) finish(ctx context.Context, target maxapi.ChatTarget, desc media.Descriptor, report Report) {
	if !report.AnySucceeded {
		if desc.IsCollection() {
			if _, err := c.messenger.SendMessage(ctx, target, failureNote, nil); err != nil {
				c.logger.Warn("terminal notice not sent", slog.Any("error", err))
			}
		}
		return
	}

	description := desc.SharedDescription
	if !desc.IsCollection() {
		description = desc.Items[0].Description
	}
	if description != "" {
		text := "📝 Description:\n\n" + TruncateDescription(description)
		if _, err := c.messenger.SendMessage(ctx, target, text, nil); err != nil {
			c.logger.Warn("description not sent", slog.Any("error", err))
		}
	}
	if _, err := c.messenger.SendMessage(ctx, target, supportNote, nil); err != nil {
		c.logger.Warn("support note not sent", slog.Any("error", err))
	}
}
