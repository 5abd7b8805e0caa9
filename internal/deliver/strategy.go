package deliver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maxgrab/maxgrab/internal/fetch"
	"github.com/maxgrab/maxgrab/internal/maxapi"
)

// Via records which delivery path carried an item to the recipient.
type Via string

const (
	ViaPrimary  Via = "primary"
	ViaDocument Via = "document"
	ViaFallback Via = "fallback"
)

// Outcome is the terminal result of delivering one item.
type Outcome struct {
	Delivered bool
	Via       Via
	Link      string
	Err       error
}

// Messenger posts messages to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, target maxapi.ChatTarget, text string, attachments []maxapi.Attachment) (string, error)
}

// Uploader runs the platform upload handshake for one local file.
type Uploader interface {
	UploadAttachment(ctx context.Context, class maxapi.MediaClass, localPath string) (maxapi.Attachment, error)
}

// Relayer uploads a local file to secondary hosting and returns a public link.
type Relayer interface {
	Relay(ctx context.Context, localPath string) (string, error)
}

// Strategy is one way of getting an asset to the recipient. Strategies are
// tried in a fixed order; each either delivers or reports why it could not.
type Strategy interface {
	Name() string
	Deliver(ctx context.Context, target maxapi.ChatTarget, caption string, asset *fetch.Asset) (Outcome, error)
}

// attachmentStrategy delivers the asset as a native platform attachment:
// upload handshake, then a readiness-aware send.
type attachmentStrategy struct {
	name      string
	via       Via
	uploader  Uploader
	messenger Messenger
	poller    *Poller
	class     func(asset *fetch.Asset) maxapi.MediaClass
	suffix    string
}

// NewNativeStrategy delivers an item as its native media class (video or
// image attachment).
func NewNativeStrategy(uploader Uploader, messenger Messenger, poller *Poller) Strategy {
	return &attachmentStrategy{
		name:      "native",
		via:       ViaPrimary,
		uploader:  uploader,
		messenger: messenger,
		poller:    poller,
		class: func(asset *fetch.Asset) maxapi.MediaClass {
			return maxapi.ClassForKind(asset.Item.Kind())
		},
	}
}

// NewDocumentStrategy delivers an item as a generic file attachment, the
// first degradation tier when the native class is rejected.
func NewDocumentStrategy(uploader Uploader, messenger Messenger, poller *Poller) Strategy {
	return &attachmentStrategy{
		name:      "document",
		via:       ViaDocument,
		uploader:  uploader,
		messenger: messenger,
		poller:    poller,
		class: func(*fetch.Asset) maxapi.MediaClass {
			return maxapi.ClassFile
		},
		suffix: "\n\n(sent as a file)",
	}
}

func (s *attachmentStrategy) Name() string { return s.name }

func (s *attachmentStrategy) Deliver(ctx context.Context, target maxapi.ChatTarget, caption string, asset *fetch.Asset) (Outcome, error) {
	attachment, err := s.uploader.UploadAttachment(ctx, s.class(asset), asset.Path)
	if err != nil {
		return Outcome{}, err
	}
	err = s.poller.Deliver(ctx, func(ctx context.Context) error {
		_, sendErr := s.messenger.SendMessage(ctx, target, caption+s.suffix, []maxapi.Attachment{attachment})
		return sendErr
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Delivered: true, Via: s.via}, nil
}

// linkStrategy relays the asset to secondary hosting and tells the recipient
// the item is reachable only via the returned link. The degraded notification
// is part of the contract, not a log line.
type linkStrategy struct {
	relayer   Relayer
	messenger Messenger
}

// NewLinkStrategy delivers an item as an external download link after the
// attachment paths are exhausted.
func NewLinkStrategy(relayer Relayer, messenger Messenger) Strategy {
	return &linkStrategy{relayer: relayer, messenger: messenger}
}

func (s *linkStrategy) Name() string { return "link" }

func (s *linkStrategy) Deliver(ctx context.Context, target maxapi.ChatTarget, caption string, asset *fetch.Asset) (Outcome, error) {
	link, err := s.relayer.Relay(ctx, asset.Path)
	if err != nil {
		return Outcome{}, err
	}
	text := fmt.Sprintf("%s\n\n⚠️ Could not deliver as an attachment. Download: %s", caption, link)
	if _, err := s.messenger.SendMessage(ctx, target, text, nil); err != nil {
		return Outcome{}, err
	}
	return Outcome{Delivered: true, Via: ViaFallback, Link: link}, nil
}

// Chain tries each strategy in order and stops at the first success.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain builds the ordered delivery chain.
func NewChain(log *slog.Logger, strategies ...Strategy) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		strategies: strategies,
		logger:     log.With(slog.String("service", "deliver")),
	}
}

// Deliver runs the chain for one asset. The returned outcome is terminal: a
// failed outcome means every strategy was exhausted.
func (c *Chain) Deliver(ctx context.Context, target maxapi.ChatTarget, caption string, asset *fetch.Asset) Outcome {
	var lastErr error
	for _, strategy := range c.strategies {
		outcome, err := strategy.Deliver(ctx, target, caption, asset)
		if err == nil {
			return outcome
		}
		lastErr = err
		c.logger.Warn("delivery strategy failed",
			slog.String("strategy", strategy.Name()),
			slog.String("file", asset.Path),
			slog.Any("error", err),
		)
	}
	return Outcome{Delivered: false, Err: lastErr}
}
