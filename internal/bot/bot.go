// Package bot turns inbound platform events into media relay runs. It owns
// the conversational surface: greeting, hints, the per-link status message,
// and the hand-off to the batch coordinator.
package bot

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxgrab/maxgrab/internal/deliver"
	"github.com/maxgrab/maxgrab/internal/logger"
	"github.com/maxgrab/maxgrab/internal/maxapi"
	"github.com/maxgrab/maxgrab/internal/media"
)

const (
	greetingText = "👋 Send me a link to a video or post and I will fetch the media for you."
	hintText     = "🤔 That does not look like a link. Send a URL starting with http:// or https://."

	statusResolving   = "🔍 Resolving the link…"
	statusDownloading = "⬇️ Downloading…"
	statusFailed      = "❌ Could not process the link."
)

// pollRetryDelay spaces out retries when the updates endpoint is failing.
const pollRetryDelay = 2 * time.Second

var urlPattern = regexp.MustCompile(`https?://\S+`)

// API is the slice of the platform client the bot drives.
type API interface {
	SendMessage(ctx context.Context, target maxapi.ChatTarget, text string, attachments []maxapi.Attachment) (string, error)
	EditMessage(ctx context.Context, messageID, text string) error
	DeleteMessage(ctx context.Context, messageID string) error
	Updates(ctx context.Context, marker int64, timeoutSeconds int) (maxapi.UpdateBatch, error)
}

// Resolver maps one input URL to a media descriptor.
type Resolver interface {
	Resolve(ctx context.Context, url string) (media.Descriptor, error)
}

// Coordinator runs the full fetch-and-deliver flow for one descriptor.
type Coordinator interface {
	Run(ctx context.Context, target maxapi.ChatTarget, desc media.Descriptor) deliver.Report
}

type Service struct {
	api         API
	resolver    Resolver
	coordinator Coordinator
	pollTimeout int
	logger      *slog.Logger

	wg sync.WaitGroup
}

func NewService(log *slog.Logger, client API, resolver Resolver, coordinator Coordinator, pollTimeoutSeconds int) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		api:         client,
		resolver:    resolver,
		coordinator: coordinator,
		pollTimeout: pollTimeoutSeconds,
		logger:      log.With(slog.String("service", "bot")),
	}
}

// Run long-polls for updates until the context is cancelled, then waits for
// in-flight relay runs to finish.
func (s *Service) Run(ctx context.Context) error {
	defer s.wg.Wait()
	var marker int64
	for {
		batch, err := s.api.Updates(ctx, marker, s.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("poll updates failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		marker = batch.Marker
		for _, update := range batch.Updates {
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one inbound event. Relay runs detach onto their own
// goroutine so a slow download never stalls the poll loop.
func (s *Service) HandleUpdate(ctx context.Context, update maxapi.Update) {
	switch update.UpdateType {
	case maxapi.UpdateBotStarted:
		s.reply(ctx, maxapi.ChatTarget(update.ChatID), greetingText)
	case maxapi.UpdateMessageCreated:
		if update.Message == nil {
			return
		}
		s.handleMessage(ctx, *update.Message)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg maxapi.Message) {
	target := maxapi.ChatTarget(msg.Recipient.ChatID)
	text := strings.TrimSpace(msg.Body.Text)

	if strings.HasPrefix(text, "/start") {
		s.reply(ctx, target, greetingText)
		return
	}

	url := urlPattern.FindString(text)
	if url == "" {
		s.reply(ctx, target, hintText)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processURL(ctx, target, url)
	}()
}

// processURL is the per-link pipeline: status message, resolve, relay,
// status cleanup. Each run carries its own id through the context logger.
func (s *Service) processURL(ctx context.Context, target maxapi.ChatTarget, url string) {
	log := s.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("url", url),
	)
	ctx = logger.WithContext(ctx, log)
	log.Info("relay run started")

	statusID, err := s.api.SendMessage(ctx, target, statusResolving, nil)
	if err != nil {
		log.Warn("status message not sent", slog.Any("error", err))
	}

	desc, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		log.Error("resolve failed", slog.Any("error", err))
		s.finishStatus(ctx, statusID, statusFailed, false)
		return
	}

	s.editStatus(ctx, statusID, statusDownloading)

	report := s.coordinator.Run(ctx, target, desc)
	s.finishStatus(ctx, statusID, statusFailed, report.AnySucceeded)
	log.Info("relay run finished",
		slog.Int("items", len(report.Outcomes)),
		slog.Bool("any_succeeded", report.AnySucceeded),
	)
}

func (s *Service) reply(ctx context.Context, target maxapi.ChatTarget, text string) {
	if _, err := s.api.SendMessage(ctx, target, text, nil); err != nil {
		s.logger.Warn("reply not sent", slog.Any("error", err))
	}
}

func (s *Service) editStatus(ctx context.Context, statusID, text string) {
	if statusID == "" {
		return
	}
	if err := s.api.EditMessage(ctx, statusID, text); err != nil {
		s.logger.Warn("status edit failed", slog.Any("error", err))
	}
}

// finishStatus deletes the status message on success and rewrites it to the
// failure text otherwise.
func (s *Service) finishStatus(ctx context.Context, statusID, failureText string, succeeded bool) {
	if statusID == "" {
		return
	}
	if succeeded {
		if err := s.api.DeleteMessage(ctx, statusID); err != nil {
			s.logger.Warn("status delete failed", slog.Any("error", err))
		}
		return
	}
	s.editStatus(ctx, statusID, failureText)
}
