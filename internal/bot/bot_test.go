package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/maxgrab/maxgrab/internal/deliver"
	"github.com/maxgrab/maxgrab/internal/maxapi"
	"github.com/maxgrab/maxgrab/internal/media"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	deleted []string
	sendErr error
}

func (a *fakeAPI) SendMessage(_ context.Context, _ maxapi.ChatTarget, text string, _ []maxapi.Attachment) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return "", a.sendErr
	}
	a.sent = append(a.sent, text)
	return "mid.status", nil
}

func (a *fakeAPI) EditMessage(_ context.Context, messageID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, messageID+": "+text)
	return nil
}

func (a *fakeAPI) DeleteMessage(_ context.Context, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, messageID)
	return nil
}

func (a *fakeAPI) Updates(context.Context, int64, int) (maxapi.UpdateBatch, error) {
	return maxapi.UpdateBatch{}, nil
}

type fakeResolver struct {
	desc media.Descriptor
	err  error
	urls []string
}

func (r *fakeResolver) Resolve(_ context.Context, url string) (media.Descriptor, error) {
	r.urls = append(r.urls, url)
	return r.desc, r.err
}

type fakeCoordinator struct {
	report deliver.Report
	runs   int
}

func (c *fakeCoordinator) Run(context.Context, maxapi.ChatTarget, media.Descriptor) deliver.Report {
	c.runs++
	return c.report
}

func messageUpdate(text string) maxapi.Update {
	return maxapi.Update{
		UpdateType: maxapi.UpdateMessageCreated,
		Message: &maxapi.Message{
			Body:      maxapi.MessageBody{MID: "mid.in", Text: text},
			Recipient: maxapi.Recipient{ChatID: 7},
		},
	}
}

func newTestService(api *fakeAPI, resolver *fakeResolver, coordinator *fakeCoordinator) *Service {
	return NewService(nil, api, resolver, coordinator, 30)
}

func waitRuns(s *Service) { s.wg.Wait() }

func TestStartCommandGreets(t *testing.T) {
	api := &fakeAPI{}
	s := newTestService(api, &fakeResolver{}, &fakeCoordinator{})

	s.HandleUpdate(context.Background(), messageUpdate("/start"))
	waitRuns(s)

	if len(api.sent) != 1 || api.sent[0] != greetingText {
		t.Fatalf("sent = %q, want greeting", api.sent)
	}
}

func TestBotStartedEventGreets(t *testing.T) {
	api := &fakeAPI{}
	s := newTestService(api, &fakeResolver{}, &fakeCoordinator{})

	s.HandleUpdate(context.Background(), maxapi.Update{UpdateType: maxapi.UpdateBotStarted, ChatID: 7})

	if len(api.sent) != 1 || api.sent[0] != greetingText {
		t.Fatalf("sent = %q, want greeting", api.sent)
	}
}

func TestNonURLTextGetsHint(t *testing.T) {
	api := &fakeAPI{}
	resolver := &fakeResolver{}
	s := newTestService(api, resolver, &fakeCoordinator{})

	s.HandleUpdate(context.Background(), messageUpdate("hello there"))
	waitRuns(s)

	if len(api.sent) != 1 || api.sent[0] != hintText {
		t.Fatalf("sent = %q, want hint", api.sent)
	}
	if len(resolver.urls) != 0 {
		t.Fatalf("resolver called for non-URL text: %v", resolver.urls)
	}
}

func TestURLExtractedFromSurroundingText(t *testing.T) {
	api := &fakeAPI{}
	resolver := &fakeResolver{desc: media.Single(media.Item{Title: "t", FileExtension: "mp4"})}
	coordinator := &fakeCoordinator{report: deliver.Report{AnySucceeded: true}}
	s := newTestService(api, resolver, coordinator)

	s.HandleUpdate(context.Background(), messageUpdate("check this out https://example.com/v please"))
	waitRuns(s)

	if len(resolver.urls) != 1 || resolver.urls[0] != "https://example.com/v" {
		t.Fatalf("resolved urls = %v", resolver.urls)
	}
	if coordinator.runs != 1 {
		t.Fatalf("coordinator runs = %d, want 1", coordinator.runs)
	}
}

func TestStatusDeletedOnSuccess(t *testing.T) {
	api := &fakeAPI{}
	resolver := &fakeResolver{desc: media.Single(media.Item{Title: "t", FileExtension: "mp4"})}
	coordinator := &fakeCoordinator{report: deliver.Report{AnySucceeded: true}}
	s := newTestService(api, resolver, coordinator)

	s.HandleUpdate(context.Background(), messageUpdate("https://example.com/v"))
	waitRuns(s)

	if len(api.sent) != 1 || api.sent[0] != statusResolving {
		t.Fatalf("sent = %q, want resolving status", api.sent)
	}
	if len(api.edits) != 1 || api.edits[0] != "mid.status: "+statusDownloading {
		t.Fatalf("edits = %q", api.edits)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "mid.status" {
		t.Fatalf("deleted = %q, want the status message", api.deleted)
	}
}

func TestStatusEditedOnResolveFailure(t *testing.T) {
	api := &fakeAPI{}
	resolver := &fakeResolver{err: errors.New("unsupported url")}
	coordinator := &fakeCoordinator{}
	s := newTestService(api, resolver, coordinator)

	s.HandleUpdate(context.Background(), messageUpdate("https://example.com/broken"))
	waitRuns(s)

	if coordinator.runs != 0 {
		t.Fatal("coordinator must not run on resolve failure")
	}
	if len(api.deleted) != 0 {
		t.Fatal("status must not be deleted on failure")
	}
	if len(api.edits) != 1 || api.edits[0] != "mid.status: "+statusFailed {
		t.Fatalf("edits = %q", api.edits)
	}
}

func TestStatusEditedOnWhollyFailedBatch(t *testing.T) {
	api := &fakeAPI{}
	resolver := &fakeResolver{desc: media.Single(media.Item{Title: "t", FileExtension: "mp4"})}
	coordinator := &fakeCoordinator{report: deliver.Report{AnySucceeded: false}}
	s := newTestService(api, resolver, coordinator)

	s.HandleUpdate(context.Background(), messageUpdate("https://example.com/v"))
	waitRuns(s)

	if len(api.deleted) != 0 {
		t.Fatal("status must not be deleted when nothing was delivered")
	}
	want := "mid.status: " + statusFailed
	if len(api.edits) != 2 || api.edits[1] != want {
		t.Fatalf("edits = %q, want last edit %q", api.edits, want)
	}
}
