package maxapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChatID != 42 {
			t.Errorf("chat_id = %d", req.ChatID)
		}
		if req.Attachments == nil {
			t.Error("attachments must be present, even when empty")
		}
		fmt.Fprint(w, `{"message":{"body":{"mid":"m-1"}}}`)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, "tok", 100, 10)
	mid, err := c.SendMessage(context.Background(), ChatTarget(42), "hello", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if mid != "m-1" {
		t.Fatalf("mid = %q", mid)
	}
}

func TestSendMessageNotReadyClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"attachment.not.ready","message":"processing"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, "tok", 100, 10)
	_, err := c.SendMessage(context.Background(), ChatTarget(1), "x", []Attachment{{Type: ClassVideo}})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestSendMessageOtherErrorNotMasked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"chat.not.found","message":"gone"}`, http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, "tok", 100, 10)
	_, err := c.SendMessage(context.Background(), ChatTarget(1), "x", nil)
	if errors.Is(err, ErrNotReady) {
		t.Fatal("permanent error classified as not-ready")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestEditAndDeleteMessage(t *testing.T) {
	var gotEdit, gotDelete string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			gotEdit = r.URL.Query().Get("message_id")
		case http.MethodDelete:
			gotDelete = r.URL.Query().Get("message_id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, "tok", 100, 10)
	if err := c.EditMessage(context.Background(), "m-9", "updated"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := c.DeleteMessage(context.Background(), "m-9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotEdit != "m-9" || gotDelete != "m-9" {
		t.Fatalf("message_id edit=%q delete=%q", gotEdit, gotDelete)
	}
}

func TestUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("marker") != "10" {
			t.Errorf("marker = %q", r.URL.Query().Get("marker"))
		}
		fmt.Fprint(w, `{
			"updates": [
				{"update_type":"message_created","message":{"body":{"mid":"m1","text":"hi"},"recipient":{"chat_id":7}}},
				{"update_type":"bot_started","chat_id":9}
			],
			"marker": 12
		}`)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, "tok", 100, 10)
	batch, err := c.Updates(context.Background(), 10, 30)
	if err != nil {
		t.Fatalf("updates: %v", err)
	}
	if batch.Marker != 12 {
		t.Fatalf("marker = %d", batch.Marker)
	}
	if len(batch.Updates) != 2 {
		t.Fatalf("updates = %d", len(batch.Updates))
	}
	first := batch.Updates[0]
	if first.UpdateType != UpdateMessageCreated || first.Message.Recipient.ChatID != 7 {
		t.Fatalf("unexpected first update: %+v", first)
	}
	if batch.Updates[1].ChatID != 9 {
		t.Fatalf("bot_started chat_id = %d", batch.Updates[1].ChatID)
	}
}

func TestSubscribeWebhook(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subscriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, "tok", 100, 10)
	if err := c.SubscribeWebhook(context.Background(), "https://bot.example/webhook/s3cret"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got["url"] != "https://bot.example/webhook/s3cret" {
		t.Fatalf("url = %v", got["url"])
	}
}
