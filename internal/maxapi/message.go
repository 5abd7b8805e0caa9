package maxapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Update is one inbound platform event.
type Update struct {
	UpdateType string   `json:"update_type"`
	Timestamp  int64    `json:"timestamp"`
	Message    *Message `json:"message,omitempty"`
	ChatID     int64    `json:"chat_id,omitempty"`
}

// Update types consumed by the bot.
const (
	UpdateMessageCreated = "message_created"
	UpdateBotStarted     = "bot_started"
)

// Message is an inbound chat message.
type Message struct {
	Body      MessageBody `json:"body"`
	Recipient Recipient   `json:"recipient"`
}

// MessageBody holds the message id and text.
type MessageBody struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

// Recipient identifies the chat a message was sent to.
type Recipient struct {
	ChatID int64 `json:"chat_id"`
}

// UpdateBatch is one page of updates with the continuation marker.
type UpdateBatch struct {
	Updates []Update `json:"updates"`
	Marker  int64    `json:"marker"`
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

type sendMessageResponse struct {
	Message struct {
		Body MessageBody `json:"body"`
	} `json:"message"`
}

// SendMessage posts a message to the chat, returning the created message id.
// A failure caused by a still-processing attachment is returned wrapping
// ErrNotReady so callers can distinguish it from permanent errors.
func (c *Client) SendMessage(ctx context.Context, target ChatTarget, text string, attachments []Attachment) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if attachments == nil {
		attachments = []Attachment{}
	}
	payload := sendMessageRequest{
		ChatID:      int64(target),
		Text:        text,
		Attachments: attachments,
	}
	var resp sendMessageResponse
	err := c.doJSON(ctx, http.MethodPost, "/messages", nil, payload, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == codeNotReady {
			return "", fmt.Errorf("send to chat %d: %w", target, ErrNotReady)
		}
		return "", err
	}
	return resp.Message.Body.MID, nil
}

// EditMessage replaces the text of an already sent message.
func (c *Client) EditMessage(ctx context.Context, messageID, text string) error {
	query := url.Values{"message_id": {messageID}}
	payload := map[string]string{"text": text}
	return c.doJSON(ctx, http.MethodPut, "/messages", query, payload, nil)
}

// DeleteMessage removes a sent message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	query := url.Values{"message_id": {messageID}}
	return c.doJSON(ctx, http.MethodDelete, "/messages", query, nil, nil)
}

// Updates long-polls the platform for new events starting after marker.
func (c *Client) Updates(ctx context.Context, marker int64, timeoutSeconds int) (UpdateBatch, error) {
	query := url.Values{
		"timeout": {strconv.Itoa(timeoutSeconds)},
	}
	if marker > 0 {
		query.Set("marker", strconv.FormatInt(marker, 10))
	}
	var batch UpdateBatch
	if err := c.doJSON(ctx, http.MethodGet, "/updates", query, nil, &batch); err != nil {
		return UpdateBatch{}, err
	}
	return batch, nil
}

// SubscribeWebhook registers url to receive updates instead of long polling.
func (c *Client) SubscribeWebhook(ctx context.Context, webhookURL string) error {
	payload := map[string]any{
		"url":          webhookURL,
		"update_types": []string{UpdateMessageCreated, UpdateBotStarted},
	}
	return c.doJSON(ctx, http.MethodPost, "/subscriptions", nil, payload, nil)
}
