// Package maxapi is a client for the MAX messenger platform API: message
// sending, the multi-step media upload handshake, and update retrieval.
package maxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotReady classifies a send failure meaning the uploaded attachment is
// still processing server-side. It is the only transient send error; the
// readiness poller retries exclusively on it.
var ErrNotReady = errors.New("attachment not ready")

const codeNotReady = "attachment.not.ready"

// StatusError is a non-2xx platform API response, carrying the HTTP status
// and response body for diagnostics.
type StatusError struct {
	Status int
	Code   string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("max api status %d: %s", e.Status, e.Body)
}

// ChatTarget is the opaque recipient identifier threaded unchanged from the
// inbound event to every outbound call.
type ChatTarget int64

// Client talks to the MAX platform API with a bearer token. Outbound message
// sends go through a rate limiter so batch delivery stays inside platform
// limits.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a platform API client. sendRate limits messages per
// second with the given burst.
func NewClient(log *slog.Logger, baseURL, token string, sendRate float64, burst int) *Client {
	if log == nil {
		log = slog.Default()
	}
	if sendRate <= 0 {
		sendRate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
		limiter: rate.NewLimiter(rate.Limit(sendRate), burst),
		logger:  log.With(slog.String("service", "maxapi")),
	}
}

// doJSON performs one API request. A non-2xx response is returned as a
// *StatusError with the body preserved; 204 and empty bodies leave out
// untouched.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newStatusError(status int, body []byte) *StatusError {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	return &StatusError{
		Status: status,
		Code:   apiErr.Code,
		Body:   strings.TrimSpace(string(body)),
	}
}
