package maxapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/maxgrab/maxgrab/internal/media"
)

// MediaClass is the upload-protocol category governing which handshake
// variant applies.
type MediaClass string

const (
	ClassVideo MediaClass = "video"
	ClassAudio MediaClass = "audio"
	ClassImage MediaClass = "image"
	ClassFile  MediaClass = "file"
)

// ClassForKind maps a media kind to its native upload class.
func ClassForKind(kind media.Kind) MediaClass {
	if kind == media.KindVideo {
		return ClassVideo
	}
	return ClassImage
}

// VideoSlot is a server-issued upload slot for the video/audio class. The
// final attachment token is issued together with the slot; the byte upload
// only confirms that the bytes landed.
type VideoSlot struct {
	URL   string
	Token string
}

// ImageSlot is a server-issued upload slot for the image/file class. The
// token arrives only in the byte-upload response.
type ImageSlot struct {
	URL string
}

// Attachment references a finalized uploaded asset in a send-message call.
type Attachment struct {
	Type    MediaClass        `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

// AttachmentPayload carries the opaque server-issued token.
type AttachmentPayload struct {
	Token string `json:"token"`
}

type uploadSlotResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// RequestVideoSlot requests a fresh upload slot for the video or audio class.
// The response must already carry the attachment token.
func (c *Client) RequestVideoSlot(ctx context.Context, class MediaClass) (VideoSlot, error) {
	if class != ClassVideo && class != ClassAudio {
		return VideoSlot{}, fmt.Errorf("class %q does not use video slots", class)
	}
	slot, err := c.requestSlot(ctx, class)
	if err != nil {
		return VideoSlot{}, err
	}
	if slot.Token == "" {
		return VideoSlot{}, fmt.Errorf("upload slot for class %q is missing a token", class)
	}
	return VideoSlot{URL: slot.URL, Token: slot.Token}, nil
}

// RequestImageSlot requests a fresh upload slot for the image or file class.
func (c *Client) RequestImageSlot(ctx context.Context, class MediaClass) (ImageSlot, error) {
	if class != ClassImage && class != ClassFile {
		return ImageSlot{}, fmt.Errorf("class %q does not use image slots", class)
	}
	slot, err := c.requestSlot(ctx, class)
	if err != nil {
		return ImageSlot{}, err
	}
	return ImageSlot{URL: slot.URL}, nil
}

func (c *Client) requestSlot(ctx context.Context, class MediaClass) (uploadSlotResponse, error) {
	var slot uploadSlotResponse
	query := url.Values{"type": {string(class)}}
	if err := c.doJSON(ctx, http.MethodPost, "/uploads", query, nil, &slot); err != nil {
		return uploadSlotResponse{}, err
	}
	if slot.URL == "" {
		return uploadSlotResponse{}, fmt.Errorf("upload slot for class %q is missing a url", class)
	}
	return slot, nil
}

// UploadVideo transfers the file bytes to the slot URL. Only the HTTP status
// of the response matters; the body carries no usable token, so the token
// from the slot request is returned. One attempt, no internal retry.
func (c *Client) UploadVideo(ctx context.Context, slot VideoSlot, localPath string) (string, error) {
	if _, err := c.uploadMultipart(ctx, slot.URL, localPath); err != nil {
		return "", err
	}
	return slot.Token, nil
}

// UploadImage transfers the file bytes to the slot URL and parses the
// attachment token from the response body. A response without a token field
// is a protocol error, not a silent default.
func (c *Client) UploadImage(ctx context.Context, slot ImageSlot, localPath string) (string, error) {
	body, err := c.uploadMultipart(ctx, slot.URL, localPath)
	if err != nil {
		return "", err
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("upload response is missing a token")
	}
	return result.Token, nil
}

// UploadAttachment runs the full handshake for one local file: request a
// fresh slot for the class, upload the bytes, and return the attachment
// carrying the finalized token.
func (c *Client) UploadAttachment(ctx context.Context, class MediaClass, localPath string) (Attachment, error) {
	var (
		token string
		err   error
	)
	switch class {
	case ClassVideo, ClassAudio:
		var slot VideoSlot
		slot, err = c.RequestVideoSlot(ctx, class)
		if err == nil {
			token, err = c.UploadVideo(ctx, slot, localPath)
		}
	default:
		var slot ImageSlot
		slot, err = c.RequestImageSlot(ctx, class)
		if err == nil {
			token, err = c.UploadImage(ctx, slot, localPath)
		}
	}
	if err != nil {
		return Attachment{}, err
	}
	c.logger.Info("uploaded attachment",
		slog.String("class", string(class)),
		slog.String("file", filepath.Base(localPath)),
	)
	return Attachment{Type: class, Payload: AttachmentPayload{Token: token}}, nil
}

// uploadMultipart sends the file as the single multipart field "data" with
// its original basename preserved.
func (c *Client) uploadMultipart(ctx context.Context, uploadURL, localPath string) ([]byte, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("data", filepath.Base(localPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}
