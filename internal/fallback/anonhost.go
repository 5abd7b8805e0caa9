package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AnonHostBackend relays files through a public anonymous file host: discover
// an available upload node, post the bytes, and receive a download page URL.
// Last tier of the chain: no account, no durability guarantees beyond the
// host's own retention.
type AnonHostBackend struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewAnonHostBackend creates an anonymous host backend for the given API base.
func NewAnonHostBackend(log *slog.Logger, baseURL string) *AnonHostBackend {
	if log == nil {
		log = slog.Default()
	}
	return &AnonHostBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  log.With(slog.String("backend", "anonhost")),
	}
}

// Name implements Backend.
func (b *AnonHostBackend) Name() string { return "anonhost" }

// Upload implements Backend.
func (b *AnonHostBackend) Upload(ctx context.Context, localPath string) (string, error) {
	node, err := b.pickNode(ctx)
	if err != nil {
		return "", fmt.Errorf("pick node: %w", err)
	}
	link, err := b.uploadToNode(ctx, node, localPath)
	if err != nil {
		return "", fmt.Errorf("upload to node: %w", err)
	}
	return link, nil
}

func (b *AnonHostBackend) pickNode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/nodes", nil)
	if err != nil {
		return "", err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var nodes struct {
		Nodes []struct {
			URL string `json:"url"`
		} `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return "", fmt.Errorf("decode nodes: %w", err)
	}
	if len(nodes.Nodes) == 0 || nodes.Nodes[0].URL == "" {
		return "", fmt.Errorf("no upload nodes available")
	}
	return nodes.Nodes[0].URL, nil
}

func (b *AnonHostBackend) uploadToNode(ctx context.Context, nodeURL, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(localPath))
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var result struct {
		DownloadPage string `json:"download_page"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload result: %w", err)
	}
	if result.DownloadPage == "" {
		return "", fmt.Errorf("upload result has no download page")
	}
	return result.DownloadPage, nil
}
