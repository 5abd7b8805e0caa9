package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DiskBackend relays files through a cloud-drive REST API: ensure the target
// folder exists, obtain an upload href, PUT the bytes with overwrite, publish
// the resource, and fetch its public link.
type DiskBackend struct {
	baseURL string
	token   string
	folder  string
	http    *http.Client
	logger  *slog.Logger
}

// NewDiskBackend creates a disk backend rooted at folder on the drive.
func NewDiskBackend(log *slog.Logger, baseURL, token, folder string) *DiskBackend {
	if log == nil {
		log = slog.Default()
	}
	return &DiskBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		folder:  folder,
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  log.With(slog.String("backend", "disk")),
	}
}

// Name implements Backend.
func (b *DiskBackend) Name() string { return "disk" }

// Upload implements Backend.
func (b *DiskBackend) Upload(ctx context.Context, localPath string) (string, error) {
	if err := b.ensureFolder(ctx); err != nil {
		return "", fmt.Errorf("ensure folder: %w", err)
	}
	remotePath := path.Join(b.folder, filepath.Base(localPath))
	if err := b.uploadFile(ctx, remotePath, localPath); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := b.publish(ctx, remotePath); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	link, err := b.publicLink(ctx, remotePath)
	if err != nil {
		return "", fmt.Errorf("public link: %w", err)
	}
	return link, nil
}

// ensureFolder creates the target folder; an already-existing folder is
// success, not an error.
func (b *DiskBackend) ensureFolder(ctx context.Context) error {
	resp, err := b.do(ctx, http.MethodPut, "/resources", url.Values{"path": {b.folder}}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	return checkStatus(resp)
}

func (b *DiskBackend) uploadFile(ctx context.Context, remotePath, localPath string) error {
	resp, err := b.do(ctx, http.MethodGet, "/resources/upload", url.Values{
		"path":      {remotePath},
		"overwrite": {"true"},
	}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	var slot struct {
		Href string `json:"href"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		return fmt.Errorf("decode upload href: %w", err)
	}
	if slot.Href == "" {
		return fmt.Errorf("upload href missing")
	}

	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.Href, file)
	if err != nil {
		return err
	}
	if info, statErr := file.Stat(); statErr == nil {
		req.ContentLength = info.Size()
	}
	putResp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer putResp.Body.Close()
	return checkStatus(putResp)
}

func (b *DiskBackend) publish(ctx context.Context, remotePath string) error {
	resp, err := b.do(ctx, http.MethodPut, "/resources/publish", url.Values{"path": {remotePath}}, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (b *DiskBackend) publicLink(ctx context.Context, remotePath string) (string, error) {
	resp, err := b.do(ctx, http.MethodGet, "/resources", url.Values{"path": {remotePath}}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var resource struct {
		PublicURL string `json:"public_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&resource); err != nil {
		return "", fmt.Errorf("decode resource: %w", err)
	}
	if resource.PublicURL == "" {
		return "", fmt.Errorf("resource has no public url")
	}
	return resource.PublicURL, nil
}

func (b *DiskBackend) do(ctx context.Context, method, apiPath string, query url.Values, body io.Reader) (*http.Response, error) {
	endpoint := b.baseURL + apiPath
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+b.token)
	return b.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
