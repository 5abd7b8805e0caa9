package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type stubBackend struct {
	name  string
	link  string
	err   error
	calls int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Upload(_ context.Context, _ string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.link, nil
}

func TestRelayFirstSuccessWins(t *testing.T) {
	primary := &stubBackend{name: "a", link: "https://a/link"}
	secondary := &stubBackend{name: "b", link: "https://b/link"}
	r := NewRouter(nil, primary, secondary)

	link, err := r.Relay(context.Background(), "/tmp/f.mp4")
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if link != "https://a/link" {
		t.Fatalf("link = %q", link)
	}
	if secondary.calls != 0 {
		t.Fatal("later backend tried after success")
	}
}

func TestRelayFallsThrough(t *testing.T) {
	broken := &stubBackend{name: "a", err: errors.New("quota")}
	working := &stubBackend{name: "b", link: "https://b/link"}
	r := NewRouter(nil, broken, working)

	link, err := r.Relay(context.Background(), "/tmp/f.mp4")
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if link != "https://b/link" {
		t.Fatalf("link = %q", link)
	}
	if broken.calls != 1 || working.calls != 1 {
		t.Fatalf("calls a=%d b=%d", broken.calls, working.calls)
	}
}

func TestRelayExhausted(t *testing.T) {
	r := NewRouter(nil,
		&stubBackend{name: "a", err: errors.New("down")},
		&stubBackend{name: "b", err: errors.New("also down")},
	)
	_, err := r.Relay(context.Background(), "/tmp/f.mp4")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestRelayNoBackends(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Relay(context.Background(), "/tmp/f.mp4")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func writeLocalFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestDiskBackendUpload(t *testing.T) {
	var folderCreated, published bool
	var uploadedBytes []byte
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("PUT /resources", func(w http.ResponseWriter, r *http.Request) {
		folderCreated = true
		if r.URL.Query().Get("path") != "relay" {
			t.Errorf("folder path = %q", r.URL.Query().Get("path"))
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /resources/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("overwrite") != "true" {
			t.Errorf("overwrite = %q", r.URL.Query().Get("overwrite"))
		}
		fmt.Fprintf(w, `{"href":%q}`, server.URL+"/store")
	})
	mux.HandleFunc("PUT /store", func(w http.ResponseWriter, r *http.Request) {
		uploadedBytes, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("PUT /resources/publish", func(w http.ResponseWriter, r *http.Request) {
		published = true
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /resources", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") != "relay/clip.mp4" {
			t.Errorf("resource path = %q", r.URL.Query().Get("path"))
		}
		fmt.Fprint(w, `{"public_url":"https://disk.example/public/abc"}`)
	})

	b := NewDiskBackend(nil, server.URL, "tok", "relay")
	link, err := b.Upload(context.Background(), writeLocalFile(t, "clip.mp4", "videobytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if link != "https://disk.example/public/abc" {
		t.Fatalf("link = %q", link)
	}
	if !folderCreated || !published {
		t.Fatalf("folderCreated=%v published=%v", folderCreated, published)
	}
	if string(uploadedBytes) != "videobytes" {
		t.Fatalf("uploaded = %q", uploadedBytes)
	}
}

func TestDiskBackendFolderConflictIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("PUT /resources", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"DiskPathPointsToExistentDirectoryError"}`, http.StatusConflict)
	})
	mux.HandleFunc("GET /resources/upload", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"href":%q}`, server.URL+"/store")
	})
	mux.HandleFunc("PUT /store", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("PUT /resources/publish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /resources", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"public_url":"https://disk.example/public/x"}`)
	})

	b := NewDiskBackend(nil, server.URL, "tok", "relay")
	if _, err := b.Upload(context.Background(), writeLocalFile(t, "a.jpg", "x")); err != nil {
		t.Fatalf("upload with existing folder: %v", err)
	}
}

func TestAnonHostBackendUpload(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("GET /nodes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"nodes":[{"url":%q}]}`, server.URL+"/node1")
	})
	mux.HandleFunc("POST /node1", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "clip.mp4" {
			t.Errorf("filename = %q", header.Filename)
		}
		fmt.Fprint(w, `{"download_page":"https://anon.example/d/xyz"}`)
	})

	b := NewAnonHostBackend(nil, server.URL)
	link, err := b.Upload(context.Background(), writeLocalFile(t, "clip.mp4", "v"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if link != "https://anon.example/d/xyz" {
		t.Fatalf("link = %q", link)
	}
}

func TestAnonHostNoNodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"nodes":[]}`)
	}))
	defer server.Close()

	b := NewAnonHostBackend(nil, server.URL)
	if _, err := b.Upload(context.Background(), writeLocalFile(t, "a.bin", "x")); err == nil {
		t.Fatal("expected error when no nodes are available")
	}
}
