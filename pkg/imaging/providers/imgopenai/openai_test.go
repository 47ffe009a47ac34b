package imgopenai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchImageRef_DownloadsHTTPURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if _, err := w.Write([]byte("png-bytes")); err != nil {
			t.Errorf("write: %v", err)
		}
	}))
	defer srv.Close()

	p := New("test-key")
	data, mimeType, err := p.fetchImageRef(context.Background(), srv.URL+"/in.png")
	if err != nil {
		t.Fatalf("fetchImageRef: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}
	if mimeType != "image/png" {
		t.Fatalf("mime type = %q", mimeType)
	}
}

func TestFetchImageRef_HTTPErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := New("test-key")
	_, _, err := p.fetchImageRef(context.Background(), srv.URL+"/missing.png")
	if err == nil || !strings.Contains(err.Error(), "OPENAI_IMAGE_FETCH_FAILED") {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchImageRef_ReadsLocalPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	if err := os.WriteFile(path, []byte("local-bytes"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	p := New("test-key")
	for _, ref := range []string{path, "file://" + path} {
		data, mimeType, err := p.fetchImageRef(context.Background(), ref)
		if err != nil {
			t.Fatalf("fetchImageRef(%q): %v", ref, err)
		}
		if string(data) != "local-bytes" {
			t.Fatalf("fetchImageRef(%q) data = %q", ref, data)
		}
		if mimeType == "" {
			t.Fatalf("fetchImageRef(%q) returned no mime type", ref)
		}
	}
}

func TestFetchImageRef_RejectsUnsupportedScheme(t *testing.T) {
	p := New("test-key")
	_, _, err := p.fetchImageRef(context.Background(), "s3://bucket/key.png")
	if err == nil || !strings.Contains(err.Error(), "OPENAI_UNSUPPORTED_IMAGE_REF") {
		t.Fatalf("err = %v", err)
	}
}
