package compress

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestAvailable(t *testing.T) {
	if NewClient("http://example.com", "").Available() {
		t.Fatal("client without a token must not be available")
	}
	if NewClient("", "tok").Available() {
		t.Fatal("client without a base URL must not be available")
	}
	if !NewClient("http://example.com", "tok").Available() {
		t.Fatal("configured client should be available")
	}
}

func TestCompress_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "original bytes original bytes" {
			t.Errorf("unexpected upload body: %q", body)
		}
		_, _ = w.Write([]byte("small"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, []byte("original bytes original bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL, "tok")
	if err := c.Compress(context.Background(), in, out); err != nil {
		t.Fatalf("compress: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "small" {
		t.Fatalf("expected compressed body, got %q", got)
	}
}

func TestCompress_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL, "tok")
	err := c.Compress(context.Background(), in, filepath.Join(dir, "out.pdf"))
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestCompress_MissingInput(t *testing.T) {
	c := NewClient("http://example.com", "tok")
	err := c.Compress(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), "out.pdf")
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
}
