package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/verdantlab/plantarium/internal/domain/stock"
)

func TestUploadReturnsStableURLs(t *testing.T) {
	t.Parallel()
	store, err := New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	pictures := []stock.Picture{
		{Name: "fern.jpg", Data: []byte("picture-bytes")},
		{Name: "roots.png", Data: []byte("other-bytes")},
	}

	urls, err := store.Upload(ctx, "stock-1", pictures)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("Upload() returned %d urls, want 2", len(urls))
	}
	if filepath.Ext(urls[0]) != ".jpg" || filepath.Ext(urls[1]) != ".png" {
		t.Fatalf("Upload() urls = %v, want original extensions kept", urls)
	}

	// Same content, same URL: uploads are idempotent.
	again, err := store.Upload(ctx, "stock-1", pictures[:1])
	if err != nil {
		t.Fatalf("Upload() again error = %v", err)
	}
	if again[0] != urls[0] {
		t.Fatalf("re-upload url = %q, want %q", again[0], urls[0])
	}
}

func TestUploadWritesFiles(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "uploads")
	store, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Upload(context.Background(), "stock-1",
		[]stock.Picture{{Name: "fern", Data: []byte("bytes")}}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "stock-1"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("owner dir holds %d files, want 1", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".bin" {
		t.Fatalf("stored name = %q, want .bin fallback extension", entries[0].Name())
	}
}

func TestUploadEmptyBatch(t *testing.T) {
	t.Parallel()
	store, err := New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	urls, err := store.Upload(context.Background(), "stock-1", nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if urls != nil {
		t.Fatalf("Upload() = %v, want nil for empty batch", urls)
	}
}
