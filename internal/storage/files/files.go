// Package files stores uploaded pictures on the local filesystem.
//
// Uploads are content-addressed: the stored name is derived from the picture
// bytes, so re-uploading the same picture is a no-op that yields the same URL.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/verdantlab/plantarium/internal/domain/stock"
)

// Store writes pictures under a root directory, one subdirectory per owner.
type Store struct {
	root string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Upload persists the pictures and returns their URLs in input order.
func (s *Store) Upload(ctx context.Context, ownerID string, pictures []stock.Picture) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pictures) == 0 {
		return nil, nil
	}
	dir := filepath.Join(s.root, ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create owner dir: %w", err)
	}
	urls := make([]string, 0, len(pictures))
	for _, picture := range pictures {
		sum := sha256.Sum256(picture.Data)
		name := hex.EncodeToString(sum[:16]) + ext(picture.Name)
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); os.IsNotExist(err) {
			if err := os.WriteFile(target, picture.Data, 0o644); err != nil {
				return nil, fmt.Errorf("write picture: %w", err)
			}
		}
		urls = append(urls, path.Join("files", ownerID, name))
	}
	return urls, nil
}

func ext(name string) string {
	if e := path.Ext(name); e != "" {
		return e
	}
	return ".bin"
}
