// Package objectstore keeps raw uploaded file bytes. Only puts and deletes
// are needed; the pipeline never reads a file back.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var ErrInvalidKey = errors.New("invalid object key")

type Store struct {
	fs afero.Fs
}

// NewLocal stores objects under root on the local disk.
func NewLocal(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create object root failed: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Key is the object key of a tenant's uploaded file.
func Key(tenantID, documentID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "file"
	}
	return fmt.Sprintf("users/%s/files/%s_%s", tenantID, documentID, name)
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(clean), 0o750); err != nil {
		return fmt.Errorf("create object dir failed: %w", err)
	}
	if err := afero.WriteFile(s.fs, clean, data, 0o640); err != nil {
		return fmt.Errorf("write object %s failed: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %s failed: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix, e.g. all of a tenant's files.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	clean, err := cleanKey(prefix)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(clean); err != nil {
		return fmt.Errorf("delete objects under %s failed: %w", prefix, err)
	}
	return nil
}

func (s *Store) Exists(key string) (bool, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, clean)
}

// TenantPrefix is the key prefix shared by all of a tenant's files.
func TenantPrefix(tenantID string) string {
	return "users/" + tenantID
}

func cleanKey(key string) (string, error) {
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
