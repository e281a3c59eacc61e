package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedType = errors.New("unsupported file type")

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Store keeps uploaded scans on local disk, one directory per form type.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Allowed reports whether name has an accepted scan extension.
func Allowed(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Save writes content under <root>/<category>/<uuid><ext> and returns the
// stored path.
func (s *Store) Save(category, originalName string, content io.Reader) (string, error) {
	if !Allowed(originalName) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(originalName))
	}

	dir := filepath.Join(s.root, filepath.Base(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(originalName)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, nil
}

// Open returns a reader for a previously stored file.
func (s *Store) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
