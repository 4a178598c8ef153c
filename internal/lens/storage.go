package lens

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keeps scanned images
type Storage interface {
	// Save writes data under name and returns the key to read it back
	Save(name string, data []byte) (string, error)

	Get(key string) ([]byte, error)

	Delete(key string) error
}

// LocalStorage implements Storage on a directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// path confines key to the storage directory
func (l *LocalStorage) path(key string) (string, error) {
	name := filepath.Base(filepath.Clean(key))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.basePath, name), nil
}

// Save writes an image to the storage directory
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := l.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filepath.Base(path), nil
}

// Get reads an image back
func (l *LocalStorage) Get(key string) ([]byte, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an image
func (l *LocalStorage) Delete(key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
