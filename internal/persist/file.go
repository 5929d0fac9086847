// ABOUTME: File-backed persistence slot - the snapshot lives in one JSON file
// ABOUTME: Lighter alternative to the sqlite slot for single-user installs

package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSlot stores the snapshot as a single file on disk.
type FileSlot struct {
	path string
}

// NewFileSlot creates a slot backed by the file at path. The file is created
// on first save.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// Save writes the value, creating parent directories if needed.
func (s *FileSlot) Save(_ context.Context, value []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating slot directory: %w", err)
	}
	if err := os.WriteFile(s.path, value, 0644); err != nil {
		return fmt.Errorf("writing slot file: %w", err)
	}
	return nil
}

// Load returns the file contents, or ErrSlotEmpty if the file does not exist.
func (s *FileSlot) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("reading slot file: %w", err)
	}
	return data, nil
}

// Close is a no-op for file slots.
func (s *FileSlot) Close() error {
	return nil
}
