package custody

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileLegacyStore reads the pre-migration plaintext phrase from a file on
// disk, the storage format older installations used before encrypted setup.
type FileLegacyStore struct {
	path string
}

var _ LegacyStore = (*FileLegacyStore)(nil)

func NewFileLegacyStore(path string) *FileLegacyStore {
	return &FileLegacyStore{path: path}
}

// ReadPhrase returns the stored phrase, or "" when no legacy file exists.
func (f *FileLegacyStore) ReadPhrase(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read legacy phrase: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ErasePhrase overwrites the file before removing it so the plaintext does
// not linger on disk.
func (f *FileLegacyStore) ErasePhrase(ctx context.Context) error {
	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat legacy phrase: %w", err)
	}

	if err := os.WriteFile(f.path, make([]byte, info.Size()), 0o600); err != nil {
		return fmt.Errorf("overwrite legacy phrase: %w", err)
	}
	if err := os.Remove(f.path); err != nil {
		return fmt.Errorf("remove legacy phrase: %w", err)
	}
	return nil
}
