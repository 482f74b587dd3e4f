package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each token in its own file under a directory owned by the
// current user. Writes go through a temp file plus rename so a crash never
// leaves a half-written token behind.
type FileStore struct {
	dir        string
	accessKey  string
	refreshKey string
}

func NewFileStore(dir string, accessKey string, refreshKey string) (*FileStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		dir = filepath.Join(base, "rdportal")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	if accessKey == "" {
		accessKey = "access_token"
	}
	if refreshKey == "" {
		refreshKey = "refresh_token"
	}
	return &FileStore{dir: dir, accessKey: accessKey, refreshKey: refreshKey}, nil
}

func (s *FileStore) Access(_ context.Context) (string, error) {
	return s.read(s.accessKey)
}

func (s *FileStore) SetAccess(_ context.Context, token string) error {
	return s.write(s.accessKey, token)
}

func (s *FileStore) Refresh(_ context.Context) (string, error) {
	return s.read(s.refreshKey)
}

func (s *FileStore) SetRefresh(_ context.Context, token string) error {
	return s.write(s.refreshKey, token)
}

func (s *FileStore) Clear(_ context.Context) error {
	for _, key := range []string{s.accessKey, s.refreshKey} {
		if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

func (s *FileStore) read(key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) write(key string, token string) error {
	path := filepath.Join(s.dir, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}
