package training

import (
	"context"
	"os"
	"path/filepath"

	"github.com/molforge/graphchem/pkg/errors"
)

// LocalCheckpointStore persists checkpoints as files under a directory.
// Used for single-machine runs; remote runs use the object-storage store.
type LocalCheckpointStore struct {
	dir string
}

// NewLocalCheckpointStore creates the directory if needed.
func NewLocalCheckpointStore(dir string) (*LocalCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCheckpointFailed,
			"failed to create checkpoint directory "+dir)
	}
	return &LocalCheckpointStore{dir: dir}, nil
}

// Put writes data to dir/key, creating intermediate directories.
func (s *LocalCheckpointStore) Put(_ context.Context, key string, data []byte) error {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "failed to create checkpoint path")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckpointFailed, "failed to write checkpoint "+path)
	}
	return nil
}

// Get reads the checkpoint stored under key.
func (s *LocalCheckpointStore) Get(_ context.Context, key string) ([]byte, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCheckpointFailed, "failed to read checkpoint "+path)
	}
	return data, nil
}
