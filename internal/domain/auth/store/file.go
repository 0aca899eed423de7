package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"panel-server-go/internal/domain/auth/model"
)

const defaultFilePath = "data/config/auth.json"

type fileStore struct {
	path  string
	mutex sync.Mutex
}

// NewFile builds a store persisting the credential as a JSON document at path.
func NewFile(path string) (Store, error) {
	if path == "" {
		path = defaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create credential directory: %w", err)
	}
	return &fileStore{path: path}, nil
}

func (s *fileStore) Read(context.Context) (model.AdminCredential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.read()
}

func (s *fileStore) read() (model.AdminCredential, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.AdminCredential{}, model.ErrNotInitialized
	}
	if err != nil {
		return model.AdminCredential{}, fmt.Errorf("read credential file: %w", err)
	}
	if len(data) == 0 {
		// an empty file behaves like an empty document
		return model.AdminCredential{}, nil
	}
	cred, err := model.UnmarshalDocument(data)
	if err != nil {
		return model.AdminCredential{}, fmt.Errorf("decode credential file: %w", err)
	}
	return cred, nil
}

func (s *fileStore) Write(_ context.Context, patch model.Patch) (model.AdminCredential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.read()
	if err != nil && err != model.ErrNotInitialized {
		return model.AdminCredential{}, err
	}
	next := patch.Apply(current)
	if err := s.replace(next); err != nil {
		return model.AdminCredential{}, err
	}
	return next, nil
}

func (s *fileStore) Init(_ context.Context, cred model.AdminCredential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.replace(cred)
}

// replace writes a temp file in the same directory and renames it over the
// document, so a crash leaves either the old or the new record.
func (s *fileStore) replace(cred model.AdminCredential) error {
	data, err := model.MarshalDocument(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".auth-*.json")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp credential file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

func (s *fileStore) Location() string { return s.path }

func (s *fileStore) Close(context.Context) error { return nil }
