package store

import (
	"context"
	"sync"

	"panel-server-go/internal/domain/auth/model"
)

type memoryStore struct {
	cred  *model.AdminCredential
	mutex sync.Mutex
}

// NewMemory builds a process-local credential store.
func NewMemory() Store {
	return &memoryStore{}
}

func (s *memoryStore) Read(context.Context) (model.AdminCredential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cred == nil {
		return model.AdminCredential{}, model.ErrNotInitialized
	}
	return s.cred.Clone(), nil
}

func (s *memoryStore) Write(_ context.Context, patch model.Patch) (model.AdminCredential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var current model.AdminCredential
	if s.cred != nil {
		current = *s.cred
	}
	next := patch.Apply(current)
	s.cred = &next
	return next.Clone(), nil
}

func (s *memoryStore) Init(_ context.Context, cred model.AdminCredential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := cred.Clone()
	s.cred = &c
	return nil
}

func (s *memoryStore) Location() string { return "memory" }

func (s *memoryStore) Close(context.Context) error { return nil }
