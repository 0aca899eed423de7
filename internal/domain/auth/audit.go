package auth

import (
	"context"
	"sync"

	"panel-server-go/internal/domain/auth/model"
)

// DefaultAuditCapacity is the number of login log entries retained.
const DefaultAuditCapacity = 100

// LoginLogRepository persists login log entries.
type LoginLogRepository interface {
	Insert(ctx context.Context, entry model.LoginLogEntry) (model.LoginLogEntry, error)
	Count(ctx context.Context) (int64, error)
	// DeleteOldest removes the n entries with the smallest timestamp, ties by id.
	DeleteOldest(ctx context.Context, n int) error
	// List returns entries newest first.
	List(ctx context.Context) ([]model.LoginLogEntry, error)
}

// AuditLog is the bounded login log. Writes are serialized so the bound holds
// once each Append returns.
type AuditLog struct {
	repo     LoginLogRepository
	capacity int
	mu       sync.Mutex
}

// NewAuditLog wraps repo with a capacity bound. Non-positive capacity uses the default.
func NewAuditLog(repo LoginLogRepository, capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{repo: repo, capacity: capacity}
}

// Append inserts entry and evicts the oldest entries beyond capacity.
func (a *AuditLog) Append(ctx context.Context, entry model.LoginLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.repo.Insert(ctx, entry); err != nil {
		return err
	}
	total, err := a.repo.Count(ctx)
	if err != nil {
		return err
	}
	if excess := int(total) - a.capacity; excess > 0 {
		return a.repo.DeleteOldest(ctx, excess)
	}
	return nil
}

// List returns the retained entries, newest first.
func (a *AuditLog) List(ctx context.Context) ([]model.LoginLogEntry, error) {
	return a.repo.List(ctx)
}
