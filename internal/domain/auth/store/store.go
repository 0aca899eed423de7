package store

import (
	"context"

	"panel-server-go/internal/domain/auth/model"
)

// Store owns the single admin credential record. Write is a read-merge-write
// that replaces the persisted document; Init overwrites it entirely.
type Store interface {
	Read(ctx context.Context) (model.AdminCredential, error)
	Write(ctx context.Context, patch model.Patch) (model.AdminCredential, error)
	Init(ctx context.Context, cred model.AdminCredential) error
	// Location describes where the record lives, for operator messages.
	Location() string
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	File   *FileConfig
	Redis  *RedisConfig
}

// FileConfig points at the JSON document.
type FileConfig struct {
	Path string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Key      string
}
