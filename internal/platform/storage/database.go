package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"panel-server-go/internal/platform/errors"
	"panel-server-go/internal/platform/storage/migrations"
)

// Open opens (creating if needed) the sqlite database at path and applies
// all pending migrations.
func Open(ctx context.Context, path string) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New(errors.KindStorage, "storage.open", "database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
	}
	return open(ctx, path)
}

var memoryDBSeq atomic.Int64

// OpenInMemory opens a private in-memory database with migrations applied.
func OpenInMemory(ctx context.Context) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:panel-mem-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	return open(ctx, dsn)
}

func open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies every registered schema migration.
func Migrate(ctx context.Context, db *gorm.DB) error {
	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})
	manager.AddMigration(&migrations.Migration002AdminCredentials{})
	return manager.RunMigrations(ctx)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to get sql handle", err)
	}
	return sqlDB.Close()
}
