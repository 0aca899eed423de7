package testing

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"panel-server-go/internal/platform/config"
	"panel-server-go/internal/platform/logging"
	"panel-server-go/internal/platform/storage"
)

// SetupTestConfig returns the defaults rooted in a per-test temp directory.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = filepath.Join(dir, "logs")
	cfg.Log.File = "test.log"
	cfg.Web.Enabled = false
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.SecretFile = filepath.Join(dir, "config", "secret.key")
	cfg.Auth.Store.Type = "memory"
	cfg.Auth.Store.File.Path = filepath.Join(dir, "config", "auth.json")
	cfg.Database.Path = filepath.Join(dir, "db", "database.sqlite")
	cfg.Update.VersionFile = filepath.Join(dir, "version.ts")
	cfg.Update.LastVersionURL = ""
	return cfg
}

// SetupTestLogger builds a logger writing into the test's temp directory.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

// SetupTestDB opens a migrated private in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := storage.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
