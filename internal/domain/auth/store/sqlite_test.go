package store

import (
	"context"
	"testing"

	"panel-server-go/internal/platform/storage"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := storage.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })

	s, err := NewSQLite(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	return s
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newSQLiteStore(t))
}

func TestSQLiteStoreRequiresDB(t *testing.T) {
	if _, err := NewSQLite(nil); err == nil {
		t.Fatal("expected error without database handle")
	}
}
