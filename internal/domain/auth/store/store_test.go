package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"panel-server-go/internal/domain/auth/model"
)

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Read(ctx); !errors.Is(err, model.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized on empty store, got %v", err)
	}

	if err := s.Init(ctx, model.AdminCredential{Username: "admin", Password: "s3cret-password"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	cred, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read after init: %v", err)
	}
	if cred.Username != "admin" || cred.Password != "s3cret-password" {
		t.Fatalf("unexpected credential after init: %+v", cred)
	}

	updated, err := s.Write(ctx, model.Patch{
		Retries:  model.Int(2),
		LastIP:   model.String("10.0.0.1"),
		Tokens:   map[string]string{"desktop": "tok-d"},
		Token:    model.String("tok-d"),
		Platform: model.String("desktop"),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if updated.Retries != 2 || updated.Username != "admin" {
		t.Fatalf("write did not merge: %+v", updated)
	}

	if _, err := s.Write(ctx, model.Patch{Tokens: map[string]string{"mobile": "tok-m"}}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	cred, err = s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if cred.Tokens["desktop"] != "tok-d" || cred.Tokens["mobile"] != "tok-m" {
		t.Fatalf("token map not merged per platform: %+v", cred.Tokens)
	}
	if cred.Token != "tok-d" || cred.LastIP != "10.0.0.1" {
		t.Fatalf("untouched fields changed: %+v", cred)
	}

	if _, err := s.Write(ctx, model.Patch{Token: model.String("")}); err != nil {
		t.Fatalf("clear write: %v", err)
	}
	cred, _ = s.Read(ctx)
	if cred.Token != "" {
		t.Fatalf("explicit empty value should clear token, got %q", cred.Token)
	}

	// Init replaces the whole record.
	if err := s.Init(ctx, model.AdminCredential{Username: "admin", Password: "another-password"}); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	cred, _ = s.Read(ctx)
	if cred.Retries != 0 || len(cred.Tokens) != 0 || cred.Password != "another-password" {
		t.Fatalf("init should overwrite the record, got %+v", cred)
	}
}

func exerciseConcurrentWrites(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.Init(ctx, model.AdminCredential{Username: "admin", Password: "pw-concurrent"}); err != nil {
		t.Fatalf("init: %v", err)
	}

	platforms := []string{"desktop", "mobile", "ios", "android", "web", "cli"}
	var wg sync.WaitGroup
	for _, p := range platforms {
		wg.Add(1)
		go func(platform string) {
			defer wg.Done()
			if _, err := s.Write(ctx, model.Patch{Tokens: map[string]string{platform: "tok-" + platform}}); err != nil {
				t.Errorf("write %s: %v", platform, err)
			}
		}(p)
	}
	wg.Wait()

	cred, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, p := range platforms {
		if cred.Tokens[p] != "tok-"+p {
			t.Fatalf("lost update for %s: %+v", p, cred.Tokens)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreConcurrentWrites(t *testing.T) {
	exerciseConcurrentWrites(t, NewMemory())
}

func TestMemoryStoreReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if err := s.Init(ctx, model.AdminCredential{Username: "admin", Password: "pw", Tokens: map[string]string{"desktop": "a"}}); err != nil {
		t.Fatalf("init: %v", err)
	}
	cred, _ := s.Read(ctx)
	cred.Tokens["desktop"] = "mutated"

	again, _ := s.Read(ctx)
	if again.Tokens["desktop"] != "a" {
		t.Fatalf("caller mutation leaked into store: %+v", again.Tokens)
	}
}
