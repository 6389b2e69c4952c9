package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{
		Token:      "a1b2c3d4e5f60718",
		Value:      "123-45-6789",
		EntityType: "US_SSN",
		Confidence: 0.95,
		Context:    "healthcare",
		CreatedAt:  time.Now().UTC(),
	}

	if err := store.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, rec.Token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Value != rec.Value || got.Context != "healthcare" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryStoreCreateCollision(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{Token: "deadbeefdeadbeef", Value: "x"}
	if err := store.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, rec, time.Hour); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
}

func TestMemoryStoreDeleteIsTerminal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := Record{Token: "deadbeefdeadbeef", Value: "x"}
	if err := store.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := store.Delete(ctx, rec.Token)
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}

	// Repeated lookups after a purge always land in the missing case.
	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, rec.Token)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != nil {
			t.Fatalf("purged token resurfaced: %+v", got)
		}
	}

	removed, err = store.Delete(ctx, rec.Token)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if removed {
		t.Fatal("second delete must report nothing removed")
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.nowFunc = func() time.Time { return now }

	rec := Record{Token: "deadbeefdeadbeef", Value: "x"}
	if err := store.Create(ctx, rec, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(2 * time.Minute)

	exists, err := store.Exists(ctx, rec.Token)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expired token must not be visible")
	}
	got, err := store.Get(ctx, rec.Token)
	if err != nil || got != nil {
		t.Fatalf("expired token must read as missing, got %+v err=%v", got, err)
	}
}
