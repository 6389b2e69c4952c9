package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestIssueAndValidate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	plaintext, key, err := svc.Issue(ctx, "customer-portal", "portal restore access")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(plaintext, "sk_") {
		t.Fatalf("unexpected key format: %q", plaintext)
	}
	if key.KeyHash == plaintext || strings.Contains(key.KeyHash, plaintext) {
		t.Fatal("plaintext must not be stored")
	}

	resolved, err := svc.Validate(ctx, plaintext)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if resolved.ServiceName != "customer-portal" {
		t.Fatalf("wrong identity: %+v", resolved)
	}

	// Usage side effects accumulate per successful validation.
	if _, err := svc.Validate(ctx, plaintext); err != nil {
		t.Fatalf("second validate: %v", err)
	}
	stored, _ := repo.FindByID(ctx, key.ID)
	if stored.UsageCount != 2 || stored.LastUsedAt == nil {
		t.Fatalf("usage side effects missing: %+v", stored)
	}
}

func TestValidateRejectsUnknownAndEmpty(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Validate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty key, got %v", err)
	}
	if _, err := svc.Validate(ctx, "sk_deadbeef"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown key, got %v", err)
	}
}

func TestRevokeIsTerminalAndIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	plaintext, key, err := svc.Issue(ctx, "svc", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := svc.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.Revoke(ctx, key.ID); err != nil {
		t.Fatalf("second revoke must be idempotent: %v", err)
	}

	if _, err := svc.Validate(ctx, plaintext); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked key must be unusable, got %v", err)
	}

	// Row retained for audit cross-reference.
	stored, _ := repo.FindByID(ctx, key.ID)
	if stored == nil || !stored.Revoked || stored.RevokedAt == nil {
		t.Fatalf("revoked row must be retained: %+v", stored)
	}

	keys, _ := svc.List(ctx, false)
	if len(keys) != 0 {
		t.Fatalf("default listing must hide revoked keys, got %v", keys)
	}
	keys, _ = svc.List(ctx, true)
	if len(keys) != 1 {
		t.Fatalf("expected revoked key in full listing, got %v", keys)
	}
}
