package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized covers missing, unknown, and revoked API keys alike so the
// response leaks nothing about which case applied.
var ErrUnauthorized = errors.New("unauthorized")

const keyPrefix = "sk_"

type Service struct {
	repo    Repository
	nowFunc func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFunc: time.Now}
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Issue mints a new API key. The plaintext is returned exactly once; only
// its hash is stored, so a lost key can only be re-issued.
func (s *Service) Issue(ctx context.Context, serviceName, description string) (string, *Key, error) {
	if serviceName == "" {
		return "", nil, fmt.Errorf("service name must not be empty")
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", nil, fmt.Errorf("key generation failed: %w", err)
	}
	plaintext := keyPrefix + hex.EncodeToString(secret[:])

	key := &Key{
		ID:          uuid.New().String(),
		KeyHash:     hashKey(plaintext),
		ServiceName: serviceName,
		Description: description,
		CreatedAt:   s.nowFunc().UTC(),
	}

	if err := s.repo.Insert(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// Validate resolves a presented key to its service identity. Success bumps
// the usage counter and last-used timestamp as a side effect.
func (s *Service) Validate(ctx context.Context, presented string) (*Key, error) {
	if presented == "" {
		return nil, ErrUnauthorized
	}

	key, err := s.repo.FindByHash(ctx, hashKey(presented))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Revoked {
		return nil, ErrUnauthorized
	}

	if err := s.repo.MarkUsed(ctx, key.ID, s.nowFunc().UTC()); err != nil {
		return nil, err
	}
	return key, nil
}

// Revoke soft-deletes a key. Idempotent; the row is retained for audit
// cross-reference.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	key, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return fmt.Errorf("api key %s not found", keyID)
	}
	if key.Revoked {
		return nil
	}
	return s.repo.Revoke(ctx, keyID, s.nowFunc().UTC())
}

func (s *Service) List(ctx context.Context, includeRevoked bool) ([]Key, error) {
	return s.repo.List(ctx, includeRevoked)
}
