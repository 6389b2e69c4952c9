package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable wraps transport failures against the backing store.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrTokenExists signals a collision on create; the caller regenerates.
	ErrTokenExists = errors.New("token already exists")
)

// Record is the stored mapping from an opaque token back to the original
// value. Records are written once and never updated; RestorationAllowed is
// captured from the policy at creation time and stays fixed for the token's
// lifetime even if the registry policy changes later.
type Record struct {
	Token              string    `json:"token"`
	Value              string    `json:"value"`
	EntityType         string    `json:"entity_type"`
	Confidence         float64   `json:"confidence"`
	Context            string    `json:"context"`
	RestorationAllowed bool      `json:"restoration_allowed"`
	CreatedAt          time.Time `json:"created_at"`
}

// Store is the collision-checked token vault. Create must be atomic per key
// so two concurrent requests cannot claim the same token value. A missing
// token on Get/Delete is reported through the boolean/nil result, not an
// error; errors mean the store itself misbehaved.
type Store interface {
	Create(ctx context.Context, rec Record, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Record, error)
	Delete(ctx context.Context, token string) (bool, error)
	Exists(ctx context.Context, token string) (bool, error)
}
