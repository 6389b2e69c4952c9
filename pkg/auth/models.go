package auth

import "time"

// Key is the stored API key record. Only the one-way hash of the secret is
// persisted; rows are soft-revoked and never deleted so audit entries keep a
// valid cross-reference.
type Key struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"key_id"`
	KeyHash     string     `gorm:"uniqueIndex;type:varchar(128);not null" json:"-"`
	ServiceName string     `gorm:"type:varchar(255);not null" json:"service_name"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	Revoked     bool       `gorm:"default:false" json:"revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int64      `gorm:"default:0" json:"usage_count"`
}

func (Key) TableName() string {
	return "api_keys"
}
