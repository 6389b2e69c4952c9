package audit

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Entry is one restoration attempt, recorded exactly once per call whatever
// the outcome. Entries are append-only; nothing in this service mutates or
// deletes them.
type Entry struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RequestID    string         `gorm:"index;type:varchar(36);not null" json:"request_id"`
	APIKeyID     string         `gorm:"index;type:varchar(36)" json:"api_key_id,omitempty"`
	ServiceName  string         `gorm:"type:varchar(255)" json:"service_name"`
	Timestamp    time.Time      `gorm:"index;not null" json:"timestamp"`
	RedactedText string         `gorm:"type:text;not null" json:"redacted_text"`
	RestoredText *string        `gorm:"type:text" json:"restored_text,omitempty"`
	TokenCount   int            `gorm:"not null" json:"token_count"`
	Status       string         `gorm:"type:varchar(16);not null" json:"status"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	IPAddress    string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent    string         `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	Details      datatypes.JSON `json:"details,omitempty"`
}

func (Entry) TableName() string {
	return "restoration_audit_log"
}

// Filter narrows an audit query. Limit is capped at 1000 server-side.
type Filter struct {
	ServiceName string
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}
