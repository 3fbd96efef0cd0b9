package billing

import (
	"time"

	"github.com/google/uuid"
)

// APICall persists one external-model call against a (user, project,
// operation) tuple. Storing a call and deducting its cost from the user's
// credit happen in the same transaction.
type APICall struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ProjectID *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Operation string     `gorm:"not null;index" json:"operation"`

	Prompt     string  `gorm:"type:text" json:"prompt"`
	Response   string  `gorm:"type:text" json:"response,omitempty"`
	Cost       float64 `gorm:"not null" json:"cost"`
	DurationMS int64   `gorm:"column:duration_ms;not null" json:"duration_ms"`
	Retries    int     `gorm:"not null" json:"retries"`

	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

func (APICall) TableName() string { return "api_call" }
