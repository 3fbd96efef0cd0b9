package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobRun is one asynchronous task. Its ID doubles as the report_id consumers
// poll with; a superseding job simply gets a new ID.
type JobRun struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	ProjectID   *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`
	TaskType    string     `gorm:"column:task_type;not null;index" json:"task_type"`

	// queued | running | failed | succeeded
	Status   string `gorm:"not null;index" json:"status"`
	Stage    string `gorm:"not null" json:"stage"`
	Progress int    `gorm:"not null;default:0" json:"progress"`
	Attempts int    `gorm:"not null;default:0" json:"attempts"`
	Message  string `gorm:"column:message" json:"message,omitempty"`
	Error    string `gorm:"column:error" json:"error,omitempty"`

	LockedAt    *time.Time `gorm:"index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"index" json:"last_error_at,omitempty"`

	Payload datatypes.JSON `gorm:"type:json" json:"payload"`
	Result  datatypes.JSON `gorm:"type:json" json:"result"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }

// JobUpdate is one progress message in a job's append-only stream. A message
// is returned to the polling consumer at most once: the fetch that returns it
// also marks it read.
type JobUpdate struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID uuid.UUID `gorm:"type:uuid;column:report_id;not null;index" json:"report_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	TaskType string    `gorm:"column:task_type;not null" json:"task_type"`
	Message  string    `gorm:"not null" json:"message"`

	Read      bool      `gorm:"not null;default:false;index" json:"read"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

func (JobUpdate) TableName() string { return "job_update" }
