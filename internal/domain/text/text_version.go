package text

import (
	"time"

	"github.com/google/uuid"
)

// Source of a text version write.
const (
	SourceAIGenerated       = "ai_generated"
	SourceHumanRevised      = "human_revised"
	SourceRuleBased         = "rule_based"
	SourceLoadedFromArchive = "loaded_from_archive"
)

// TextVersion is one immutable archive snapshot of a project text layer.
// The layer's current file lives at a fixed store key; every successful write
// also lands an archive file and appends one of these rows. Rows are never
// updated in place.
type TextVersion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_text_version_project_layer,priority:1" json:"project_id"`
	Layer     string    `gorm:"not null;index:idx_text_version_project_layer,priority:2" json:"layer"`

	// File is the archive snapshot's store key.
	File        string `gorm:"not null" json:"file"`
	Description string `gorm:"column:description" json:"description,omitempty"`
	Source      string `gorm:"not null" json:"source"`
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`

	Label        string `gorm:"column:label" json:"label,omitempty"`
	GoldStandard bool   `gorm:"not null;default:false" json:"gold_standard"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (TextVersion) TableName() string { return "text_version" }
