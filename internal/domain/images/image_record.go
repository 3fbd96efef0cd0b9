package images

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RequestTypeGeneration    = "image-generation"
	RequestTypeUnderstanding = "image-understanding"

	PositionTop    = "top"
	PositionBottom = "bottom"
)

// ImageRecord is a v1 project image. Exactly one non-archived row exists per
// (project, image_name); superseded rows are kept with Archived=true and can
// be restored.
type ImageRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_image_project_name,priority:1" json:"project_id"`
	ImageName string    `gorm:"column:image_name;not null;index:idx_image_project_name,priority:2" json:"image_name"`

	FilePath        string `gorm:"column:file_path" json:"file_path,omitempty"`
	AssociatedText  string `gorm:"column:associated_text" json:"associated_text,omitempty"`
	AssociatedAreas string `gorm:"column:associated_areas" json:"associated_areas,omitempty"`

	Page     int    `gorm:"not null;default:1" json:"page"`
	Position string `gorm:"not null;default:bottom" json:"position"`

	StyleDescription   string `gorm:"column:style_description" json:"style_description,omitempty"`
	ContentDescription string `gorm:"column:content_description" json:"content_description,omitempty"`

	RequestType          string         `gorm:"column:request_type;not null;default:image-generation" json:"request_type"`
	DescriptionVariable  string         `gorm:"column:description_variable" json:"description_variable,omitempty"`
	DescriptionVariables datatypes.JSON `gorm:"column:description_variables;type:json" json:"description_variables,omitempty"`
	UserPrompt           string         `gorm:"column:user_prompt" json:"user_prompt,omitempty"`

	Archived bool `gorm:"not null;default:false;index" json:"archived"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ImageRecord) TableName() string { return "image_record" }
