package project

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is one multimodal reading text in progress. L2 and L1 are fixed at
// creation; the service layer rejects updates to them.
type Project struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InternalID string    `gorm:"column:internal_id;not null;uniqueIndex" json:"internal_id"`
	Title      string    `gorm:"not null" json:"title"`
	L2         string    `gorm:"column:l2;not null;index" json:"l2"`
	L1         string    `gorm:"column:l1;not null" json:"l1"`
	OwnerID    uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`

	SimpleMode              bool   `gorm:"not null;default:false" json:"simple_mode"`
	UsesCoherentImagesV1    bool   `gorm:"not null;default:false" json:"uses_coherent_images_v1"`
	UsesCoherentImagesV2    bool   `gorm:"not null;default:false" json:"uses_coherent_images_v2"`
	UseTranslationForImages bool   `gorm:"not null;default:false" json:"use_translation_for_images"`
	Community               string `gorm:"column:community" json:"community,omitempty"`
	UsesPictureGlossing     bool   `gorm:"not null;default:false" json:"uses_picture_glossing"`
	PictureGlossStyle       string `gorm:"column:picture_gloss_style" json:"picture_gloss_style,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Project) TableName() string { return "project" }

// AudioKind distinguishes the normal and phonetic audio preference rows.
type AudioKind string

const (
	AudioKindPlain    AudioKind = "plain"
	AudioKindPhonetic AudioKind = "phonetic"
)

// HumanAudioInfo holds per-project audio preferences, one row per kind.
type HumanAudioInfo struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index:idx_human_audio_project_kind,unique,priority:1" json:"project_id"`
	Kind      string    `gorm:"not null;index:idx_human_audio_project_kind,unique,priority:2" json:"kind"`

	// tts_only | upload_individual | upload_zipfile | record | manual_align
	Method        string `gorm:"not null;default:tts_only" json:"method"`
	VoiceTalentID string `gorm:"column:voice_talent_id" json:"voice_talent_id,omitempty"`

	UseForWords    bool   `gorm:"not null;default:false" json:"use_for_words"`
	UseForSegments bool   `gorm:"not null;default:true" json:"use_for_segments"`
	UseContext     bool   `gorm:"not null;default:false" json:"use_context"`
	PreferredTTS   string `gorm:"column:preferred_tts_engine" json:"preferred_tts_engine,omitempty"`

	AudioFile               string `gorm:"column:audio_file" json:"audio_file,omitempty"`
	ManualAlignMetadataFile string `gorm:"column:manual_align_metadata_file" json:"manual_align_metadata_file,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (HumanAudioInfo) TableName() string { return "human_audio_info" }
