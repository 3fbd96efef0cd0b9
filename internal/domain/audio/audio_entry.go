package audio

import (
	"time"

	"github.com/google/uuid"
)

// AudioEntry is one row of the shared TTS/human audio cache. The natural key
// is (engine, language, voice, text, context); re-adding with a different
// path replaces the stored path.
type AudioEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EngineID string    `gorm:"column:engine_id;not null;index:idx_audio_key,unique,priority:1" json:"engine_id"`
	Language string    `gorm:"not null;index:idx_audio_key,unique,priority:2;index" json:"language"`
	VoiceID  string    `gorm:"column:voice_id;not null;index:idx_audio_key,unique,priority:3" json:"voice_id"`
	Text     string    `gorm:"not null;index:idx_audio_key,unique,priority:4" json:"text"`

	// Context distinguishes a word spoken inside a segment from the same
	// word spoken stand-alone. Empty for segment entries.
	Context string `gorm:"not null;default:'';index:idx_audio_key,unique,priority:5" json:"context"`

	FilePath string `gorm:"column:file_path;not null" json:"file_path"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AudioEntry) TableName() string { return "audio_entry" }
