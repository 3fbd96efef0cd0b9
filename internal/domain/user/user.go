package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the minimal identity the core needs: credit balance, admin flag,
// and an optional personal API key that bypasses the credit check.
// Authentication itself is owned by the web layer.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username string    `gorm:"not null;uniqueIndex" json:"username"`
	IsAdmin  bool      `gorm:"not null;default:false" json:"is_admin"`

	Credit         float64 `gorm:"not null;default:0" json:"credit"`
	PersonalAPIKey string  `gorm:"column:personal_api_key" json:"-"`

	// Language master rights let a user edit prompt templates and approve
	// lexicon batches for a language.
	LanguageMasterOf string `gorm:"column:language_master_of" json:"language_master_of,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }
