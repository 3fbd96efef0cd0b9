package phonetic

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusGenerated = "generated"
	StatusReviewed  = "reviewed"
)

// PlainLexiconEntry maps a word to its phonemes without alignment.
type PlainLexiconEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Language string    `gorm:"not null;index:idx_plain_lexicon_word,unique,priority:1" json:"language"`
	Word     string    `gorm:"not null;index:idx_plain_lexicon_word,unique,priority:2" json:"word"`
	Phonemes string    `gorm:"not null" json:"phonemes"`
	Status   string    `gorm:"not null;default:generated;index" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PlainLexiconEntry) TableName() string { return "phonetic_lexicon_plain" }

// AlignedLexiconEntry additionally carries a grapheme/phoneme alignment.
// Invariant: AlignedGraphemes and AlignedPhonemes have the same number of
// |-separated segments, and their concatenations equal Word and Phonemes.
type AlignedLexiconEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Language string    `gorm:"not null;index:idx_aligned_lexicon_word,unique,priority:1" json:"language"`
	Word     string    `gorm:"not null;index:idx_aligned_lexicon_word,unique,priority:2" json:"word"`
	Phonemes string    `gorm:"not null" json:"phonemes"`

	AlignedGraphemes string `gorm:"column:aligned_graphemes;not null" json:"aligned_graphemes"`
	AlignedPhonemes  string `gorm:"column:aligned_phonemes;not null" json:"aligned_phonemes"`
	Status           string `gorm:"not null;default:generated;index" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AlignedLexiconEntry) TableName() string { return "phonetic_lexicon_aligned" }

// GraphemePhonemeEntry is one row of a language's structured orthography:
// a grapheme (possibly multi-character) and the phonemes it can produce.
type GraphemePhonemeEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Language string    `gorm:"not null;index:idx_g2p_grapheme,unique,priority:1" json:"language"`
	Grapheme string    `gorm:"not null;index:idx_g2p_grapheme,unique,priority:2" json:"grapheme"`

	// Comma-separated alternatives; the first is canonical.
	Phonemes string `gorm:"not null" json:"phonemes"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (GraphemePhonemeEntry) TableName() string { return "grapheme_phoneme" }

// AccentEntry records an accent/diacritic character of the orthography that
// attaches to the preceding grapheme during alignment.
type AccentEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Language string    `gorm:"not null;index:idx_accent_char,unique,priority:1" json:"language"`
	Char     string    `gorm:"not null;index:idx_accent_char,unique,priority:2" json:"char"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (AccentEntry) TableName() string { return "accent_character" }
