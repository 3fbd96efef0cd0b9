package domain

import (
	"github.com/clara-platform/clara-backend/internal/domain/audio"
	"github.com/clara-platform/clara-backend/internal/domain/billing"
	"github.com/clara-platform/clara-backend/internal/domain/images"
	"github.com/clara-platform/clara-backend/internal/domain/jobs"
	"github.com/clara-platform/clara-backend/internal/domain/phonetic"
	"github.com/clara-platform/clara-backend/internal/domain/project"
	"github.com/clara-platform/clara-backend/internal/domain/text"
	"github.com/clara-platform/clara-backend/internal/domain/user"
)

type (
	User = user.User

	Project        = project.Project
	HumanAudioInfo = project.HumanAudioInfo

	TextVersion = text.TextVersion

	AudioEntry = audio.AudioEntry

	PlainLexiconEntry    = phonetic.PlainLexiconEntry
	AlignedLexiconEntry  = phonetic.AlignedLexiconEntry
	GraphemePhonemeEntry = phonetic.GraphemePhonemeEntry
	AccentEntry          = phonetic.AccentEntry

	ImageRecord = images.ImageRecord

	JobRun    = jobs.JobRun
	JobUpdate = jobs.JobUpdate

	APICall = billing.APICall
)

const (
	SourceAIGenerated       = text.SourceAIGenerated
	SourceHumanRevised      = text.SourceHumanRevised
	SourceRuleBased         = text.SourceRuleBased
	SourceLoadedFromArchive = text.SourceLoadedFromArchive

	LexiconStatusGenerated = phonetic.StatusGenerated
	LexiconStatusReviewed  = phonetic.StatusReviewed

	AudioKindPlain    = project.AudioKindPlain
	AudioKindPhonetic = project.AudioKindPhonetic
)

// AllModels is the AutoMigrate list shared by the server entrypoint and the
// test harness.
func AllModels() []any {
	return []any{
		&User{},
		&Project{},
		&HumanAudioInfo{},
		&TextVersion{},
		&AudioEntry{},
		&PlainLexiconEntry{},
		&AlignedLexiconEntry{},
		&GraphemePhonemeEntry{},
		&AccentEntry{},
		&ImageRecord{},
		&JobRun{},
		&JobUpdate{},
		&APICall{},
	}
}
