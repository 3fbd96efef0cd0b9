package repos

import (
	"gorm.io/gorm"

	"github.com/clara-platform/clara-backend/internal/data/repos/audio"
	"github.com/clara-platform/clara-backend/internal/data/repos/billing"
	"github.com/clara-platform/clara-backend/internal/data/repos/images"
	"github.com/clara-platform/clara-backend/internal/data/repos/jobs"
	"github.com/clara-platform/clara-backend/internal/data/repos/lexicon"
	"github.com/clara-platform/clara-backend/internal/data/repos/project"
	"github.com/clara-platform/clara-backend/internal/data/repos/text"
	"github.com/clara-platform/clara-backend/internal/data/repos/user"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type ProjectRepo = project.ProjectRepo
type TextVersionRepo = text.TextVersionRepo
type AudioRepo = audio.AudioRepo
type AudioKey = audio.Key
type LexiconRepo = lexicon.LexiconRepo
type ImageRecordRepo = images.ImageRecordRepo
type JobRunRepo = jobs.JobRunRepo
type JobUpdateRepo = jobs.JobUpdateRepo
type LedgerRepo = billing.LedgerRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewUserRepo(db, baseLog)
}
func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return project.NewProjectRepo(db, baseLog)
}
func NewTextVersionRepo(db *gorm.DB, baseLog *logger.Logger) TextVersionRepo {
	return text.NewTextVersionRepo(db, baseLog)
}
func NewAudioRepo(db *gorm.DB, baseLog *logger.Logger) AudioRepo {
	return audio.NewAudioRepo(db, baseLog)
}
func NewLexiconRepo(db *gorm.DB, baseLog *logger.Logger) LexiconRepo {
	return lexicon.NewLexiconRepo(db, baseLog)
}
func NewImageRecordRepo(db *gorm.DB, baseLog *logger.Logger) ImageRecordRepo {
	return images.NewImageRecordRepo(db, baseLog)
}
func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
func NewJobUpdateRepo(db *gorm.DB, baseLog *logger.Logger) JobUpdateRepo {
	return jobs.NewJobUpdateRepo(db, baseLog)
}
func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger) LedgerRepo {
	return billing.NewLedgerRepo(db, baseLog)
}

// All bundles the repos most services need, so constructors stay short.
type All struct {
	User        UserRepo
	Project     ProjectRepo
	TextVersion TextVersionRepo
	Audio       AudioRepo
	Lexicon     LexiconRepo
	ImageRecord ImageRecordRepo
	JobRun      JobRunRepo
	JobUpdate   JobUpdateRepo
	Ledger      LedgerRepo
}

func NewAll(db *gorm.DB, baseLog *logger.Logger) All {
	return All{
		User:        NewUserRepo(db, baseLog),
		Project:     NewProjectRepo(db, baseLog),
		TextVersion: NewTextVersionRepo(db, baseLog),
		Audio:       NewAudioRepo(db, baseLog),
		Lexicon:     NewLexiconRepo(db, baseLog),
		ImageRecord: NewImageRecordRepo(db, baseLog),
		JobRun:      NewJobRunRepo(db, baseLog),
		JobUpdate:   NewJobUpdateRepo(db, baseLog),
		Ledger:      NewLedgerRepo(db, baseLog),
	}
}
