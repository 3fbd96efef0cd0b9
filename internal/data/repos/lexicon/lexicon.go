package lexicon

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

type LexiconRepo interface {
	UpsertPlain(dbc dbctx.Context, entries []*types.PlainLexiconEntry) error
	UpsertAligned(dbc dbctx.Context, entries []*types.AlignedLexiconEntry) error
	GetPlain(dbc dbctx.Context, language, word string) (*types.PlainLexiconEntry, error)
	GetAligned(dbc dbctx.Context, language, word string) (*types.AlignedLexiconEntry, error)
	ListPlainByStatus(dbc dbctx.Context, language, status string) ([]*types.PlainLexiconEntry, error)
	ListAlignedByStatus(dbc dbctx.Context, language, status string) ([]*types.AlignedLexiconEntry, error)
	ApprovePlain(dbc dbctx.Context, language string, words []string) error
	ApproveAligned(dbc dbctx.Context, language string, words []string) error
	DeletePlain(dbc dbctx.Context, language, word string) error
	DeleteAligned(dbc dbctx.Context, language, word string) error

	ReplaceGraphemePhonemes(dbc dbctx.Context, language string, entries []*types.GraphemePhonemeEntry) error
	ListGraphemePhonemes(dbc dbctx.Context, language string) ([]*types.GraphemePhonemeEntry, error)
	ReplaceAccents(dbc dbctx.Context, language string, entries []*types.AccentEntry) error
	ListAccents(dbc dbctx.Context, language string) ([]*types.AccentEntry, error)
}

type lexiconRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLexiconRepo(db *gorm.DB, baseLog *logger.Logger) LexiconRepo {
	return &lexiconRepo{db: db, log: baseLog.With("repo", "LexiconRepo")}
}

func (r *lexiconRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *lexiconRepo) UpsertPlain(dbc dbctx.Context, entries []*types.PlainLexiconEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Status == "" {
			e.Status = types.LexiconStatusGenerated
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "language"}, {Name: "word"}},
			DoUpdates: clause.AssignmentColumns([]string{"phonemes", "status", "updated_at"}),
		}).
		Create(&entries).Error
}

func (r *lexiconRepo) UpsertAligned(dbc dbctx.Context, entries []*types.AlignedLexiconEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Status == "" {
			e.Status = types.LexiconStatusGenerated
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "language"}, {Name: "word"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"phonemes", "aligned_graphemes", "aligned_phonemes", "status", "updated_at",
			}),
		}).
		Create(&entries).Error
}

func (r *lexiconRepo) GetPlain(dbc dbctx.Context, language, word string) (*types.PlainLexiconEntry, error) {
	var e types.PlainLexiconEntry
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ? AND word = ?", language, word).
		Limit(1).Find(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *lexiconRepo) GetAligned(dbc dbctx.Context, language, word string) (*types.AlignedLexiconEntry, error) {
	var e types.AlignedLexiconEntry
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ? AND word = ?", language, word).
		Limit(1).Find(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *lexiconRepo) ListPlainByStatus(dbc dbctx.Context, language, status string) ([]*types.PlainLexiconEntry, error) {
	var out []*types.PlainLexiconEntry
	q := r.tx(dbc).WithContext(dbc.Ctx).Where("language = ?", language)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("word ASC").Find(&out).Error
	return out, err
}

func (r *lexiconRepo) ListAlignedByStatus(dbc dbctx.Context, language, status string) ([]*types.AlignedLexiconEntry, error) {
	var out []*types.AlignedLexiconEntry
	q := r.tx(dbc).WithContext(dbc.Ctx).Where("language = ?", language)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("word ASC").Find(&out).Error
	return out, err
}

func (r *lexiconRepo) ApprovePlain(dbc dbctx.Context, language string, words []string) error {
	if len(words) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.PlainLexiconEntry{}).
		Where("language = ? AND word IN ?", language, words).
		Updates(map[string]interface{}{"status": types.LexiconStatusReviewed, "updated_at": time.Now()}).Error
}

func (r *lexiconRepo) ApproveAligned(dbc dbctx.Context, language string, words []string) error {
	if len(words) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.AlignedLexiconEntry{}).
		Where("language = ? AND word IN ?", language, words).
		Updates(map[string]interface{}{"status": types.LexiconStatusReviewed, "updated_at": time.Now()}).Error
}

func (r *lexiconRepo) DeletePlain(dbc dbctx.Context, language, word string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ? AND word = ?", language, word).
		Delete(&types.PlainLexiconEntry{}).Error
}

func (r *lexiconRepo) DeleteAligned(dbc dbctx.Context, language, word string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ? AND word = ?", language, word).
		Delete(&types.AlignedLexiconEntry{}).Error
}

func (r *lexiconRepo) ReplaceGraphemePhonemes(dbc dbctx.Context, language string, entries []*types.GraphemePhonemeEntry) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("language = ?", language).Delete(&types.GraphemePhonemeEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		now := time.Now()
		for _, e := range entries {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			e.Language = language
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
		}
		return txx.Create(&entries).Error
	})
}

func (r *lexiconRepo) ListGraphemePhonemes(dbc dbctx.Context, language string) ([]*types.GraphemePhonemeEntry, error) {
	var out []*types.GraphemePhonemeEntry
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ?", language).
		Find(&out).Error
	return out, err
}

func (r *lexiconRepo) ReplaceAccents(dbc dbctx.Context, language string, entries []*types.AccentEntry) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("language = ?", language).Delete(&types.AccentEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		now := time.Now()
		for _, e := range entries {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			e.Language = language
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
		}
		return txx.Create(&entries).Error
	})
}

func (r *lexiconRepo) ListAccents(dbc dbctx.Context, language string) ([]*types.AccentEntry, error) {
	var out []*types.AccentEntry
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ?", language).
		Find(&out).Error
	return out, err
}
