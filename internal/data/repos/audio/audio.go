package audio

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// Key is the natural key of the shared audio cache.
type Key struct {
	EngineID string
	Language string
	VoiceID  string
	Text     string
	Context  string
}

type AudioRepo interface {
	// AddOrUpdate stores path under key. Re-adding an existing key replaces
	// the stored path without creating a duplicate row.
	AddOrUpdate(dbc dbctx.Context, key Key, path string) error
	Lookup(dbc dbctx.Context, key Key) (string, bool, error)
	LookupBatch(dbc dbctx.Context, keys []Key) (map[Key]string, error)
	DeleteByLanguage(dbc dbctx.Context, language string) error
}

type audioRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAudioRepo(db *gorm.DB, baseLog *logger.Logger) AudioRepo {
	return &audioRepo{db: db, log: baseLog.With("repo", "AudioRepo")}
}

func (r *audioRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *audioRepo) AddOrUpdate(dbc dbctx.Context, key Key, path string) error {
	now := time.Now()
	entry := &types.AudioEntry{
		ID:        uuid.New(),
		EngineID:  key.EngineID,
		Language:  key.Language,
		VoiceID:   key.VoiceID,
		Text:      key.Text,
		Context:   key.Context,
		FilePath:  path,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "engine_id"}, {Name: "language"}, {Name: "voice_id"},
				{Name: "text"}, {Name: "context"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"file_path", "updated_at"}),
		}).
		Create(entry).Error
}

func (r *audioRepo) Lookup(dbc dbctx.Context, key Key) (string, bool, error) {
	var entry types.AudioEntry
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("engine_id = ? AND language = ? AND voice_id = ? AND text = ? AND context = ?",
			key.EngineID, key.Language, key.VoiceID, key.Text, key.Context).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.FilePath, true, nil
}

func (r *audioRepo) LookupBatch(dbc dbctx.Context, keys []Key) (map[Key]string, error) {
	out := make(map[Key]string, len(keys))
	for _, key := range keys {
		path, ok, err := r.Lookup(dbc, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = path
		}
	}
	return out, nil
}

func (r *audioRepo) DeleteByLanguage(dbc dbctx.Context, language string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("language = ?", language).
		Delete(&types.AudioEntry{}).Error
}
