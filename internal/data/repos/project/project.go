package project

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

type ProjectRepo interface {
	Create(dbc dbctx.Context, p *types.Project) (*types.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	GetByInternalID(dbc dbctx.Context, internalID string) (*types.Project, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.Project, error)
	UpdateFlags(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error

	UpsertHumanAudioInfo(dbc dbctx.Context, info *types.HumanAudioInfo) error
	GetHumanAudioInfo(dbc dbctx.Context, projectID uuid.UUID, kind string) (*types.HumanAudioInfo, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *projectRepo) Create(dbc dbctx.Context, p *types.Project) (*types.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var p types.Project
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) GetByInternalID(dbc dbctx.Context, internalID string) (*types.Project, error) {
	var p types.Project
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("internal_id = ?", internalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.Project, error) {
	var out []*types.Project
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// UpdateFlags applies project setting updates. L2/L1 are immutable; the repo
// refuses them regardless of caller.
func (r *projectRepo) UpdateFlags(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	delete(updates, "l2")
	delete(updates, "l1")
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *projectRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Project{}).Error
}

func (r *projectRepo) UpsertHumanAudioInfo(dbc dbctx.Context, info *types.HumanAudioInfo) error {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	now := time.Now()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"method", "voice_talent_id", "use_for_words", "use_for_segments",
				"use_context", "preferred_tts_engine", "audio_file",
				"manual_align_metadata_file", "updated_at",
			}),
		}).
		Create(info).Error
}

func (r *projectRepo) GetHumanAudioInfo(dbc dbctx.Context, projectID uuid.UUID, kind string) (*types.HumanAudioInfo, error) {
	var info types.HumanAudioInfo
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND kind = ?", projectID, kind).
		First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
