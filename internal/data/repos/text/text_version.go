package text

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// TextVersionRepo records the append-only metadata history of layer writes.
// Rows are immutable snapshots; there is no update method.
type TextVersionRepo interface {
	Append(dbc dbctx.Context, v *types.TextVersion) (*types.TextVersion, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TextVersion, error)
	ListByProjectLayer(dbc dbctx.Context, projectID uuid.UUID, layer string) ([]*types.TextVersion, error)
	Latest(dbc dbctx.Context, projectID uuid.UUID, layer string) (*types.TextVersion, error)
	DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error
}

type textVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTextVersionRepo(db *gorm.DB, baseLog *logger.Logger) TextVersionRepo {
	return &textVersionRepo{db: db, log: baseLog.With("repo", "TextVersionRepo")}
}

func (r *textVersionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *textVersionRepo) Append(dbc dbctx.Context, v *types.TextVersion) (*types.TextVersion, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (r *textVersionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TextVersion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var v types.TextVersion
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *textVersionRepo) ListByProjectLayer(dbc dbctx.Context, projectID uuid.UUID, layer string) ([]*types.TextVersion, error) {
	var out []*types.TextVersion
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND layer = ?", projectID, layer).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *textVersionRepo) Latest(dbc dbctx.Context, projectID uuid.UUID, layer string) (*types.TextVersion, error) {
	var v types.TextVersion
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND layer = ?", projectID, layer).
		Order("created_at DESC").
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

func (r *textVersionRepo) DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.TextVersion{}).Error
}
