package images

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// ImageRecordRepo holds the v1 image repository: one current record per
// (project, image_name), archived predecessors preserved and restorable.
type ImageRecordRepo interface {
	// Save installs rec as the current record for its (project, image_name),
	// archiving any previous current.
	Save(dbc dbctx.Context, rec *types.ImageRecord) (*types.ImageRecord, error)
	GetCurrent(dbc dbctx.Context, projectID uuid.UUID, imageName string) (*types.ImageRecord, error)
	ListCurrent(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ImageRecord, error)
	ListArchived(dbc dbctx.Context, projectID uuid.UUID, imageName string) ([]*types.ImageRecord, error)
	// Restore promotes the archived record with the given id back to current.
	Restore(dbc dbctx.Context, archiveID uuid.UUID) (*types.ImageRecord, error)
	// DeleteCurrent removes only the named current record; archives stay.
	DeleteCurrent(dbc dbctx.Context, projectID uuid.UUID, imageName string) error
	DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error
}

type imageRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageRecordRepo(db *gorm.DB, baseLog *logger.Logger) ImageRecordRepo {
	return &imageRecordRepo{db: db, log: baseLog.With("repo", "ImageRecordRepo")}
}

func (r *imageRecordRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *imageRecordRepo) Save(dbc dbctx.Context, rec *types.ImageRecord) (*types.ImageRecord, error) {
	if rec.ProjectID == uuid.Nil || rec.ImageName == "" {
		return nil, clerror.New(clerror.Validation, "image record needs project and image_name")
	}
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		now := time.Now()
		if err := txx.Model(&types.ImageRecord{}).
			Where("project_id = ? AND image_name = ? AND archived = ?", rec.ProjectID, rec.ImageName, false).
			Updates(map[string]interface{}{"archived": true, "updated_at": now}).Error; err != nil {
			return err
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.Archived = false
		rec.CreatedAt = now
		rec.UpdatedAt = now
		return txx.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *imageRecordRepo) GetCurrent(dbc dbctx.Context, projectID uuid.UUID, imageName string) (*types.ImageRecord, error) {
	var rec types.ImageRecord
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND image_name = ? AND archived = ?", projectID, imageName, false).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *imageRecordRepo) ListCurrent(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ImageRecord, error) {
	var out []*types.ImageRecord
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND archived = ?", projectID, false).
		Order("page ASC, image_name ASC").
		Find(&out).Error
	return out, err
}

func (r *imageRecordRepo) ListArchived(dbc dbctx.Context, projectID uuid.UUID, imageName string) ([]*types.ImageRecord, error) {
	var out []*types.ImageRecord
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND image_name = ? AND archived = ?", projectID, imageName, true).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *imageRecordRepo) Restore(dbc dbctx.Context, archiveID uuid.UUID) (*types.ImageRecord, error) {
	var restored *types.ImageRecord
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var archived types.ImageRecord
		if err := txx.Where("id = ? AND archived = ?", archiveID, true).First(&archived).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return clerror.New(clerror.ResourceMissing, "no archived image record %s", archiveID)
			}
			return err
		}
		now := time.Now()
		if err := txx.Model(&types.ImageRecord{}).
			Where("project_id = ? AND image_name = ? AND archived = ?", archived.ProjectID, archived.ImageName, false).
			Updates(map[string]interface{}{"archived": true, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := txx.Model(&types.ImageRecord{}).
			Where("id = ?", archived.ID).
			Updates(map[string]interface{}{"archived": false, "updated_at": now}).Error; err != nil {
			return err
		}
		archived.Archived = false
		archived.UpdatedAt = now
		restored = &archived
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

func (r *imageRecordRepo) DeleteCurrent(dbc dbctx.Context, projectID uuid.UUID, imageName string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND image_name = ? AND archived = ?", projectID, imageName, false).
		Delete(&types.ImageRecord{}).Error
}

func (r *imageRecordRepo) DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.ImageRecord{}).Error
}
