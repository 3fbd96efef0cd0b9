package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// JobUpdateRepo manages the append-only progress message stream. Delivery
// semantics: a message is returned exactly once by FetchUnread (the fetch
// marks it read in the same transaction); the derived status is computed over
// the whole stream so it stays monotonic.
type JobUpdateRepo interface {
	Append(dbc dbctx.Context, update *types.JobUpdate) error
	// FetchUnread returns unread messages in timestamp order and marks them
	// read atomically.
	FetchUnread(dbc dbctx.Context, reportID uuid.UUID) ([]*types.JobUpdate, error)
	// ListAll returns the full stream without touching read flags.
	ListAll(dbc dbctx.Context, reportID uuid.UUID) ([]*types.JobUpdate, error)
}

type jobUpdateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobUpdateRepo(db *gorm.DB, baseLog *logger.Logger) JobUpdateRepo {
	return &jobUpdateRepo{db: db, log: baseLog.With("repo", "JobUpdateRepo")}
}

func (r *jobUpdateRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobUpdateRepo) Append(dbc dbctx.Context, update *types.JobUpdate) error {
	if update.ID == uuid.Nil {
		update.ID = uuid.New()
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(update).Error
}

func (r *jobUpdateRepo) FetchUnread(dbc dbctx.Context, reportID uuid.UUID) ([]*types.JobUpdate, error) {
	var out []*types.JobUpdate
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.
			Where("report_id = ? AND read = ?", reportID, false).
			Order("timestamp ASC, id ASC").
			Find(&out).Error; err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(out))
		for _, u := range out {
			ids = append(ids, u.ID)
		}
		return txx.Model(&types.JobUpdate{}).
			Where("id IN ?", ids).
			Update("read", true).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobUpdateRepo) ListAll(dbc dbctx.Context, reportID uuid.UUID) ([]*types.JobUpdate, error) {
	var out []*types.JobUpdate
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("report_id = ?", reportID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}
