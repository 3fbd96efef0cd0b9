package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

type LedgerRepo interface {
	// RecordCall inserts the APICall row and deducts its cost from the
	// user's credit in a single transaction.
	RecordCall(dbc dbctx.Context, call *types.APICall) error
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.APICall, error)
	TotalCostForUser(dbc dbctx.Context, userID uuid.UUID) (float64, error)
}

type ledgerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger) LedgerRepo {
	return &ledgerRepo{db: db, log: baseLog.With("repo", "LedgerRepo")}
}

func (r *ledgerRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *ledgerRepo) RecordCall(dbc dbctx.Context, call *types.APICall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(call).Error; err != nil {
			return err
		}
		if call.Cost == 0 {
			return nil
		}
		return txx.Model(&types.User{}).
			Where("id = ?", call.UserID).
			Update("credit", gorm.Expr("credit - ?", call.Cost)).Error
	})
}

func (r *ledgerRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.APICall, error) {
	var out []*types.APICall
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("timestamp ASC").
		Find(&out).Error
	return out, err
}

func (r *ledgerRepo) TotalCostForUser(dbc dbctx.Context, userID uuid.UUID) (float64, error) {
	var total float64
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.APICall{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	return total, err
}
