package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	billingrepo "github.com/clara-platform/clara-backend/internal/data/repos/billing"
	userrepo "github.com/clara-platform/clara-backend/internal/data/repos/user"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// LedgerService records model calls against the (user, project, operation)
// ledger and enforces the credit gate on AI operations.
type LedgerService struct {
	users  userrepo.UserRepo
	ledger billingrepo.LedgerRepo
	log    *logger.Logger
}

func NewLedgerService(users userrepo.UserRepo, ledger billingrepo.LedgerRepo, baseLog *logger.Logger) *LedgerService {
	return &LedgerService{
		users:  users,
		ledger: ledger,
		log:    baseLog.With("service", "LedgerService"),
	}
}

// CheckBudget guards operations that spend money. Admins and users with a
// personal API key pass regardless of balance; everyone else needs positive
// credit. Manual operations never call this.
func (s *LedgerService) CheckBudget(dbc dbctx.Context, userID uuid.UUID) error {
	u, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return clerror.New(clerror.ResourceMissing, "user %s not found", userID)
	}
	if u.IsAdmin || u.PersonalAPIKey != "" {
		return nil
	}
	if u.Credit <= 0 {
		return clerror.New(clerror.CostExhausted, "user %s has no credit left", u.Username)
	}
	return nil
}

// Record persists one operation's calls. Each insert and its credit deduction
// share a transaction inside the repo; zero-cost rule-tool calls are still
// recorded for the usage trail.
func (s *LedgerService) Record(dbc dbctx.Context, userID uuid.UUID, projectID *uuid.UUID, operation string, calls ...ai.Call) error {
	for _, call := range calls {
		rec := &types.APICall{
			UserID:     userID,
			ProjectID:  projectID,
			Operation:  operation,
			Prompt:     call.Prompt,
			Response:   call.Response,
			Cost:       call.Cost,
			DurationMS: call.Duration.Milliseconds(),
			Retries:    call.Retries,
			Timestamp:  call.Timestamp,
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
		if err := s.ledger.RecordCall(dbc, rec); err != nil {
			return err
		}
	}
	return nil
}

// ProjectCosts is the per-project cost breakdown shown on the project page.
type ProjectCosts struct {
	Total       float64            `json:"total"`
	ByOperation map[string]float64 `json:"by_operation"`
	Calls       int                `json:"calls"`
}

func (s *LedgerService) ProjectCosts(dbc dbctx.Context, projectID uuid.UUID) (*ProjectCosts, error) {
	calls, err := s.ledger.ListByProject(dbc, projectID)
	if err != nil {
		return nil, err
	}
	out := &ProjectCosts{ByOperation: map[string]float64{}, Calls: len(calls)}
	for _, c := range calls {
		out.Total += c.Cost
		out.ByOperation[c.Operation] += c.Cost
	}
	return out, nil
}

// Balance returns the user's remaining credit.
func (s *LedgerService) Balance(dbc dbctx.Context, userID uuid.UUID) (float64, error) {
	u, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, clerror.New(clerror.ResourceMissing, "user %s not found", userID)
	}
	return u.Credit, nil
}

// AddCredit tops up a user's balance.
func (s *LedgerService) AddCredit(dbc dbctx.Context, userID uuid.UUID, amount float64) error {
	if amount <= 0 {
		return clerror.New(clerror.Validation, "credit amount must be positive, got %v", amount)
	}
	return s.users.AddCredit(dbc, userID, amount)
}
