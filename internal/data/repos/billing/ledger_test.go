package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	userrepo "github.com/clara-platform/clara-backend/internal/data/repos/user"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

func TestRecordCallDeductsCredit(t *testing.T) {
	gdb := testutil.DB(t)
	logg := testutil.Logger(t)
	ledger := NewLedgerRepo(gdb, logg)
	users := userrepo.NewUserRepo(gdb, logg)
	dbc := dbctx.Context{Ctx: context.Background()}

	u, err := users.Create(dbc, &types.User{
		Username:  "mary",
		Credit:    5.0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	projectID := uuid.New()
	err = ledger.RecordCall(dbc, &types.APICall{
		UserID:     u.ID,
		ProjectID:  &projectID,
		Operation:  "generate_gloss",
		Prompt:     "gloss these words",
		Cost:       1.25,
		DurationMS: 900,
	})
	require.NoError(t, err)

	reloaded, err := users.GetByID(dbc, u.ID)
	require.NoError(t, err)
	require.InDelta(t, 3.75, reloaded.Credit, 1e-9)

	calls, err := ledger.ListByProject(dbc, projectID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "generate_gloss", calls[0].Operation)

	total, err := ledger.TotalCostForUser(dbc, u.ID)
	require.NoError(t, err)
	require.InDelta(t, 1.25, total, 1e-9)
}

func TestRecordCallAllowsNegativeBalance(t *testing.T) {
	gdb := testutil.DB(t)
	logg := testutil.Logger(t)
	ledger := NewLedgerRepo(gdb, logg)
	users := userrepo.NewUserRepo(gdb, logg)
	dbc := dbctx.Context{Ctx: context.Background()}

	u, err := users.Create(dbc, &types.User{
		Username:  "pat",
		Credit:    0.5,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	err = ledger.RecordCall(dbc, &types.APICall{
		UserID:    u.ID,
		Operation: "generate_image",
		Cost:      2.0,
	})
	require.NoError(t, err)

	reloaded, err := users.GetByID(dbc, u.ID)
	require.NoError(t, err)
	require.InDelta(t, -1.5, reloaded.Credit, 1e-9)
}
