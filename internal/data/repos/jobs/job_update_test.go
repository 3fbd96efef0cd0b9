package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

func TestFetchUnreadReturnsEachMessageOnce(t *testing.T) {
	repo := NewJobUpdateRepo(testutil.DB(t), testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	reportID := uuid.New()
	userID := uuid.New()

	base := time.Now()
	for i, msg := range []string{"Started", "Segmenting text", "finished"} {
		err := repo.Append(dbc, &types.JobUpdate{
			ReportID:  reportID,
			UserID:    userID,
			TaskType:  "annotate",
			Message:   msg,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	first, err := repo.FetchUnread(dbc, reportID)
	if err != nil {
		t.Fatalf("FetchUnread: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(first))
	}
	if first[0].Message != "Started" || first[2].Message != "finished" {
		t.Fatalf("messages out of order: %v", first)
	}

	second, err := repo.FetchUnread(dbc, reportID)
	if err != nil {
		t.Fatalf("FetchUnread again: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("messages returned twice: %v", second)
	}
}

func TestFetchUnreadScopedToReport(t *testing.T) {
	repo := NewJobUpdateRepo(testutil.DB(t), testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	a, b := uuid.New(), uuid.New()

	_ = repo.Append(dbc, &types.JobUpdate{ReportID: a, UserID: uuid.New(), TaskType: "annotate", Message: "for a"})
	_ = repo.Append(dbc, &types.JobUpdate{ReportID: b, UserID: uuid.New(), TaskType: "render", Message: "for b"})

	got, err := repo.FetchUnread(dbc, a)
	if err != nil {
		t.Fatalf("FetchUnread: %v", err)
	}
	if len(got) != 1 || got[0].Message != "for a" {
		t.Fatalf("wrong messages for report a: %v", got)
	}
}

func TestClaimNextRunnablePicksOldestQueued(t *testing.T) {
	gdb := testutil.DB(t)
	repo := NewJobRunRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	now := time.Now()
	older := &types.JobRun{
		ID: uuid.New(), OwnerUserID: uuid.New(), TaskType: "annotate",
		Status: "queued", Stage: "queued",
		CreatedAt: now.Add(-2 * time.Minute), UpdatedAt: now,
	}
	newer := &types.JobRun{
		ID: uuid.New(), OwnerUserID: uuid.New(), TaskType: "render",
		Status: "queued", Stage: "queued",
		CreatedAt: now.Add(-1 * time.Minute), UpdatedAt: now,
	}
	if _, err := repo.Create(dbc, older); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(dbc, newer); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Second, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != older.ID {
		t.Fatalf("expected oldest job claimed, got %+v", claimed)
	}
	if claimed.Status != "running" {
		t.Fatalf("claimed job should be running, got %s", claimed.Status)
	}

	reloaded, _ := repo.GetByID(dbc, older.ID)
	if reloaded.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", reloaded.Attempts)
	}
}
