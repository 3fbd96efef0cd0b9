package images

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

func TestSaveArchivesPredecessor(t *testing.T) {
	repo := NewImageRecordRepo(testutil.DB(t), testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	projectID := uuid.New()

	first, err := repo.Save(dbc, &types.ImageRecord{
		ProjectID: projectID,
		ImageName: "cover",
		FilePath:  "images/cover_v1.jpg",
		Page:      1,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := repo.Save(dbc, &types.ImageRecord{
		ProjectID: projectID,
		ImageName: "cover",
		FilePath:  "images/cover_v2.jpg",
		Page:      1,
	})
	if err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	current, err := repo.GetCurrent(dbc, projectID, "cover")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current == nil || current.ID != second.ID {
		t.Fatalf("expected v2 current, got %+v", current)
	}

	archived, err := repo.ListArchived(dbc, projectID, "cover")
	if err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != first.ID {
		t.Fatalf("expected v1 archived, got %+v", archived)
	}
}

func TestRestorePromotesArchive(t *testing.T) {
	repo := NewImageRecordRepo(testutil.DB(t), testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	projectID := uuid.New()

	v1, _ := repo.Save(dbc, &types.ImageRecord{ProjectID: projectID, ImageName: "cover", FilePath: "v1.jpg"})
	_, _ = repo.Save(dbc, &types.ImageRecord{ProjectID: projectID, ImageName: "cover", FilePath: "v2.jpg"})

	restored, err := repo.Restore(dbc, v1.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.FilePath != "v1.jpg" {
		t.Fatalf("restored wrong record: %+v", restored)
	}

	current, _ := repo.GetCurrent(dbc, projectID, "cover")
	if current == nil || current.ID != v1.ID {
		t.Fatalf("expected v1 current after restore, got %+v", current)
	}
	archived, _ := repo.ListArchived(dbc, projectID, "cover")
	if len(archived) != 1 || archived[0].FilePath != "v2.jpg" {
		t.Fatalf("expected v2 archived, got %+v", archived)
	}
}

func TestDeleteCurrentKeepsArchives(t *testing.T) {
	repo := NewImageRecordRepo(testutil.DB(t), testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	projectID := uuid.New()

	_, _ = repo.Save(dbc, &types.ImageRecord{ProjectID: projectID, ImageName: "cover", FilePath: "v1.jpg"})
	_, _ = repo.Save(dbc, &types.ImageRecord{ProjectID: projectID, ImageName: "cover", FilePath: "v2.jpg"})

	if err := repo.DeleteCurrent(dbc, projectID, "cover"); err != nil {
		t.Fatalf("DeleteCurrent: %v", err)
	}
	current, _ := repo.GetCurrent(dbc, projectID, "cover")
	if current != nil {
		t.Fatalf("expected no current, got %+v", current)
	}
	archived, _ := repo.ListArchived(dbc, projectID, "cover")
	if len(archived) != 1 {
		t.Fatalf("archives should survive delete, got %d", len(archived))
	}
}
