package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	billingrepo "github.com/clara-platform/clara-backend/internal/data/repos/billing"
	projectrepo "github.com/clara-platform/clara-backend/internal/data/repos/project"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	userrepo "github.com/clara-platform/clara-backend/internal/data/repos/user"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/pipeline"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
)

func ledgerFixture(t *testing.T) (*LedgerService, userrepo.UserRepo, dbctx.Context) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	users := userrepo.NewUserRepo(gdb, log)
	svc := NewLedgerService(users, billingrepo.NewLedgerRepo(gdb, log), log)
	return svc, users, dbctx.Context{Ctx: context.Background()}
}

func TestCheckBudgetBlocksBrokeUsers(t *testing.T) {
	svc, users, dbc := ledgerFixture(t)

	broke, err := users.Create(dbc, &types.User{Username: "broke", Credit: 0})
	require.NoError(t, err)
	funded, err := users.Create(dbc, &types.User{Username: "funded", Credit: 1.5})
	require.NoError(t, err)
	admin, err := users.Create(dbc, &types.User{Username: "admin", IsAdmin: true})
	require.NoError(t, err)
	keyed, err := users.Create(dbc, &types.User{Username: "keyed", PersonalAPIKey: "sk-own"})
	require.NoError(t, err)

	err = svc.CheckBudget(dbc, broke.ID)
	require.True(t, clerror.Is(err, clerror.CostExhausted))

	require.NoError(t, svc.CheckBudget(dbc, funded.ID))
	require.NoError(t, svc.CheckBudget(dbc, admin.ID))
	require.NoError(t, svc.CheckBudget(dbc, keyed.ID))

	err = svc.CheckBudget(dbc, uuid.New())
	require.True(t, clerror.Is(err, clerror.ResourceMissing))
}

func TestRecordDeductsCreditAndAggregates(t *testing.T) {
	svc, users, dbc := ledgerFixture(t)

	u, err := users.Create(dbc, &types.User{Username: "writer", Credit: 10})
	require.NoError(t, err)
	projectID := uuid.New()

	err = svc.Record(dbc, u.ID, &projectID, "annotate_gloss",
		ai.Call{Prompt: "gloss chunk 1", Cost: 0.04, Duration: 900 * time.Millisecond},
		ai.Call{Prompt: "gloss chunk 2", Cost: 0.06, Retries: 1},
	)
	require.NoError(t, err)
	err = svc.Record(dbc, u.ID, &projectID, "segment_ja", ai.Call{Prompt: "kagome", Cost: 0})
	require.NoError(t, err)

	balance, err := svc.Balance(dbc, u.ID)
	require.NoError(t, err)
	require.InDelta(t, 9.9, balance, 1e-9)

	costs, err := svc.ProjectCosts(dbc, projectID)
	require.NoError(t, err)
	require.Equal(t, 3, costs.Calls)
	require.InDelta(t, 0.1, costs.Total, 1e-9)
	require.InDelta(t, 0.1, costs.ByOperation["annotate_gloss"], 1e-9)
	require.Zero(t, costs.ByOperation["segment_ja"])
}

func TestAddCreditRejectsNonPositive(t *testing.T) {
	svc, users, dbc := ledgerFixture(t)
	u, err := users.Create(dbc, &types.User{Username: "topup", Credit: 1})
	require.NoError(t, err)

	require.True(t, clerror.Is(svc.AddCredit(dbc, u.ID, 0), clerror.Validation))
	require.NoError(t, svc.AddCredit(dbc, u.ID, 4))

	balance, err := svc.Balance(dbc, u.ID)
	require.NoError(t, err)
	require.InDelta(t, 5, balance, 1e-9)
}

func projectFixture(t *testing.T) (*ProjectService, filestore.Store, dbctx.Context) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	fs, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)
	svc := NewProjectService(fs, projectrepo.NewProjectRepo(gdb, log), log)
	return svc, fs, dbctx.Context{Ctx: context.Background()}
}

func TestCreateProjectDerivesInternalID(t *testing.T) {
	svc, _, dbc := projectFixture(t)

	p, err := svc.Create(dbc, CreateProjectRequest{
		OwnerID: uuid.New(),
		Title:   "Humpty Dumpty, Sat on a Wall!",
		L2:      "English",
		L1:      "French",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(p.InternalID, "humpty_dumpty_sat_on_a_wall_"), p.InternalID)
	require.Equal(t, "english", p.L2)
	require.Equal(t, "french", p.L1)

	// Same title, distinct project: the ID suffix keeps the trees apart.
	q, err := svc.Create(dbc, CreateProjectRequest{
		OwnerID: p.OwnerID, Title: "Humpty Dumpty, Sat on a Wall!", L2: "english", L1: "french",
	})
	require.NoError(t, err)
	require.NotEqual(t, p.InternalID, q.InternalID)

	_, err = svc.Create(dbc, CreateProjectRequest{OwnerID: p.OwnerID, Title: " ", L2: "en", L1: "fr"})
	require.True(t, clerror.Is(err, clerror.Validation))
	_, err = svc.Create(dbc, CreateProjectRequest{OwnerID: p.OwnerID, Title: "No L1", L2: "en"})
	require.True(t, clerror.Is(err, clerror.Validation))
}

func TestInternalIDDegenerateTitles(t *testing.T) {
	id := uuid.MustParse("a3bb189e-8bf9-3888-9912-ace4e6543002")
	require.Equal(t, "project_a3bb189e", internalID("!!!", id))
	require.True(t, strings.HasPrefix(internalID("café au lait", id), "café_au_lait_"))

	long := internalID(strings.Repeat("verylongword ", 20), id)
	require.LessOrEqual(t, len(long), 50+9)
}

func TestUpdateSettingsProtectsLanguages(t *testing.T) {
	svc, _, dbc := projectFixture(t)
	p, err := svc.Create(dbc, CreateProjectRequest{OwnerID: uuid.New(), Title: "settings", L2: "en", L1: "fr"})
	require.NoError(t, err)

	err = svc.UpdateSettings(dbc, p.ID, map[string]interface{}{"l2": "german"})
	require.True(t, clerror.Is(err, clerror.Validation))

	require.NoError(t, svc.UpdateSettings(dbc, p.ID, map[string]interface{}{"uses_picture_glossing": true}))
	got, err := svc.Get(dbc, p.ID)
	require.NoError(t, err)
	require.True(t, got.UsesPictureGlossing)
	require.Equal(t, "en", got.L2)
}

func TestDestroyRemovesRowAndTree(t *testing.T) {
	svc, fs, dbc := projectFixture(t)
	ctx := context.Background()

	p, err := svc.Create(dbc, CreateProjectRequest{OwnerID: uuid.New(), Title: "doomed", L2: "en", L1: "fr"})
	require.NoError(t, err)

	layerKey := pipeline.ProjectPrefix(p.InternalID) + "/text_versions/plain.txt"
	renderKey := "rendered_texts/" + p.InternalID + "/normal/page_1.html"
	require.NoError(t, fs.Write(ctx, layerKey, []byte("the text")))
	require.NoError(t, fs.Write(ctx, renderKey, []byte("<html></html>")))

	require.NoError(t, svc.Destroy(ctx, dbc, p.ID))

	for _, key := range []string{layerKey, renderKey} {
		exists, err := fs.Exists(ctx, key)
		require.NoError(t, err)
		require.False(t, exists, key)
	}
	_, err = svc.Get(dbc, p.ID)
	require.True(t, clerror.Is(err, clerror.ResourceMissing))
}

func TestSetAudioPreferencesValidatesKindAndMethod(t *testing.T) {
	svc, _, dbc := projectFixture(t)
	p, err := svc.Create(dbc, CreateProjectRequest{OwnerID: uuid.New(), Title: "audio prefs", L2: "en", L1: "fr"})
	require.NoError(t, err)

	err = svc.SetAudioPreferences(dbc, p.ID, AudioPreferencesRequest{Kind: "loud"})
	require.True(t, clerror.Is(err, clerror.Validation))
	err = svc.SetAudioPreferences(dbc, p.ID, AudioPreferencesRequest{Kind: "plain", Method: "telepathy"})
	require.True(t, clerror.Is(err, clerror.Validation))

	require.NoError(t, svc.SetAudioPreferences(dbc, p.ID, AudioPreferencesRequest{
		Kind: "plain", Method: "manual_align", UseForSegments: true, AudioFile: "narration.mp3",
	}))
	// Upsert replaces the same (project, kind) row.
	require.NoError(t, svc.SetAudioPreferences(dbc, p.ID, AudioPreferencesRequest{
		Kind: "plain", UseForWords: true,
	}))
}

func TestRenderedKeyRejectsTraversal(t *testing.T) {
	key, err := RenderedKey("story_1", "normal", "static/clara.css")
	require.NoError(t, err)
	require.Equal(t, "rendered_texts/story_1/normal/static/clara.css", key)

	key, err = RenderedKey("story_1", "normal", "")
	require.NoError(t, err)
	require.Equal(t, "rendered_texts/story_1/normal/page_1.html", key)

	_, err = RenderedKey("story_1", "normal", "../../etc/passwd")
	require.True(t, clerror.Is(err, clerror.Validation))
}
