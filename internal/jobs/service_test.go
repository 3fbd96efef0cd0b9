package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	jobsrepo "github.com/clara-platform/clara-backend/internal/data/repos/jobs"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		messages []string
		want     string
	}{
		{"empty stream", nil, StatusUnknown},
		{"progress only", []string{"Segmenting text", "Glossing"}, StatusUnknown},
		{"finished", []string{"Segmenting text", "finished"}, StatusFinished},
		{"simple mode terminal", []string{"simple mode: render", "finished_simple_clara_action"}, StatusFinished},
		{"error wins over finished", []string{"finished", "error: disk full"}, StatusError},
		{"error embedded in message", []string{"error: model call failed"}, StatusError},
		{"finished stays after later progress", []string{"finished", "late message"}, StatusFinished},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.messages))
		})
	}
}

func jobFixture(t *testing.T) (*Service, jobsrepo.JobRunRepo, jobsrepo.JobUpdateRepo, dbctx.Context) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	runs := jobsrepo.NewJobRunRepo(gdb, log)
	updates := jobsrepo.NewJobUpdateRepo(gdb, log)
	return NewService(runs, updates, log), runs, updates, dbctx.Context{Ctx: context.Background()}
}

func TestEnqueueCreatesQueuedRow(t *testing.T) {
	svc, runs, _, dbc := jobFixture(t)
	projectID := uuid.New()

	job, err := svc.Enqueue(dbc, EnqueueRequest{
		TaskType:  TaskAnnotate,
		UserID:    uuid.New(),
		ProjectID: &projectID,
		Payload:   AnnotatePayload{Layer: "segmented", Operation: "generate"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, job.ID)

	stored, err := runs.GetByID(dbc, job.ID)
	require.NoError(t, err)
	require.Equal(t, "queued", stored.Status)
	require.Equal(t, TaskAnnotate, stored.TaskType)
	require.Equal(t, projectID, *stored.ProjectID)
	require.JSONEq(t, `{"layer":"segmented","operation":"generate"}`, string(stored.Payload))
}

func TestStatusDeliversMessagesOnceButKeepsDerivedStatus(t *testing.T) {
	svc, _, updates, dbc := jobFixture(t)

	job, err := svc.Enqueue(dbc, EnqueueRequest{TaskType: TaskRender, UserID: uuid.New()})
	require.NoError(t, err)

	jc := &Context{DBC: dbc, Job: job, updates: updates, runs: svc.runs, log: svc.log}
	jc.Post("rendering normal variant")
	jc.Post(MessageFinished)

	first, err := svc.Status(dbc, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, first.Status)
	require.Len(t, first.Messages, 2)
	require.Equal(t, "rendering normal variant", first.Messages[0].Message)
	require.Equal(t, MessageFinished, first.Messages[1].Message)

	// The messages were delivered; the terminal status must survive them.
	second, err := svc.Status(dbc, job.ID)
	require.NoError(t, err)
	require.Empty(t, second.Messages)
	require.Equal(t, StatusFinished, second.Status)
}

func TestStatusUnknownForUnstartedJob(t *testing.T) {
	svc, _, _, dbc := jobFixture(t)

	job, err := svc.Enqueue(dbc, EnqueueRequest{TaskType: TaskExport, UserID: uuid.New()})
	require.NoError(t, err)

	res, err := svc.Status(dbc, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, res.Status)
	require.Empty(t, res.Messages)
}
