// Package jobs runs every long operation asynchronously: a job row is
// enqueued with a task type and payload, claimed by a worker, and reports
// progress through an append-only message stream keyed by the job's ID (the
// report_id consumers poll with). Jobs are cancellation-unaware; consumers
// poll until a terminal message appears.
package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	jobsrepo "github.com/clara-platform/clara-backend/internal/data/repos/jobs"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// Task types dispatched through the worker pool.
const (
	TaskAnnotate       = "annotate"
	TaskRender         = "render"
	TaskImagesStyle    = "images_process_style"
	TaskImagesElements = "images_process_elements"
	TaskImagesPages    = "images_process_pages"
	TaskExport         = "export"
	TaskSimpleAction   = "simple_clara_action"
)

// Terminal message tokens. Any message containing "finished" or "error"
// terminates polling; simple mode uses its own token so its consumer can
// distinguish the chained pipeline from a single operation.
const (
	MessageFinished       = "finished"
	MessageError          = "error"
	MessageFinishedSimple = "finished_simple_clara_action"
)

// Derived statuses returned by the status endpoint.
const (
	StatusError    = "error"
	StatusFinished = "finished"
	StatusUnknown  = "unknown"
)

// DeriveStatus folds a message stream into the consumer-facing status. Any
// message containing "error" wins over any containing "finished".
func DeriveStatus(messages []string) string {
	status := StatusUnknown
	for _, m := range messages {
		if strings.Contains(m, MessageError) {
			return StatusError
		}
		if strings.Contains(m, MessageFinished) {
			status = StatusFinished
		}
	}
	return status
}

// Handler executes one task type. Returning an error fails the job; a
// retryable error re-queues it until the attempt budget runs out.
type Handler func(jc *Context) error

// Registry maps task types to their handlers.
type Registry map[string]Handler

func (r Registry) Register(taskType string, h Handler) { r[taskType] = h }

// Notifier fans a posted update out to live listeners; the database stream
// stays the source of truth.
type Notifier interface {
	Publish(ctx context.Context, update *types.JobUpdate)
}

// Context is what a handler runs with: the claimed job, database access and
// the progress stream.
type Context struct {
	Ctx context.Context
	DBC dbctx.Context
	Job *types.JobRun

	updates  jobsrepo.JobUpdateRepo
	runs     jobsrepo.JobRunRepo
	notifier Notifier
	log      *logger.Logger

	terminalPosted bool
}

// Post appends one message to the job's stream.
func (jc *Context) Post(message string) {
	update := &types.JobUpdate{
		ReportID:  jc.Job.ID,
		UserID:    jc.Job.OwnerUserID,
		TaskType:  jc.Job.TaskType,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := jc.updates.Append(jc.DBC, update); err != nil {
		jc.log.Error("append job update", "job", jc.Job.ID, "error", err)
		return
	}
	if jc.notifier != nil {
		jc.notifier.Publish(jc.Ctx, update)
	}
	if strings.Contains(message, MessageFinished) || strings.Contains(message, MessageError) {
		jc.terminalPosted = true
	}
}

// Progress posts a message and moves the job's stage and percentage.
func (jc *Context) Progress(stage string, percent int, message string) {
	jc.Post(message)
	if err := jc.runs.UpdateFields(jc.DBC, jc.Job.ID, map[string]interface{}{
		"stage":    stage,
		"progress": percent,
		"message":  message,
	}); err != nil {
		jc.log.Error("update job progress", "job", jc.Job.ID, "error", err)
	}
}

// Finish posts a task-specific terminal token instead of the default
// "finished" the pool would otherwise post.
func (jc *Context) Finish(token string) {
	jc.Post(token)
}

// permanent reports whether an error should exhaust the job's retries
// immediately. Only model transport failures are worth retrying.
func permanent(err error) bool {
	return !clerror.Retryable(err)
}
