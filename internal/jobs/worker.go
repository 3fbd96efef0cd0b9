package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clara-platform/clara-backend/internal/config"
	jobsrepo "github.com/clara-platform/clara-backend/internal/data/repos/jobs"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

const (
	pollInterval      = 500 * time.Millisecond
	heartbeatInterval = 15 * time.Second
	retryDelay        = 5 * time.Second
	staleRunning      = 2 * time.Minute
	maxAttempts       = 3
)

// Pool claims queued jobs from the database and runs them on a fixed number
// of workers. Claiming is transactional (SKIP LOCKED on Postgres), so
// several pool instances can share one queue.
type Pool struct {
	runs     jobsrepo.JobRunRepo
	updates  jobsrepo.JobUpdateRepo
	registry Registry
	notifier Notifier
	workers  int
	log      *logger.Logger
}

func NewPool(runs jobsrepo.JobRunRepo, updates jobsrepo.JobUpdateRepo, registry Registry, notifier Notifier, cfg config.WorkerConfig, baseLog *logger.Logger) *Pool {
	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		runs:     runs,
		updates:  updates,
		registry: registry,
		notifier: notifier,
		workers:  workers,
		log:      baseLog.With("component", "JobPool"),
	}
}

// Run blocks until ctx is cancelled, polling for runnable jobs.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.workerLoop(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) {
	dbc := dbctx.Context{Ctx: ctx}
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.runs.ClaimNextRunnable(dbc, maxAttempts, retryDelay, staleRunning)
		if err != nil {
			p.log.Error("claim job", "error", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		p.RunJob(ctx, job)
	}
}

// RunJob executes one claimed job to completion: the handler runs with a
// heartbeat in the background, and the pool guarantees a terminal message
// and a final status row whatever the handler does.
func (p *Pool) RunJob(ctx context.Context, job *types.JobRun) {
	dbc := dbctx.Context{Ctx: ctx}
	jc := &Context{
		Ctx:      ctx,
		DBC:      dbc,
		Job:      job,
		updates:  p.updates,
		runs:     p.runs,
		notifier: p.notifier,
		log:      p.log,
	}

	handler, ok := p.registry[job.TaskType]
	if !ok {
		p.failPermanently(jc, fmt.Errorf("no handler registered for task type %q", job.TaskType))
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go p.heartbeat(hbCtx, dbc, job.ID)

	err := handler(jc)
	if err == nil {
		if !jc.terminalPosted {
			jc.Post(MessageFinished)
		}
		if uErr := p.runs.UpdateFields(dbc, job.ID, map[string]interface{}{
			"status":   "succeeded",
			"progress": 100,
		}); uErr != nil {
			p.log.Error("mark job succeeded", "job", job.ID, "error", uErr)
		}
		return
	}

	if permanent(err) || job.Attempts >= maxAttempts {
		p.failPermanently(jc, err)
		return
	}

	// Retryable with attempts left: the claim query will pick it up again
	// after the retry delay. The interim message must not read as terminal,
	// and the cause may carry terminal-looking substrings (an upstream "http
	// 500: internal server error", say), so it goes to the run row and the
	// log, never the message stream.
	jc.Post(fmt.Sprintf("attempt %d did not complete, retrying shortly", job.Attempts))
	p.log.Warn("job attempt failed, retrying", "job", job.ID, "task", job.TaskType, "error", err)
	if uErr := p.runs.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status":        "failed",
		"error":         err.Error(),
		"last_error_at": time.Now(),
	}); uErr != nil {
		p.log.Error("mark job for retry", "job", job.ID, "error", uErr)
	}
}

func (p *Pool) failPermanently(jc *Context, cause error) {
	jc.Post(fmt.Sprintf("%s: %v", MessageError, cause))
	if err := p.runs.UpdateFields(jc.DBC, jc.Job.ID, map[string]interface{}{
		"status":        "failed",
		"attempts":      maxAttempts,
		"error":         cause.Error(),
		"last_error_at": time.Now(),
	}); err != nil {
		p.log.Error("mark job failed", "job", jc.Job.ID, "error", err)
	}
	p.log.Error("job failed", "job", jc.Job.ID, "task", jc.Job.TaskType, "error", cause)
}

func (p *Pool) heartbeat(ctx context.Context, dbc dbctx.Context, id uuid.UUID) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.runs.Heartbeat(dbc, id); err != nil {
				p.log.Error("job heartbeat", "job", id, "error", err)
			}
		}
	}
}
