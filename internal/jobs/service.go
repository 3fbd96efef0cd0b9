package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobsrepo "github.com/clara-platform/clara-backend/internal/data/repos/jobs"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// Service enqueues jobs and answers status polls.
type Service struct {
	runs    jobsrepo.JobRunRepo
	updates jobsrepo.JobUpdateRepo
	log     *logger.Logger
}

func NewService(runs jobsrepo.JobRunRepo, updates jobsrepo.JobUpdateRepo, baseLog *logger.Logger) *Service {
	return &Service{runs: runs, updates: updates, log: baseLog.With("service", "JobService")}
}

// EnqueueRequest describes one job to dispatch.
type EnqueueRequest struct {
	TaskType  string
	UserID    uuid.UUID
	ProjectID *uuid.UUID
	Payload   any
}

// Enqueue creates a queued job row and returns it; the returned ID is the
// report_id to poll.
func (s *Service) Enqueue(dbc dbctx.Context, req EnqueueRequest) (*types.JobRun, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, err
	}
	job, err := s.runs.Create(dbc, &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: req.UserID,
		ProjectID:   req.ProjectID,
		TaskType:    req.TaskType,
		Status:      "queued",
		Payload:     datatypes.JSON(payload),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("job enqueued", "job", job.ID, "task", job.TaskType)
	return job, nil
}

// StatusResponse is one poll's answer: the messages not yet delivered, in
// timestamp order, and the status derived over the whole stream.
type StatusResponse struct {
	ReportID uuid.UUID          `json:"report_id"`
	Status   string             `json:"status"`
	Messages []*types.JobUpdate `json:"messages"`
}

// Status returns the unread messages (marking them read, so each message is
// delivered to the consumer once) and the derived status. The status is
// computed over the full stream, so a poll after the terminal message still
// reports it.
func (s *Service) Status(dbc dbctx.Context, reportID uuid.UUID) (*StatusResponse, error) {
	unread, err := s.updates.FetchUnread(dbc, reportID)
	if err != nil {
		return nil, err
	}
	all, err := s.updates.ListAll(dbc, reportID)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(all))
	for i, u := range all {
		texts[i] = u.Message
	}
	return &StatusResponse{
		ReportID: reportID,
		Status:   DeriveStatus(texts),
		Messages: unread,
	}, nil
}
