package bus

import (
	"context"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// JobNotifier adapts a Bus to the worker pool's fire-and-forget notifier
// shape. Publish failures are logged and swallowed; the update is already in
// the database.
type JobNotifier struct {
	bus Bus
	log *logger.Logger
}

func NewJobNotifier(b Bus, baseLog *logger.Logger) *JobNotifier {
	return &JobNotifier{bus: b, log: baseLog.With("component", "JobNotifier")}
}

func (n *JobNotifier) Publish(ctx context.Context, update *types.JobUpdate) {
	if err := n.bus.Publish(ctx, update); err != nil {
		n.log.Warn("publish job update", "report", update.ReportID, "error", err)
	}
}
