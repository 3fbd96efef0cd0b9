// Package bus fans job updates out across replicas. The database stream is
// the source of truth; the bus only lets another replica's status endpoint
// converge without waiting for a poll cycle.
package bus

import (
	"context"

	types "github.com/clara-platform/clara-backend/internal/domain"
)

type Bus interface {
	Publish(ctx context.Context, update *types.JobUpdate) error
	// StartForwarder subscribes and invokes onMsg for every update published
	// by any replica, until ctx is cancelled.
	StartForwarder(ctx context.Context, onMsg func(update *types.JobUpdate)) error
	Close() error
}

// Nop is the single-replica bus: publishing is a no-op because the local
// database already has the update.
type Nop struct{}

func (Nop) Publish(context.Context, *types.JobUpdate) error              { return nil }
func (Nop) StartForwarder(context.Context, func(*types.JobUpdate)) error { return nil }
func (Nop) Close() error                                                 { return nil }
