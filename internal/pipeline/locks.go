package pipeline

import (
	"sync"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// lockTable serialises writes per (project, layer). A second writer gets a
// Concurrency error instead of blocking; callers re-enqueue through the job
// layer rather than interleave.
type lockTable struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLockTable() *lockTable {
	return &lockTable{held: map[string]bool{}}
}

func (t *lockTable) acquire(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held[key] {
		return clerror.New(clerror.Concurrency, "layer %s is being written by another job", key)
	}
	t.held[key] = true
	return nil
}

func (t *lockTable) release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, key)
}
