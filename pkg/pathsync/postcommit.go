package pathsync

import (
	"context"
	"errors"
	"sync"

	"github.com/solaius/pathkeeper/pkg/entity"
)

// Queue is an explicit post-commit callback list. Callers that write several
// entities inside one outer transaction enqueue their path syncs here and
// flush after committing, so the engine never reads half-written state.
type Queue struct {
	mu  sync.Mutex
	fns []func(context.Context) error
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add appends a callback to run at flush time.
func (q *Queue) Add(fn func(context.Context) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
}

// Len returns the number of pending callbacks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

// Flush runs the pending callbacks in order and clears the queue. Every
// callback runs even when earlier ones fail; failures come back joined.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EnqueueSync defers a full Sync of the entity onto the queue.
func (e *Engine) EnqueueSync(q *Queue, ent entity.PathBuilder, opts Options) {
	q.Add(func(ctx context.Context) error {
		_, err := e.Sync(ctx, ent, opts)
		return err
	})
}
