// Package burst runs batches of independent tasks on a fixed number of
// workers shared by every batch.
package burst

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type MultiBurst struct {
	size int
	sem  chan struct{}
}

// New returns a pool of size workers; size < 1 means GOMAXPROCS.
func New(size int) *MultiBurst {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &MultiBurst{size: size, sem: make(chan struct{}, size)}
}

func (m *MultiBurst) Size() int { return m.size }

// Burst starts a batch expected to hold about n tasks.
func (m *MultiBurst) Burst(n int) *Executor {
	g := &errgroup.Group{}
	g.SetLimit(max(1, min(n, m.size)))
	return &Executor{pool: m, g: g}
}

type Executor struct {
	pool *MultiBurst
	g    *errgroup.Group
}

// Queue schedules fn. It blocks while the batch already has as many tasks
// in flight as the pool has workers.
func (e *Executor) Queue(fn func()) {
	e.g.Go(func() error {
		e.pool.sem <- struct{}{}
		defer func() { <-e.pool.sem }()
		fn()
		return nil
	})
}

// Complete waits for every queued task.
func (e *Executor) Complete() {
	_ = e.g.Wait()
}

// CompleteContext waits for every queued task or until ctx is done. Tasks
// still running when ctx ends keep running; their results are simply not
// waited for.
func (e *Executor) CompleteContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = e.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
