// Package workpool provides the bounded worker pool shared with the
// edge-computation phase.
package workpool

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work submitted to the pool.
type Task func(ctx context.Context) error

// Pool fans tasks out to at most Size goroutines at a time. A Pool may be
// reused across calls to Run; each call gets its own errgroup.
type Pool struct {
	size   int
	active atomic.Int64
}

// New creates a Pool with size workers; size <= 0 means runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{size: size}
}

// Size returns the worker limit.
func (p *Pool) Size() int {
	return p.size
}

// Active reports how many tasks are executing right now.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Run executes every task and blocks until all have returned. The first
// error cancels the context handed to the remaining tasks and is returned.
func (p *Pool) Run(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i, task := range tasks {
		if task == nil {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.active.Add(1)
			defer p.active.Add(-1)
			if err := task(gctx); err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pool run canceled: %w", err)
	}
	return nil
}
