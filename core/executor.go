package core

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// InlineExecutor runs each task on the calling goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Go(ctx context.Context, task func()) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	task()
	return nil
}

// BoundedExecutor runs tasks on goroutines, at most workers at a time.
// Go blocks while the pool is saturated and gives up when ctx ends.
type BoundedExecutor struct {
	sem     *semaphore.Weighted
	workers int
	wg      sync.WaitGroup
}

func NewBoundedExecutor(workers int) *BoundedExecutor {
	if workers <= 0 {
		workers = 1
	}
	return &BoundedExecutor{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

func (e *BoundedExecutor) Go(ctx context.Context, task func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.sem.Release(1)
		task()
	}()
	return nil
}

func (e *BoundedExecutor) Workers() int { return e.workers }

// Wait blocks until every started task has returned.
func (e *BoundedExecutor) Wait() {
	e.wg.Wait()
}

var (
	_ Executor = InlineExecutor{}
	_ Executor = (*BoundedExecutor)(nil)
)
