package async

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Dispatch executes a handler function asynchronously in a new goroutine.
// It creates a background context that keeps the caller's logger; errors and
// panics are logged and never propagate past the task boundary.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := detach(ctx)
	go run(bgCtx, handler)
}

func detach(ctx context.Context) context.Context {
	bgCtx := context.Background()
	if logger := logging.From(ctx); logger != nil {
		bgCtx = logging.With(bgCtx, logger)
	}
	return bgCtx
}

func run(ctx context.Context, handler func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logging.From(ctx).Error("panic in async handler", "panic", r)
		}
	}()

	if err := handler(ctx); err != nil {
		errutil.Handle(ctx, err, "async handler failed")
	}
}

// Pool runs background tasks with bounded concurrency
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool creates a pool running at most size tasks at once
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Submit schedules handler on the pool. It returns immediately; the task waits
// for a free slot in its own goroutine.
func (p *Pool) Submit(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := detach(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(bgCtx, 1); err != nil {
			logging.From(bgCtx).Error("failed to acquire worker slot", "error", err)
			return
		}
		defer p.sem.Release(1)
		run(bgCtx, handler)
	}()
}

// Wait blocks until every submitted task has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}
