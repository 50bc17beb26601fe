package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("worker runner closed")

// Task is a unit of background work. Its error never reaches the submitter;
// it is handed to the ErrorHandler registered with the task.
type Task func(ctx context.Context) error

type ErrorHandler func(ctx context.Context, err error)

// Runner executes detached tasks with bounded concurrency.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	sem    *semaphore.Weighted
	closed atomic.Bool
}

func NewRunner(concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		group:  &errgroup.Group{},
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

// Submit schedules fn in the background and returns immediately.
func (r *Runner) Submit(name string, fn Task, onError ErrorHandler) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.group.Go(func() error {
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.report(name, onError, fmt.Errorf("task %s not started: %w", name, err))
			return nil
		}
		defer r.sem.Release(1)
		r.run(name, fn, onError)
		return nil
	})
	return nil
}

func (r *Runner) run(name string, fn Task, onError ErrorHandler) {
	logger := logutil.GetLogger(r.ctx).With(zap.String("task", name))
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task panic: %v", p)
			}
		}()
		return fn(r.ctx)
	}()
	if err != nil {
		logger.Error("task failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		r.report(name, onError, err)
		return
	}
	logger.Debug("task finished", zap.Duration("duration", time.Since(start)))
}

func (r *Runner) report(name string, onError ErrorHandler, err error) {
	if onError == nil {
		return
	}
	// the runner context may already be cancelled; status updates still need to land.
	onError(context.WithoutCancel(r.ctx), err)
}

// Close stops accepting tasks and waits for in-flight ones. Tasks still waiting
// for a slot when the wait exceeds timeout are cancelled.
func (r *Runner) Close(timeout time.Duration) {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	done := make(chan struct{})
	go func() {
		_ = r.group.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		r.cancel()
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logutil.GetLogger(r.ctx).Warn("worker close timeout, cancel remaining tasks", zap.Duration("timeout", timeout))
		r.cancel()
		<-done
	}
	r.cancel()
}

// Wait blocks until every task submitted so far has finished.
func (r *Runner) Wait() {
	_ = r.group.Wait()
}
