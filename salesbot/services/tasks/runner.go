// Package tasks runs work after the HTTP response has been written.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salesbot/salesbot/utils/logging"

	"go.uber.org/zap"
)

// Runner executes detached tasks. Failures are logged and never retried.
type Runner struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewRunner() *Runner {
	return &Runner{}
}

// Go schedules fn and returns immediately. ctx is detached from its
// cancellation so the task outlives the request that scheduled it. It
// reports false once Shutdown has started.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		logging.ErrorLogger.Error("task rejected after shutdown", zap.String("task", name))
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		start := time.Now()
		err := run(taskCtx, fn)
		if err != nil {
			logging.ErrorLogger.Error("background task failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		logging.AppLogger.Info("background task done",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()
	return true
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting tasks and waits for running ones until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
