package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reposweep/internal/gitsync"
)

// Task is one dispatchable unit of work: a repository with its sync plan.
type Task struct {
	Target gitsync.Target
	Plan   gitsync.Plan
}

// ProcessFunc runs the full pipeline for one task and returns its result.
type ProcessFunc func(ctx context.Context, task Task) OperationResult

type Scheduler struct {
	process     ProcessFunc
	concurrency int
}

func NewScheduler(process ProcessFunc, concurrency int) (*Scheduler, error) {
	if process == nil {
		return nil, errors.New("process func is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{process: process, concurrency: concurrency}, nil
}

// Execute streams per-repository completion results.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one OperationResult is sent per task.
//   - On context cancellation, the scheduler stops promptly; it may emit fewer results.
//   - The results channel is closed reliably once all dispatched work finishes.
func (s *Scheduler) Execute(ctx context.Context, tasks []Task) <-chan OperationResult {
	resultsCh := make(chan OperationResult)

	go func() {
		defer close(resultsCh)

		if ctx == nil {
			ctx = context.Background()
		}
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Limit active repos (favor repo completion).
		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup

	scheduleLoop:
		for _, task := range tasks {
			if runCtx.Err() != nil {
				break
			}
			select {
			case sem <- struct{}{}:
				// acquired
			case <-runCtx.Done():
				break scheduleLoop
			}

			wg.Add(1)
			go func(task Task) {
				defer wg.Done()
				defer func() { <-sem }()

				res := s.process(runCtx, task)
				if runCtx.Err() != nil {
					return
				}
				select {
				case resultsCh <- res:
				case <-runCtx.Done():
				}
			}(task)
		}

		wg.Wait()
	}()

	return resultsCh
}
