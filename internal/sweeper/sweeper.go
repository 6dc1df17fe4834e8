// Package sweeper runs the periodic maintenance jobs in-process: the
// stuck-transcription sweep and the unprocessed-transcript sweep. The HTTP
// endpoints expose the same operations for external schedulers, so the
// contract of each job is only "eventually invoked at least once".
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one named maintenance operation.
type Job struct {
	Name string
	Run  func(context.Context) error
}

// Sweeper invokes its jobs at a fixed interval until the context is
// cancelled. Jobs run sequentially; a failing job is logged and retried on
// the next tick, never terminating the loop.
type Sweeper struct {
	interval time.Duration
	jobs     []Job
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a Sweeper with the given interval and jobs.
func New(interval time.Duration, logger *slog.Logger, jobs ...Job) *Sweeper {
	return &Sweeper{
		interval: interval,
		jobs:     jobs,
		logger:   logger,
	}
}

// Start launches the loop in a goroutine. Each job also runs once at start
// so a crashed process catches up immediately after restart.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runAll(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sweeper stopped")
				return
			case <-ticker.C:
				s.runAll(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited after context cancellation.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) runAll(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Error("sweep job failed", "job", job.Name, "error", err)
			continue
		}
		s.logger.Debug("sweep job finished", "job", job.Name, "duration", time.Since(start))
	}
}
