// Package scheduler wires up the cron job that periodically runs a crawl.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron and runs a single job on a fixed interval.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	job  Job
	spec string // cron spec, e.g. "@every 600s"
	log  *slog.Logger
	wg   sync.WaitGroup // the immediate run started by Start
}

// New creates a Scheduler that fires every interval.
func New(job Job, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		job:  job,
		spec: fmt.Sprintf("@every %s", interval),
		log:  log.With("component", "scheduler"),
	}
}

// Start registers the job and starts the scheduler. It also runs the job
// once immediately so the catalog fills without waiting for the first tick.
//
// Runs do not inherit ctx cancellation: a crawl that has started is allowed
// to finish and commit; Stop waits for it.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx := context.WithoutCancel(ctx)
	id, err := s.cron.AddFunc(s.spec, func() { s.run(runCtx) })
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", "spec", s.spec)

	// Same wrapped job, so the immediate run also counts as "still running".
	wrapped := s.cron.Entry(id).WrappedJob
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wrapped.Run()
	}()

	return nil
}

// Stop halts the scheduler and waits for a running job to return or for
// ctx to end, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("cron stopped")
	case <-ctx.Done():
		s.log.Warn("cron stop timed out, job still running")
	}
}

func (s *Scheduler) run(ctx context.Context) {
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Error("scheduled run failed", "err", err)
		return
	}
	s.log.Info("scheduled run complete", "took", time.Since(start).Round(time.Millisecond))
}
