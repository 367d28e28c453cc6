package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one recurring unit of work with its own initial delay and period.
// Run does its own per-entity error handling; a panic escaping it is
// recovered and logged so one bad job run never takes the scheduler down.
type Job struct {
	Name         string
	InitialDelay time.Duration
	Period       time.Duration
	Run          func(ctx context.Context)
}

// Scheduler drives a fixed set of independently-periodic jobs off one
// context. Jobs sharing state coordinate through the engines' own locks.
type Scheduler struct {
	logger *zap.Logger
	jobs   []Job
	wg     sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches every job on its own goroutine. Jobs stop when the context
// is cancelled; Wait blocks until they have all returned.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.runLoop(ctx, job)
		}(job)
	}
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Wait blocks until all job loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	s.logger.Info("Job scheduled",
		zap.String("job", job.Name),
		zap.Duration("initial_delay", job.InitialDelay),
		zap.Duration("period", job.Period),
	)

	timer := time.NewTimer(job.InitialDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}
	s.runJob(ctx, job)

	ticker := time.NewTicker(job.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked",
				zap.String("job", job.Name),
				zap.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	job.Run(ctx)
	s.logger.Debug("Job run complete",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// UntilNextMinute returns the delay to the next minute boundary.
func UntilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}

// UntilNextHour returns the delay to the next hour boundary.
func UntilNextHour(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

// UntilHourOfDay returns the delay to the next occurrence of the given
// wall-clock hour, today if it is still ahead, otherwise tomorrow.
func UntilHourOfDay(now time.Time, hour int) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now)
}
