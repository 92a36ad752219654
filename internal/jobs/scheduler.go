package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Schedules are standard five-field cron specs
type Schedules struct {
	Rollover  string
	Payout    string
	Reconcile string
}

// Scheduler runs the payout jobs on their cron schedules
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

// NewScheduler creates a scheduler in the given IANA zone, falling back to UTC
func NewScheduler(runner *Runner, timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).WithField("timezone", timezone).Warn("Unknown timezone, using UTC")
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:   c,
		runner: runner,
	}
}

// Start registers every job and starts the cron loop
func (s *Scheduler) Start(ctx context.Context, sched Schedules) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"rollover", sched.Rollover, func(ctx context.Context) error {
			_, err := s.runner.RunRollover(ctx)
			return err
		}},
		{"payout", sched.Payout, func(ctx context.Context) error {
			_, err := s.runner.RunPayout(ctx)
			return err
		}},
		{"reconcile", sched.Reconcile, func(ctx context.Context) error {
			_, err := s.runner.RunReconcile(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, func() {
			log.WithField("job", j.name).Info("[CRON] Scheduled run")
			// Errors are already logged by the runner
			_ = j.run(ctx)
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}

	s.cron.Start()
	log.WithField("location", s.cron.Location().String()).Info("Job scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Job scheduler stopped")
}
