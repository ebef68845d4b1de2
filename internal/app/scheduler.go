package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the maintenance jobs on their cron schedules.
type Scheduler struct {
	cron            *cron.Cron
	jobs            *Jobs
	logger          *slog.Logger
	overdueSchedule string
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, overdueSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:            cron.New(cron.WithChain(cron.Recover(cronLogger))),
		jobs:            jobs,
		logger:          logger,
		overdueSchedule: overdueSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler. An empty schedule
// disables the job.
func (s *Scheduler) Start() error {
	if s.overdueSchedule != "" {
		if _, err := s.cron.AddFunc(s.overdueSchedule, s.jobs.MarkOverdueFees); err != nil {
			return err
		}
		s.logger.Info("scheduled overdue fee sweep", "schedule", s.overdueSchedule)
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
