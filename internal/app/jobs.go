/**
 * @description
 * Scheduled maintenance jobs run by the portal's cron scheduler.
 */
package app

import (
	"context"
	"log/slog"
)

// FeeMaintainer is the subset of the service used by the jobs.
type FeeMaintainer interface {
	MarkOverdueFees(ctx context.Context) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	fees   FeeMaintainer
	logger *slog.Logger
}

func NewJobs(fees FeeMaintainer, logger *slog.Logger) *Jobs {
	return &Jobs{fees: fees, logger: logger}
}

// MarkOverdueFees flags unpaid fees whose due date has passed.
func (j *Jobs) MarkOverdueFees() {
	j.logger.Info("starting overdue fee sweep")
	ctx := context.Background()

	updated, err := j.fees.MarkOverdueFees(ctx)
	if err != nil {
		j.logger.Error("failed to mark overdue fees", "error", err)
		return
	}

	j.logger.Info("overdue fee sweep finished", "updated", updated)
}
