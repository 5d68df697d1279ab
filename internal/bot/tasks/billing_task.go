package tasks

import (
	"context"
	"fmt"
	"time"
)

// newDailyBillingTask creates the scheduled task function that runs one
// billing cycle over every tenant.
func newDailyBillingTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_billing")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting daily billing cycle...")
		startTime := time.Now()

		err := deps.Metering.RunBillingCycle(ctx)

		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Daily billing cycle failed", "error", err, "duration", duration)
			return fmt.Errorf("daily billing failed: %w", err)
		}

		log.InfoContext(ctx, "Daily billing cycle completed", "duration", duration)
		return nil
	}
}
