package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSubscriptionSweepTask creates the scheduled task function that
// evaluates subscription reminders and expirations for every tenant.
func newSubscriptionSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "subscription_sweep")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting subscription sweep...")
		startTime := time.Now()

		err := deps.Metering.SweepAll(ctx)

		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Subscription sweep failed", "error", err, "duration", duration)
			return fmt.Errorf("subscription sweep failed: %w", err)
		}

		log.InfoContext(ctx, "Subscription sweep completed", "duration", duration)
		return nil
	}
}
