// Package worker drains the notification job queue in the background.
// Delivery failures back off linearly and give up after five attempts; the
// transactional paths that enqueued the job are long gone by then, which is
// the point.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/notifications"
)

const maxAttempts = 5

func StartNotificationWorker(jobs *storage.NotificationJobRepository, secret string) (stop func()) {
	done := make(chan struct{})
	go func() {
		slog.Info("👷 Notification worker started")
		for {
			select {
			case <-done:
				slog.Info("🛑 Notification worker stopped")
				return
			case <-time.After(5 * time.Second):
				processJobs(jobs, secret)
			}
		}
	}()
	return func() { close(done) }
}

func processJobs(jobs *storage.NotificationJobRepository, secret string) {
	ctx := context.Background()

	job, err := jobs.ClaimNext(ctx)
	if err != nil {
		slog.Error("worker: failed to claim job", "error", err)
		return
	}
	if job == nil {
		return
	}

	slog.Info("worker: dispatching notification", "job_id", job.ID, "kind", job.Kind)

	if sendErr := notifications.SendWebhook(job.URL, job.Payload, secret); sendErr != nil {
		slog.Error("worker: delivery failed", "error", sendErr, "attempts", job.Attempts)
		if job.Attempts+1 >= maxAttempts {
			if err := jobs.MarkFailed(ctx, job.ID); err != nil {
				slog.Error("worker: failed to mark job failed", "error", err, "job_id", job.ID)
			}
			slog.Error("worker: job abandoned after max attempts", "job_id", job.ID)
			return
		}
		nextRun := time.Now().Add(time.Duration(job.Attempts*10+10) * time.Second)
		if err := jobs.ScheduleRetry(ctx, job.ID, nextRun); err != nil {
			slog.Error("worker: failed to schedule retry", "error", err, "job_id", job.ID)
		}
		return
	}

	if err := jobs.MarkCompleted(ctx, job.ID); err != nil {
		slog.Error("worker: failed to mark job completed", "error", err, "job_id", job.ID)
		return
	}
	slog.Info("✅ worker: notification delivered", "job_id", job.ID)
}
