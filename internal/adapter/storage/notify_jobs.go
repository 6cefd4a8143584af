package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationJobRepository backs the queued notifier. Jobs survive restarts;
// claiming flips the row to IN_PROGRESS in the same statement that locks it,
// so concurrent workers never pick up the same job.
type NotificationJobRepository struct {
	Db *pgxpool.Pool
}

func NewNotificationJobRepository(db *pgxpool.Pool) *NotificationJobRepository {
	return &NotificationJobRepository{Db: db}
}

type NotificationJob struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Kind     string
	URL      string
	Payload  []byte
	Attempts int
}

func (r *NotificationJobRepository) Enqueue(ctx context.Context, ownerID uuid.UUID, kind, url string, payload []byte) error {
	_, err := r.Db.Exec(ctx, `
		INSERT INTO notification_jobs (owner_id, kind, url, payload)
		VALUES ($1, $2, $3, $4)`, ownerID, kind, url, payload)
	return err
}

// ClaimNext atomically claims the oldest runnable job, or nil when the queue
// is idle. The status flip happens inside the locking statement; a bare
// SELECT ... FOR UPDATE would release the lock at statement end and leave the
// row claimable again while this worker is still delivering.
func (r *NotificationJobRepository) ClaimNext(ctx context.Context) (*NotificationJob, error) {
	query := `
		UPDATE notification_jobs
		SET status = 'IN_PROGRESS'
		WHERE id = (
			SELECT id FROM notification_jobs
			WHERE status = 'PENDING' AND next_run_at <= NOW()
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, owner_id, kind, url, payload, attempts
	`
	var job NotificationJob
	err := r.Db.QueryRow(ctx, query).Scan(
		&job.ID, &job.OwnerID, &job.Kind, &job.URL, &job.Payload, &job.Attempts,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *NotificationJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.Db.Exec(ctx, `UPDATE notification_jobs SET status = 'COMPLETED' WHERE id = $1`, id)
	return err
}

func (r *NotificationJobRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.Db.Exec(ctx, `UPDATE notification_jobs SET status = 'FAILED' WHERE id = $1`, id)
	return err
}

func (r *NotificationJobRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, nextRun time.Time) error {
	_, err := r.Db.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'PENDING', attempts = attempts + 1, next_run_at = $2
		WHERE id = $1`, id, nextRun)
	return err
}
