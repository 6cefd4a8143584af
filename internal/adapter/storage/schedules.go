package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

// ScheduleRepository implements ports.SchedulePort on Postgres.
type ScheduleRepository struct {
	Db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{Db: db}
}

// DueSchedules returns active schedules whose next run date has arrived and
// whose current cycle has no live (non-terminal) instance left.
func (r *ScheduleRepository) DueSchedules(ctx context.Context, asOf time.Time) ([]domain.RecurringSchedule, error) {
	query := `
		SELECT s.id, s.kind, s.owner_entity_id, s.frequency, s.status,
		       COALESCE(s.last_run_date, 'epoch'::date),
		       s.next_run_date,
		       COALESCE(s.last_instance_date, 'epoch'::date),
		       s.amount, s.currency, s.country_code, s.description, s.recipient
		FROM recurring_schedules s
		WHERE s.status = 'ACTIVE'
		  AND s.next_run_date <= $1
		  AND NOT EXISTS (
		      SELECT 1 FROM schedule_instances i
		      WHERE i.schedule_id = s.id
		        AND i.status NOT IN ('PAID', 'COMPLETED', 'CANCELLED')
		  )
		ORDER BY s.next_run_date ASC
	`
	rows, err := r.Db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecurringSchedule
	for rows.Next() {
		var s domain.RecurringSchedule
		var recipient []byte
		err := rows.Scan(
			&s.ID, &s.Kind, &s.OwnerEntityID, &s.Frequency, &s.Status,
			&s.LastRunDate, &s.NextRunDate, &s.LastInstanceDate,
			&s.Amount, &s.Currency, &s.CountryCode, &s.Description, &recipient,
		)
		if err != nil {
			return nil, err
		}
		if len(recipient) > 0 {
			_ = json.Unmarshal(recipient, &s.Recipient)
		}
		if s.LastInstanceDate.Year() <= 1970 {
			s.LastInstanceDate = time.Time{}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) HasOpenInstance(ctx context.Context, sched *domain.RecurringSchedule, dueDate time.Time) (bool, error) {
	var exists bool
	err := r.Db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_instances
			WHERE schedule_id = $1
			  AND due_date = $2
			  AND status NOT IN ('PAID', 'COMPLETED', 'CANCELLED')
		)`, sched.ID, dueDate).Scan(&exists)
	return exists, err
}

// CreateInstance writes the concrete bill/payroll row for one cycle and
// stamps the schedule's last_instance_date in the same transaction.
func (r *ScheduleRepository) CreateInstance(ctx context.Context, sched *domain.RecurringSchedule, dueDate time.Time) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO schedule_instances (schedule_id, owner_entity_id, kind, due_date, amount, currency, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sched.ID, sched.OwnerEntityID, sched.Kind, dueDate,
		sched.Amount, string(sched.Currency), sched.Description)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE recurring_schedules SET last_instance_date = $1 WHERE id = $2`, dueDate, sched.ID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ScheduleRepository) AdvanceSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun time.Time) error {
	_, err := r.Db.Exec(ctx, `
		UPDATE recurring_schedules
		SET last_run_date = $1, next_run_date = $2, failure_message = NULL, failed_at = NULL
		WHERE id = $3`, lastRun, nextRun, id)
	return err
}

func (r *ScheduleRepository) MarkScheduleFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	_, err := r.Db.Exec(ctx, `
		UPDATE recurring_schedules
		SET status = 'FAILED', failure_message = $1, failed_at = $2
		WHERE id = $3`, message, at, id)
	return err
}
