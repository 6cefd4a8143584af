// Package scheduler materializes recurring bills, payroll entries and
// scheduled transfers from their templates. It advances exactly one cycle per
// tick per schedule: missed cycles are not backfilled, the terminal-state
// gate on the current instance decides whether the next tick fires again.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/ports"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/provider"
)

type Scheduler struct {
	Ledger    ports.LedgerPort
	Schedules ports.SchedulePort
	Adapters  provider.Registry
	Notifier  ports.Notifier

	// now is swappable for tests.
	now func() time.Time

	// mu is the single-flight guard: the duplicate check below is
	// check-then-act against the store, so ticks must never overlap.
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(ledger ports.LedgerPort, schedules ports.SchedulePort, adapters provider.Registry, notifier ports.Notifier) *Scheduler {
	return &Scheduler{
		Ledger:    ledger,
		Schedules: schedules,
		Adapters:  adapters,
		Notifier:  notifier,
		now:       time.Now,
	}
}

// Start launches the tick loop. A tick that runs long simply delays the next
// one; it is never run concurrently.
func (s *Scheduler) Start(interval time.Duration) {
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("👷 Recurrence scheduler started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.RunOnce(context.Background()); err != nil {
					slog.Error("scheduler tick failed", "error", err)
				}
			case <-s.stop:
				slog.Info("🛑 Recurrence scheduler stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	if s.stop != nil {
		close(s.stop)
		s.wg.Wait()
		s.stop = nil
	}
}

// RunOnce processes every due schedule exactly once. Safe to call manually;
// overlapping callers serialize on the single-flight mutex. A failure on one
// schedule never aborts the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Calendar date of the clock's own location; schedule dates are stored as
	// UTC-midnight DATEs, so truncating the instant would shift the day for
	// clocks near midnight in non-UTC zones.
	year, month, day := s.now().Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	due, err := s.Schedules.DueSchedules(ctx, today)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	for i := range due {
		sched := due[i]
		if err := s.fire(ctx, &sched); err != nil {
			slog.Error("schedule firing failed",
				"schedule_id", sched.ID, "kind", sched.Kind, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, sched *domain.RecurringSchedule) error {
	switch sched.Kind {
	case domain.ScheduleKindTransfer:
		return s.fireTransfer(ctx, sched)
	default:
		return s.fireInstance(ctx, sched)
	}
}

// fireInstance creates the next bill/payroll row, dated one cycle after the
// last one, then advances the schedule to that same date.
func (s *Scheduler) fireInstance(ctx context.Context, sched *domain.RecurringSchedule) error {
	anchor := sched.LastInstanceDate
	if anchor.IsZero() {
		anchor = sched.NextRunDate
	}
	dueDate := NextDate(anchor, sched.Frequency)

	// A previous tick may have created this cycle already (crash-restart,
	// manual run); one live row per cycle, always.
	open, err := s.Schedules.HasOpenInstance(ctx, sched, dueDate)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if open {
		slog.Warn("schedule skipped: cycle already has a live instance",
			"schedule_id", sched.ID, "due_date", dueDate.Format(time.DateOnly))
		return domain.ErrScheduleConflict
	}

	if err := s.Schedules.CreateInstance(ctx, sched, dueDate); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	if err := s.Schedules.AdvanceSchedule(ctx, sched.ID, s.now(), dueDate); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}

	slog.Info("✅ Recurring instance created",
		"schedule_id", sched.ID, "kind", sched.Kind, "due_date", dueDate.Format(time.DateOnly))
	s.notify(ctx, sched, "schedule.instance_created", map[string]any{
		"kind":     sched.Kind,
		"due_date": dueDate.Format(time.DateOnly),
		"amount":   sched.Amount,
		"currency": sched.Currency,
	})
	return nil
}

// fireTransfer debits the owner wallet, initiates the provider transfer and
// records a processing transaction + payout. On provider failure the debit is
// credited straight back, the schedule is marked failed with the message and
// timestamp, and the run date does not advance, so an operator can intervene
// and the cycle is not silently skipped.
func (s *Scheduler) fireTransfer(ctx context.Context, sched *domain.RecurringSchedule) error {
	adapter := s.Adapters.ForCountry(sched.CountryCode)
	if adapter == nil {
		return s.failSchedule(ctx, sched, "no adapter for country "+sched.CountryCode)
	}

	wallet, err := s.Ledger.GetWallet(ctx, sched.OwnerEntityID, sched.Currency)
	if err != nil {
		return s.failSchedule(ctx, sched, fmt.Sprintf("wallet lookup: %v", err))
	}

	// The cycle reference is deterministic, so a crash between the debit and
	// the schedule advance is recoverable: the restarted tick finds the
	// existing ledger entry and refuses to debit the same cycle twice.
	scheduleRef := sched.ID.String() + ":" + sched.NextRunDate.Format(time.DateOnly)
	fired, err := s.Ledger.HasLedgerEntry(ctx, scheduleRef)
	if err != nil {
		return fmt.Errorf("cycle dedupe check: %w", err)
	}
	if fired {
		slog.Warn("schedule skipped: cycle already debited",
			"schedule_id", sched.ID, "reference", scheduleRef)
		return domain.ErrScheduleConflict
	}

	err = s.Ledger.DebitWallet(ctx, wallet.ID, sched.Amount,
		domain.ReasonTransfer, "Scheduled transfer: "+sched.Description, scheduleRef)
	if err != nil {
		return s.failSchedule(ctx, sched, fmt.Sprintf("debit: %v", err))
	}

	result, err := adapter.InitiateTransfer(ctx, sched.Amount, sched.Recipient, sched.CountryCode, sched.Description)
	if err != nil {
		// Give the funds straight back; the provider never saw the transfer.
		if cerr := s.Ledger.CreditWallet(ctx, wallet.ID, sched.Amount,
			domain.ReasonReversal, "Scheduled transfer not initiated", scheduleRef); cerr != nil {
			slog.Error("failed to restore debit after initiation failure",
				"schedule_id", sched.ID, "error", cerr)
		}
		return s.failSchedule(ctx, sched, err.Error())
	}

	tx := &domain.Transaction{
		OwnerID:     sched.OwnerEntityID,
		Type:        domain.TxTypeTransfer,
		Amount:      sched.Amount,
		Currency:    sched.Currency,
		Status:      domain.TxStatusProcessing,
		Description: sched.Description,
		Reference:   result.Reference,
		Provider:    result.Provider,
	}
	if err := s.Ledger.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	payout := &domain.Payout{
		OwnerID:       sched.OwnerEntityID,
		CreditOwnerID: sched.OwnerEntityID,
		Recipient:     sched.Recipient,
		Amount:        sched.Amount,
		Currency:      sched.Currency,
		Provider:      result.Provider,
		Reference:     result.Reference,
		Status:        domain.PayoutStatusProcessing,
		Reason:        sched.Description,
	}
	if err := s.Ledger.CreatePayout(ctx, payout); err != nil {
		return fmt.Errorf("record payout: %w", err)
	}

	nextRun := NextDate(sched.NextRunDate, sched.Frequency)
	if err := s.Schedules.AdvanceSchedule(ctx, sched.ID, sched.NextRunDate, nextRun); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}

	slog.Info("💸 Scheduled transfer initiated",
		"schedule_id", sched.ID, "reference", result.Reference,
		"next_run", nextRun.Format(time.DateOnly))
	s.notify(ctx, sched, "schedule.transfer_initiated", map[string]any{
		"reference": result.Reference,
		"amount":    sched.Amount,
		"currency":  sched.Currency,
	})
	return nil
}

func (s *Scheduler) failSchedule(ctx context.Context, sched *domain.RecurringSchedule, message string) error {
	if err := s.Schedules.MarkScheduleFailed(ctx, sched.ID, message, s.now()); err != nil {
		return fmt.Errorf("mark schedule failed: %w", err)
	}
	s.notify(ctx, sched, "schedule.failed", map[string]any{"message": message})
	return fmt.Errorf("schedule %s failed: %s", sched.ID, message)
}

func (s *Scheduler) notify(ctx context.Context, sched *domain.RecurringSchedule, kind string, payload map[string]any) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, sched.OwnerEntityID, kind, payload); err != nil {
		slog.Warn("scheduler: notification dispatch failed", "kind", kind, "error", err)
	}
}
