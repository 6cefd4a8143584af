// Package ports declares the narrow interfaces the orchestration engine
// consumes. The storage adapter implements them; tests swap in fakes.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

// LedgerPort is everything the webhook processor and scheduler need from the
// ledger store. Implementations must make DebitWallet an atomic
// check-and-debit: balance may never go negative, and a failed precondition
// surfaces as domain.ErrInsufficientFunds.
type LedgerPort interface {
	GetWallet(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
	CreditWallet(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, reason, description, reference string) error
	DebitWallet(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, reason, description, reference string) error

	// HasLedgerEntry reports whether any wallet entry already carries this
	// reference. Callers use it as a crash-restart dedupe before re-debiting.
	HasLedgerEntry(ctx context.Context, reference string) (bool, error)

	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	UpdateTransaction(ctx context.Context, id uuid.UUID, patch domain.TransactionPatch) error
	GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)

	// CompleteDepositAndCredit marks the deposit transaction completed and
	// credits the wallet in one atomic step: both commit or neither does, so a
	// retry after a storage failure finds the transaction still pending.
	CompleteDepositAndCredit(ctx context.Context, txID, walletID uuid.UUID, amount decimal.Decimal, reference string) error

	CreatePayout(ctx context.Context, p *domain.Payout) error
	UpdatePayoutStatus(ctx context.Context, id uuid.UUID, status string) error
	GetPayoutByReference(ctx context.Context, reference string) (*domain.Payout, error)

	// FinalizePayoutWithRefund moves the payout to a terminal status and issues
	// the compensating wallet credit atomically, same contract as above.
	FinalizePayoutWithRefund(ctx context.Context, payoutID uuid.UUID, status string, walletID uuid.UUID, amount decimal.Decimal, description, reference string) error

	IsEventProcessed(ctx context.Context, key string) (bool, error)
	MarkEventProcessed(ctx context.Context, key string, provider domain.Provider) error

	UpdateVirtualAccountStatus(ctx context.Context, customerCode, status, accountNumber, bankName string) error
	UpdateIdentityStatus(ctx context.Context, customerCode, status string) error
}

// SchedulePort is the recurrence store. DueSchedules only returns active
// schedules whose next run date has arrived and whose current cycle's source
// record is already terminal (paid bill, completed payroll, settled transfer).
type SchedulePort interface {
	DueSchedules(ctx context.Context, asOf time.Time) ([]domain.RecurringSchedule, error)
	HasOpenInstance(ctx context.Context, sched *domain.RecurringSchedule, dueDate time.Time) (bool, error)
	CreateInstance(ctx context.Context, sched *domain.RecurringSchedule, dueDate time.Time) error
	AdvanceSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun time.Time) error
	MarkScheduleFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error
}

// Notifier delivers owner-facing notifications. Fire-and-forget: callers log
// failures and move on, ledger correctness never depends on delivery.
type Notifier interface {
	Notify(ctx context.Context, ownerID uuid.UUID, kind string, payload map[string]any) error
}
