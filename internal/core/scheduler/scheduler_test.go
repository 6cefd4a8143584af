package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/provider"
)

type fakeSchedules struct {
	due       []domain.RecurringSchedule
	instances map[string]bool // scheduleID:dueDate -> open
	advances  []advanceCall
	failures  []failCall
	asOf      []time.Time

	dueErr error
}

type advanceCall struct {
	ID      uuid.UUID
	LastRun time.Time
	NextRun time.Time
}

type failCall struct {
	ID      uuid.UUID
	Message string
}

func newFakeSchedules(due ...domain.RecurringSchedule) *fakeSchedules {
	return &fakeSchedules{due: due, instances: map[string]bool{}}
}

func instanceKey(id uuid.UUID, dueDate time.Time) string {
	return id.String() + ":" + dueDate.Format(time.DateOnly)
}

func (f *fakeSchedules) DueSchedules(_ context.Context, asOf time.Time) ([]domain.RecurringSchedule, error) {
	f.asOf = append(f.asOf, asOf)
	return f.due, f.dueErr
}

func (f *fakeSchedules) HasOpenInstance(_ context.Context, sched *domain.RecurringSchedule, dueDate time.Time) (bool, error) {
	return f.instances[instanceKey(sched.ID, dueDate)], nil
}

func (f *fakeSchedules) CreateInstance(_ context.Context, sched *domain.RecurringSchedule, dueDate time.Time) error {
	f.instances[instanceKey(sched.ID, dueDate)] = true
	return nil
}

func (f *fakeSchedules) AdvanceSchedule(_ context.Context, id uuid.UUID, lastRun, nextRun time.Time) error {
	f.advances = append(f.advances, advanceCall{ID: id, LastRun: lastRun, NextRun: nextRun})
	return nil
}

func (f *fakeSchedules) MarkScheduleFailed(_ context.Context, id uuid.UUID, message string, _ time.Time) error {
	f.failures = append(f.failures, failCall{ID: id, Message: message})
	return nil
}

// schedLedger is the slice of the ledger the scheduler touches. Entry
// references are recorded so the cycle dedupe check behaves like the real
// wallet_entries table.
type schedLedger struct {
	wallet       *domain.Wallet
	transactions []*domain.Transaction
	payouts      []*domain.Payout
	entryRefs    map[string]bool
}

func (l *schedLedger) recordEntry(reference string) {
	if l.entryRefs == nil {
		l.entryRefs = map[string]bool{}
	}
	l.entryRefs[reference] = true
}

func (l *schedLedger) HasLedgerEntry(_ context.Context, reference string) (bool, error) {
	return l.entryRefs[reference], nil
}

func (l *schedLedger) GetWallet(_ context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	if l.wallet == nil || l.wallet.OwnerID != ownerID || l.wallet.Currency != currency {
		return nil, domain.ErrWalletNotFound
	}
	return l.wallet, nil
}

func (l *schedLedger) CreditWallet(_ context.Context, walletID uuid.UUID, amount decimal.Decimal, _, _, reference string) error {
	if l.wallet == nil || l.wallet.ID != walletID {
		return domain.ErrWalletNotFound
	}
	l.wallet.Balance = l.wallet.Balance.Add(amount)
	l.recordEntry(reference)
	return nil
}

func (l *schedLedger) DebitWallet(_ context.Context, walletID uuid.UUID, amount decimal.Decimal, _, _, reference string) error {
	if l.wallet == nil || l.wallet.ID != walletID {
		return domain.ErrWalletNotFound
	}
	if l.wallet.Balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	l.wallet.Balance = l.wallet.Balance.Sub(amount)
	l.recordEntry(reference)
	return nil
}

func (l *schedLedger) CompleteDepositAndCredit(context.Context, uuid.UUID, uuid.UUID, decimal.Decimal, string) error {
	return nil
}

func (l *schedLedger) FinalizePayoutWithRefund(context.Context, uuid.UUID, string, uuid.UUID, decimal.Decimal, string, string) error {
	return nil
}

func (l *schedLedger) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	l.transactions = append(l.transactions, tx)
	return nil
}

func (l *schedLedger) UpdateTransaction(context.Context, uuid.UUID, domain.TransactionPatch) error {
	return nil
}

func (l *schedLedger) GetTransactionByReference(context.Context, string) (*domain.Transaction, error) {
	return nil, domain.ErrTransactionNotFound
}

func (l *schedLedger) CreatePayout(_ context.Context, p *domain.Payout) error {
	l.payouts = append(l.payouts, p)
	return nil
}

func (l *schedLedger) UpdatePayoutStatus(context.Context, uuid.UUID, string) error { return nil }

func (l *schedLedger) GetPayoutByReference(context.Context, string) (*domain.Payout, error) {
	return nil, domain.ErrPayoutNotFound
}

func (l *schedLedger) IsEventProcessed(context.Context, string) (bool, error) { return false, nil }

func (l *schedLedger) MarkEventProcessed(context.Context, string, domain.Provider) error { return nil }

func (l *schedLedger) UpdateVirtualAccountStatus(context.Context, string, string, string, string) error {
	return nil
}

func (l *schedLedger) UpdateIdentityStatus(context.Context, string, string) error { return nil }

// fakeAdapter only implements the transfer leg; everything else is unreachable
// from the scheduler.
type fakeAdapter struct {
	transferErr error
	transfers   int
}

func (a *fakeAdapter) Name() domain.Provider { return domain.ProviderPaystack }

func (a *fakeAdapter) CreatePaymentIntent(context.Context, decimal.Decimal, domain.Currency, string, map[string]string) (*provider.IntentResult, error) {
	panic("not used")
}

func (a *fakeAdapter) InitiateTransfer(_ context.Context, amount decimal.Decimal, _ domain.Recipient, _ string, _ string) (*provider.TransferResult, error) {
	if a.transferErr != nil {
		return nil, a.transferErr
	}
	a.transfers++
	return &provider.TransferResult{
		Provider:  domain.ProviderPaystack,
		Reference: fmt.Sprintf("TRF_%d", a.transfers),
		Status:    "pending",
		Amount:    amount,
		Currency:  domain.NGN,
	}, nil
}

func (a *fakeAdapter) VerifyPayment(context.Context, string) (*provider.VerificationResult, error) {
	panic("not used")
}

func (a *fakeAdapter) CreateVirtualAccount(context.Context, provider.Customer) (*provider.VirtualAccountResult, error) {
	panic("not used")
}

func (a *fakeAdapter) GetBalance(context.Context, string) ([]provider.Balance, error) {
	panic("not used")
}

func (a *fakeAdapter) VerifyWebhook([]byte, string) error { return nil }

func (a *fakeAdapter) ParseWebhook([]byte) (*domain.WebhookEvent, error) { panic("not used") }

func newTestScheduler(ledger *schedLedger, schedules *fakeSchedules, adapter provider.Adapter, at time.Time) *Scheduler {
	s := New(ledger, schedules, provider.Registry{domain.ProviderPaystack: adapter}, nil)
	s.now = func() time.Time { return at }
	return s
}

func billSchedule(lastInstance time.Time) domain.RecurringSchedule {
	return domain.RecurringSchedule{
		ID:               uuid.New(),
		Kind:             domain.ScheduleKindBill,
		OwnerEntityID:    uuid.New(),
		Frequency:        domain.Monthly,
		Status:           domain.ScheduleStatusActive,
		NextRunDate:      date(2025, time.March, 1),
		LastInstanceDate: lastInstance,
		Amount:           decimal.RequireFromString("120.00"),
		Currency:         domain.USD,
		CountryCode:      "US",
		Description:      "hosting invoice",
	}
}

func TestRunOnceCreatesOneInstancePerCycle(t *testing.T) {
	sched := billSchedule(date(2025, time.February, 1))
	schedules := newFakeSchedules(sched)
	s := newTestScheduler(&schedLedger{}, schedules, &fakeAdapter{}, date(2025, time.March, 2))

	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))

	// Instance dated one cycle after the last one, created exactly once even
	// though the schedule stayed in the due list.
	wantDue := date(2025, time.March, 1)
	assert.True(t, schedules.instances[instanceKey(sched.ID, wantDue)])
	assert.Len(t, schedules.instances, 1)
	assert.Len(t, schedules.advances, 1)
	assert.Equal(t, wantDue, schedules.advances[0].NextRun)
}

func TestOverdueScheduleAdvancesOneCycleNotToToday(t *testing.T) {
	// Last paid bill was November; it is now early February, two cycles behind.
	sched := billSchedule(date(2024, time.November, 5))
	schedules := newFakeSchedules(sched)
	s := newTestScheduler(&schedLedger{}, schedules, &fakeAdapter{}, date(2025, time.February, 3))

	require.NoError(t, s.RunOnce(context.Background()))

	// The December cycle is created, nothing else. January waits for the
	// December instance to reach a terminal state.
	assert.True(t, schedules.instances[instanceKey(sched.ID, date(2024, time.December, 5))])
	assert.Len(t, schedules.instances, 1)
}

func TestFirstFiringAnchorsOnNextRunDate(t *testing.T) {
	sched := billSchedule(time.Time{}) // never fired before
	schedules := newFakeSchedules(sched)
	s := newTestScheduler(&schedLedger{}, schedules, &fakeAdapter{}, date(2025, time.March, 2))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.True(t, schedules.instances[instanceKey(sched.ID, date(2025, time.April, 1))])
}

func TestOneFailingScheduleDoesNotBlockOthers(t *testing.T) {
	broken := billSchedule(date(2025, time.February, 1))
	broken.Kind = domain.ScheduleKindTransfer // no wallet exists, will fail
	healthy := billSchedule(date(2025, time.February, 1))

	schedules := newFakeSchedules(broken, healthy)
	s := newTestScheduler(&schedLedger{}, schedules, &fakeAdapter{}, date(2025, time.March, 2))

	require.NoError(t, s.RunOnce(context.Background()))

	assert.True(t, schedules.instances[instanceKey(healthy.ID, date(2025, time.March, 1))])
	require.Len(t, schedules.failures, 1)
	assert.Equal(t, broken.ID, schedules.failures[0].ID)
}

func transferSchedule(owner uuid.UUID) domain.RecurringSchedule {
	return domain.RecurringSchedule{
		ID:            uuid.New(),
		Kind:          domain.ScheduleKindTransfer,
		OwnerEntityID: owner,
		Frequency:     domain.Monthly,
		Status:        domain.ScheduleStatusActive,
		NextRunDate:   date(2025, time.March, 1),
		Amount:        decimal.RequireFromString("5000.00"),
		Currency:      domain.NGN,
		CountryCode:   "NG",
		Description:   "rent",
		Recipient:     domain.Recipient{Name: "Ada", AccountNumber: "0001234567", BankCode: "058"},
	}
}

func TestScheduledTransferDebitsAndRecords(t *testing.T) {
	owner := uuid.New()
	ledger := &schedLedger{wallet: &domain.Wallet{
		ID: uuid.New(), OwnerID: owner, Currency: domain.NGN,
		Balance: decimal.RequireFromString("8000.00"),
	}}
	sched := transferSchedule(owner)
	schedules := newFakeSchedules(sched)
	adapter := &fakeAdapter{}
	s := newTestScheduler(ledger, schedules, adapter, date(2025, time.March, 1))

	require.NoError(t, s.RunOnce(context.Background()))

	assert.True(t, decimal.RequireFromString("3000.00").Equal(ledger.wallet.Balance))
	assert.Equal(t, 1, adapter.transfers)

	require.Len(t, ledger.transactions, 1)
	assert.Equal(t, domain.TxStatusProcessing, ledger.transactions[0].Status)
	assert.Equal(t, "TRF_1", ledger.transactions[0].Reference)

	require.Len(t, ledger.payouts, 1)
	assert.Equal(t, domain.PayoutStatusProcessing, ledger.payouts[0].Status)
	assert.Equal(t, owner, ledger.payouts[0].CreditOwnerID,
		"reversal credit target is pinned at initiation")

	require.Len(t, schedules.advances, 1)
	assert.Equal(t, date(2025, time.April, 1), schedules.advances[0].NextRun)
	assert.Empty(t, schedules.failures)
}

func TestScheduledTransferFiresEachCycleOnlyOnce(t *testing.T) {
	owner := uuid.New()
	ledger := &schedLedger{wallet: &domain.Wallet{
		ID: uuid.New(), OwnerID: owner, Currency: domain.NGN,
		Balance: decimal.RequireFromString("20000.00"),
	}}
	sched := transferSchedule(owner)
	schedules := newFakeSchedules(sched)
	adapter := &fakeAdapter{}
	s := newTestScheduler(ledger, schedules, adapter, date(2025, time.March, 1))

	// The due list keeps returning the same cycle, as it would after a crash
	// between the debit and the schedule advance. Only the first tick may move
	// money.
	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))

	assert.True(t, decimal.RequireFromString("15000.00").Equal(ledger.wallet.Balance),
		"cycle debited twice: balance is %s", ledger.wallet.Balance)
	assert.Equal(t, 1, adapter.transfers)
	assert.Len(t, ledger.payouts, 1)
	assert.Len(t, schedules.advances, 1)
	assert.Empty(t, schedules.failures, "a deduped cycle is a skip, not a failure")
}

func TestScheduledTransferFailureRestoresWalletAndHoldsDate(t *testing.T) {
	owner := uuid.New()
	ledger := &schedLedger{wallet: &domain.Wallet{
		ID: uuid.New(), OwnerID: owner, Currency: domain.NGN,
		Balance: decimal.RequireFromString("8000.00"),
	}}
	sched := transferSchedule(owner)
	schedules := newFakeSchedules(sched)
	adapter := &fakeAdapter{transferErr: &domain.ProviderError{
		Provider: domain.ProviderPaystack, Op: "initiate_transfer",
		Err: fmt.Errorf("insufficient provider balance"),
	}}
	s := newTestScheduler(ledger, schedules, adapter, date(2025, time.March, 1))

	require.NoError(t, s.RunOnce(context.Background()))

	// Debit undone, nothing recorded, schedule flagged but not advanced.
	assert.True(t, decimal.RequireFromString("8000.00").Equal(ledger.wallet.Balance))
	assert.Empty(t, ledger.transactions)
	assert.Empty(t, ledger.payouts)
	assert.Empty(t, schedules.advances)
	require.Len(t, schedules.failures, 1)
	assert.Contains(t, schedules.failures[0].Message, "insufficient provider balance")
}

func TestScheduledTransferInsufficientFundsMarksFailure(t *testing.T) {
	owner := uuid.New()
	ledger := &schedLedger{wallet: &domain.Wallet{
		ID: uuid.New(), OwnerID: owner, Currency: domain.NGN,
		Balance: decimal.RequireFromString("10.00"),
	}}
	sched := transferSchedule(owner)
	schedules := newFakeSchedules(sched)
	adapter := &fakeAdapter{}
	s := newTestScheduler(ledger, schedules, adapter, date(2025, time.March, 1))

	require.NoError(t, s.RunOnce(context.Background()))

	assert.True(t, decimal.RequireFromString("10.00").Equal(ledger.wallet.Balance))
	assert.Equal(t, 0, adapter.transfers)
	assert.Empty(t, schedules.advances)
	require.Len(t, schedules.failures, 1)
}

func TestRunOnceUsesCalendarDateOfClock(t *testing.T) {
	schedules := newFakeSchedules()
	s := New(&schedLedger{}, schedules, provider.Registry{}, nil)

	// 23:30 on March 1 in UTC+13 is still March 1 for that clock, even though
	// the instant is March 1 10:30 UTC; and 00:30 on March 2 there is already
	// March 2 while UTC is still on March 1.
	loc := time.FixedZone("UTC+13", 13*60*60)
	s.now = func() time.Time { return time.Date(2025, time.March, 2, 0, 30, 0, 0, loc) }

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, schedules.asOf, 1)
	assert.Equal(t, date(2025, time.March, 2), schedules.asOf[0])
}

func TestStartAndStopTickLoop(t *testing.T) {
	schedules := newFakeSchedules()
	s := New(&schedLedger{}, schedules, provider.Registry{}, nil)

	s.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	// Stop is idempotent enough to call after the loop exited.
	s.Stop()
}
