package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
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

// fakeLedger is an in-memory ports.LedgerPort with enough behavior to observe
// balances, status transitions and the idempotency ledger.
type fakeLedger struct {
	wallets      map[uuid.UUID]*domain.Wallet // by wallet id
	transactions map[string]*domain.Transaction
	payouts      map[string]*domain.Payout
	processed    map[string]bool

	credits int
	failOn  string // operation name to force an error from
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		wallets:      map[uuid.UUID]*domain.Wallet{},
		transactions: map[string]*domain.Transaction{},
		payouts:      map[string]*domain.Payout{},
		processed:    map[string]bool{},
	}
}

func (f *fakeLedger) addWallet(ownerID uuid.UUID, currency domain.Currency, balance string) *domain.Wallet {
	w := &domain.Wallet{
		ID: uuid.New(), OwnerID: ownerID, Currency: currency,
		Balance: decimal.RequireFromString(balance), CreatedAt: time.Now(),
	}
	f.wallets[w.ID] = w
	return w
}

func (f *fakeLedger) GetWallet(_ context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	for _, w := range f.wallets {
		if w.OwnerID == ownerID && w.Currency == currency {
			return w, nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (f *fakeLedger) CreditWallet(_ context.Context, walletID uuid.UUID, amount decimal.Decimal, reason, _, _ string) error {
	if f.failOn == "credit" {
		return fmt.Errorf("storage down")
	}
	w, ok := f.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(amount)
	f.credits++
	return nil
}

func (f *fakeLedger) DebitWallet(_ context.Context, walletID uuid.UUID, amount decimal.Decimal, _, _, _ string) error {
	w, ok := f.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	if w.Balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

func (f *fakeLedger) HasLedgerEntry(_ context.Context, reference string) (bool, error) {
	return false, nil
}

func (f *fakeLedger) CompleteDepositAndCredit(_ context.Context, txID, walletID uuid.UUID, amount decimal.Decimal, _ string) error {
	// Atomic: on failure neither the status flip nor the credit lands.
	if f.failOn == "credit" {
		return fmt.Errorf("storage down")
	}
	w, ok := f.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	for _, tx := range f.transactions {
		if tx.ID == txID {
			tx.Status = domain.TxStatusCompleted
			w.Balance = w.Balance.Add(amount)
			f.credits++
			return nil
		}
	}
	return domain.ErrTransactionNotFound
}

func (f *fakeLedger) FinalizePayoutWithRefund(_ context.Context, payoutID uuid.UUID, status string, walletID uuid.UUID, amount decimal.Decimal, _, _ string) error {
	if f.failOn == "credit" {
		return fmt.Errorf("storage down")
	}
	w, ok := f.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	for _, p := range f.payouts {
		if p.ID == payoutID {
			p.Status = status
			w.Balance = w.Balance.Add(amount)
			f.credits++
			return nil
		}
	}
	return domain.ErrPayoutNotFound
}

func (f *fakeLedger) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	f.transactions[tx.Reference] = tx
	return nil
}

func (f *fakeLedger) UpdateTransaction(_ context.Context, id uuid.UUID, patch domain.TransactionPatch) error {
	for _, tx := range f.transactions {
		if tx.ID == id {
			if patch.Status != nil {
				tx.Status = *patch.Status
			}
			if patch.Description != nil {
				tx.Description = *patch.Description
			}
			return nil
		}
	}
	return domain.ErrTransactionNotFound
}

func (f *fakeLedger) GetTransactionByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	tx, ok := f.transactions[reference]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeLedger) CreatePayout(_ context.Context, p *domain.Payout) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.payouts[p.Reference] = p
	return nil
}

func (f *fakeLedger) UpdatePayoutStatus(_ context.Context, id uuid.UUID, status string) error {
	for _, p := range f.payouts {
		if p.ID == id {
			p.Status = status
			return nil
		}
	}
	return domain.ErrPayoutNotFound
}

func (f *fakeLedger) GetPayoutByReference(_ context.Context, reference string) (*domain.Payout, error) {
	p, ok := f.payouts[reference]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	return p, nil
}

func (f *fakeLedger) IsEventProcessed(_ context.Context, key string) (bool, error) {
	return f.processed[key], nil
}

func (f *fakeLedger) MarkEventProcessed(_ context.Context, key string, _ domain.Provider) error {
	f.processed[key] = true
	return nil
}

func (f *fakeLedger) UpdateVirtualAccountStatus(_ context.Context, _, _, _, _ string) error {
	return nil
}

func (f *fakeLedger) UpdateIdentityStatus(_ context.Context, _, _ string) error { return nil }

type recordedNotification struct {
	OwnerID uuid.UUID
	Kind    string
}

type fakeNotifier struct {
	sent []recordedNotification
}

func (f *fakeNotifier) Notify(_ context.Context, ownerID uuid.UUID, kind string, _ map[string]any) error {
	f.sent = append(f.sent, recordedNotification{OwnerID: ownerID, Kind: kind})
	return nil
}

const testSecret = "sk_test_ps"

func signedPaystack(body string) ([]byte, string) {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write([]byte(body))
	return []byte(body), hex.EncodeToString(mac.Sum(nil))
}

func newTestProcessor(ledger *fakeLedger, notifier *fakeNotifier) *Processor {
	return NewProcessor(ledger, provider.Registry{
		domain.ProviderPaystack: provider.NewPaystack(testSecret),
	}, notifier)
}

func TestChargeSuccessCreditsDepositExactlyOnce(t *testing.T) {
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	owner := uuid.New()
	wallet := ledger.addWallet(owner, domain.NGN, "0")
	ledger.transactions["ref_1"] = &domain.Transaction{
		ID: uuid.New(), OwnerID: owner, Type: domain.TxTypeDeposit,
		Amount: decimal.RequireFromString("5000.00"), Currency: domain.NGN,
		Status: domain.TxStatusPending, Reference: "ref_1",
		Metadata: map[string]string{"type": "deposit"},
	}

	p := newTestProcessor(ledger, notifier)
	body, sig := signedPaystack(`{"event":"charge.success","data":{"reference":"ref_1","amount":500000,"currency":"NGN","metadata":{"type":"deposit"}}}`)

	// Replaying the exact same delivery must apply exactly once.
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))
	}

	assert.True(t, decimal.RequireFromString("5000.00").Equal(wallet.Balance),
		"wallet credited %s, want exactly one 5000.00 credit", wallet.Balance)
	assert.Equal(t, 1, ledger.credits)
	assert.Equal(t, domain.TxStatusCompleted, ledger.transactions["ref_1"].Status)
	assert.Len(t, notifier.sent, 1)
}

func TestChargeSuccessWithoutDepositFlagSkipsCredit(t *testing.T) {
	ledger := newFakeLedger()
	owner := uuid.New()
	wallet := ledger.addWallet(owner, domain.NGN, "10.00")
	ledger.transactions["ref_2"] = &domain.Transaction{
		ID: uuid.New(), OwnerID: owner, Type: domain.TxTypeBill,
		Amount: decimal.RequireFromString("10.00"), Currency: domain.NGN,
		Status: domain.TxStatusPending, Reference: "ref_2",
	}

	p := newTestProcessor(ledger, &fakeNotifier{})
	body, sig := signedPaystack(`{"event":"charge.success","data":{"reference":"ref_2","amount":1000,"currency":"NGN"}}`)
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))

	assert.Equal(t, domain.TxStatusCompleted, ledger.transactions["ref_2"].Status)
	assert.True(t, decimal.RequireFromString("10.00").Equal(wallet.Balance))
	assert.Equal(t, 0, ledger.credits)
}

func TestChargeSuccessForUnknownReferenceIsNotAnError(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeNotifier{})

	body, sig := signedPaystack(`{"event":"charge.success","data":{"reference":"stranger","amount":100,"currency":"NGN"}}`)
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))

	// No idempotency record either: if the transaction shows up later, a
	// provider retry should still be able to apply.
	assert.Empty(t, ledger.processed)
}

func TestTransferFailedIssuesCompensatingCredit(t *testing.T) {
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	owner := uuid.New()

	// NG payout of ₦5,000: the wallet was debited at initiation time.
	wallet := ledger.addWallet(owner, domain.NGN, "2000.00")
	ledger.payouts["TRF_1"] = &domain.Payout{
		ID: uuid.New(), OwnerID: owner, CreditOwnerID: owner,
		Amount: decimal.RequireFromString("5000.00"), Currency: domain.NGN,
		Provider: domain.ProviderPaystack, Reference: "TRF_1",
		Status: domain.PayoutStatusProcessing,
	}

	p := newTestProcessor(ledger, notifier)
	body, sig := signedPaystack(`{"event":"transfer.failed","data":{"transfer_code":"TRF_1","amount":500000,"currency":"NGN"}}`)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))
	}

	// Net zero against the initiation debit: the wallet held 7000 before the
	// debit and holds 7000 again after the reversal.
	assert.True(t, decimal.RequireFromString("7000.00").Equal(wallet.Balance),
		"expected exactly one 5000.00 reversal credit, balance is %s", wallet.Balance)
	assert.Equal(t, 1, ledger.credits)
	assert.Equal(t, domain.PayoutStatusFailed, ledger.payouts["TRF_1"].Status)
}

func TestTransferSuccessCompletesPayoutWithoutCredit(t *testing.T) {
	ledger := newFakeLedger()
	owner := uuid.New()
	wallet := ledger.addWallet(owner, domain.NGN, "100.00")
	ledger.payouts["TRF_2"] = &domain.Payout{
		ID: uuid.New(), OwnerID: owner, CreditOwnerID: owner,
		Amount: decimal.RequireFromString("50.00"), Currency: domain.NGN,
		Reference: "TRF_2", Status: domain.PayoutStatusProcessing,
	}

	p := newTestProcessor(ledger, &fakeNotifier{})
	body, sig := signedPaystack(`{"event":"transfer.success","data":{"transfer_code":"TRF_2","amount":5000,"currency":"NGN"}}`)
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))

	assert.Equal(t, domain.PayoutStatusCompleted, ledger.payouts["TRF_2"].Status)
	assert.True(t, decimal.RequireFromString("100.00").Equal(wallet.Balance))
	assert.Equal(t, 0, ledger.credits)
}

func TestTransferReversedOnlyAppliesAfterCompletion(t *testing.T) {
	ledger := newFakeLedger()
	owner := uuid.New()
	wallet := ledger.addWallet(owner, domain.NGN, "0")
	ledger.payouts["TRF_3"] = &domain.Payout{
		ID: uuid.New(), OwnerID: owner, CreditOwnerID: owner,
		Amount: decimal.RequireFromString("80.00"), Currency: domain.NGN,
		Reference: "TRF_3", Status: domain.PayoutStatusProcessing,
	}

	p := newTestProcessor(ledger, &fakeNotifier{})

	// Reversal against a still-processing payout is out of order: ignored.
	body, sig := signedPaystack(`{"event":"transfer.reversed","data":{"transfer_code":"TRF_3","amount":8000,"currency":"NGN"}}`)
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))
	assert.Equal(t, domain.PayoutStatusProcessing, ledger.payouts["TRF_3"].Status)
	assert.Equal(t, 0, ledger.credits)

	// Complete it, then the reversal applies and credits back.
	successBody, successSig := signedPaystack(`{"event":"transfer.success","data":{"transfer_code":"TRF_3","amount":8000,"currency":"NGN"}}`)
	require.NoError(t, p.Handle(context.Background(), "paystack", successBody, successSig))
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))

	assert.Equal(t, domain.PayoutStatusReversed, ledger.payouts["TRF_3"].Status)
	assert.True(t, decimal.RequireFromString("80.00").Equal(wallet.Balance))
	assert.Equal(t, 1, ledger.credits)
}

func TestBadSignatureIsRejectedBeforeAnyEffect(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeNotifier{})

	body := []byte(`{"event":"charge.success","data":{"reference":"ref_1","amount":100}}`)
	err := p.Handle(context.Background(), "paystack", body, "deadbeef")
	assert.True(t, errors.Is(err, domain.ErrSignatureInvalid))
	assert.Empty(t, ledger.processed)
}

func TestUnknownEventTypeIsSwallowed(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeNotifier{})

	body, sig := signedPaystack(`{"event":"subscription.create","data":{"reference":"sub_1"}}`)
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))
	assert.Empty(t, ledger.processed)
}

func TestKnownEventFailurePropagatesAndLeavesNoIdempotencyRecord(t *testing.T) {
	ledger := newFakeLedger()
	owner := uuid.New()
	ledger.addWallet(owner, domain.NGN, "0")
	ledger.transactions["ref_err"] = &domain.Transaction{
		ID: uuid.New(), OwnerID: owner, Type: domain.TxTypeDeposit,
		Amount: decimal.RequireFromString("10.00"), Currency: domain.NGN,
		Status: domain.TxStatusPending, Reference: "ref_err",
		Metadata: map[string]string{"type": "deposit"},
	}
	ledger.failOn = "credit"

	p := newTestProcessor(ledger, &fakeNotifier{})
	body, sig := signedPaystack(`{"event":"charge.success","data":{"reference":"ref_err","amount":1000,"currency":"NGN","metadata":{"type":"deposit"}}}`)

	err := p.Handle(context.Background(), "paystack", body, sig)
	require.Error(t, err, "storage failure must surface so the provider retries")
	assert.Empty(t, ledger.processed, "idempotency record is only written after all effects commit")
	assert.Equal(t, domain.TxStatusPending, ledger.transactions["ref_err"].Status,
		"status must not advance without the credit, or the retry is gated out")

	// Storage recovers; the provider's retry now succeeds and applies once.
	ledger.failOn = ""
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))
	assert.Equal(t, 1, ledger.credits)
	assert.Equal(t, domain.TxStatusCompleted, ledger.transactions["ref_err"].Status)
	assert.True(t, ledger.processed["paystack:charge.success:ref_err"])
}

func TestTransferFailedRefundSurvivesStorageFailure(t *testing.T) {
	ledger := newFakeLedger()
	owner := uuid.New()
	wallet := ledger.addWallet(owner, domain.NGN, "2000.00")
	ledger.payouts["TRF_R"] = &domain.Payout{
		ID: uuid.New(), OwnerID: owner, CreditOwnerID: owner,
		Amount: decimal.RequireFromString("5000.00"), Currency: domain.NGN,
		Reference: "TRF_R", Status: domain.PayoutStatusProcessing,
	}
	ledger.failOn = "credit"

	p := newTestProcessor(ledger, &fakeNotifier{})
	body, sig := signedPaystack(`{"event":"transfer.failed","data":{"transfer_code":"TRF_R","amount":500000,"currency":"NGN"}}`)

	require.Error(t, p.Handle(context.Background(), "paystack", body, sig))
	assert.Equal(t, domain.PayoutStatusProcessing, ledger.payouts["TRF_R"].Status,
		"a half-applied failure would make the retry look out of order")
	assert.True(t, decimal.RequireFromString("2000.00").Equal(wallet.Balance))

	// The provider re-POSTs after our 5xx; the retry restores the funds.
	ledger.failOn = ""
	require.NoError(t, p.Handle(context.Background(), "paystack", body, sig))
	assert.Equal(t, domain.PayoutStatusFailed, ledger.payouts["TRF_R"].Status)
	assert.True(t, decimal.RequireFromString("7000.00").Equal(wallet.Balance))
	assert.Equal(t, 1, ledger.credits)
}

func TestUnconfiguredProviderErrors(t *testing.T) {
	p := newTestProcessor(newFakeLedger(), &fakeNotifier{})
	err := p.Handle(context.Background(), "flutterwave", []byte(`{}`), "sig")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSignatureInvalid)
}
