package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider identifies which external processor a money movement goes through.
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderPaystack Provider = "paystack"
)

type Currency string

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	GBP Currency = "GBP"
	EUR Currency = "EUR"
	AUD Currency = "AUD"
	NGN Currency = "NGN"
	GHS Currency = "GHS"
	ZAR Currency = "ZAR"
	KES Currency = "KES"
)

// Wallet is a stored-value balance per owner and currency. Balances only move
// through the ledger's credit/debit operations, never by direct assignment.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Currency  Currency        `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transaction statuses. A transaction only ever moves forward:
// PENDING/PROCESSING -> COMPLETED | FAILED | REVERSED.
const (
	TxStatusPending    = "PENDING"
	TxStatusProcessing = "PROCESSING"
	TxStatusCompleted  = "COMPLETED"
	TxStatusFailed     = "FAILED"
	TxStatusReversed   = "REVERSED"
)

const (
	TxTypeDeposit  = "DEPOSIT"
	TxTypeTransfer = "TRANSFER"
	TxTypePayroll  = "PAYROLL"
	TxTypeBill     = "BILL"
	TxTypeReversal = "REVERSAL"
)

// Transaction is an append-mostly record of a money movement. Orchestration
// creates it; only webhook/reconciliation code mutates its status.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	Type        string            `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    Currency          `json:"currency"`
	Status      string            `json:"status"`
	Description string            `json:"description"`
	Reference   string            `json:"reference"`
	Provider    Provider          `json:"provider"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TransactionPatch carries the mutable fields of a transaction. Nil means
// leave the column alone.
type TransactionPatch struct {
	Status      *string
	Description *string
}

const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusReversed   = "REVERSED"
)

// Payout is a provider-side transfer to an external bank account.
// CreditOwnerID names the wallet owner who receives the compensating credit if
// the transfer later fails or is reversed; it is fixed at initiation time so
// the webhook path never has to guess between initiator and recipient.
type Payout struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	CreditOwnerID uuid.UUID       `json:"credit_owner_id"`
	Recipient     Recipient       `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      Currency        `json:"currency"`
	Provider      Provider        `json:"provider"`
	Reference     string          `json:"reference"`
	Status        string          `json:"status"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Recipient is the bank destination of a payout.
type Recipient struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	// BankToken is a pre-tokenized external account (Stripe-style). When set
	// it is attached to the payout instead of AccountNumber/BankCode.
	BankToken string `json:"bank_token,omitempty"`
}

// Reason codes attached to wallet movements so history stays explainable.
const (
	ReasonDeposit  = "DEPOSIT"
	ReasonTransfer = "TRANSFER"
	ReasonPayroll  = "PAYROLL"
	ReasonReversal = "REVERSAL"
)

// EventType is the normalized webhook event vocabulary. Each provider adapter
// maps its native event strings onto these.
type EventType string

const (
	EventChargeSucceeded  EventType = "charge.success"
	EventTransferSuccess  EventType = "transfer.success"
	EventTransferFailed   EventType = "transfer.failed"
	EventTransferReversed EventType = "transfer.reversed"
	EventAccountAssigned  EventType = "account.assigned"
	EventIdentityVerified EventType = "identity.verified"
	EventUnknown          EventType = "unknown"
)

// WebhookEvent is a provider webhook after normalization. Amount is already
// converted back to major units by the adapter.
type WebhookEvent struct {
	Provider  Provider          `json:"provider"`
	Type      EventType         `json:"type"`
	RawType   string            `json:"raw_type"`
	Reference string            `json:"reference"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  Currency          `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Key is the idempotency ledger key for this event: one successful application
// per (provider, event type, reference), ever.
func (e *WebhookEvent) Key() string {
	return string(e.Provider) + ":" + string(e.Type) + ":" + e.Reference
}

type Frequency string

const (
	Weekly    Frequency = "WEEKLY"
	Monthly   Frequency = "MONTHLY"
	Quarterly Frequency = "QUARTERLY"
	Yearly    Frequency = "YEARLY"
)

const (
	ScheduleKindBill     = "BILL"
	ScheduleKindPayroll  = "PAYROLL"
	ScheduleKindTransfer = "TRANSFER"
)

const (
	ScheduleStatusActive = "ACTIVE"
	ScheduleStatusPaused = "PAUSED"
	ScheduleStatusFailed = "FAILED"
)

// RecurringSchedule is the template for a repeating obligation. Each firing
// produces a new concrete bill/payroll/transfer record; the template itself
// only ever advances its run dates.
type RecurringSchedule struct {
	ID               uuid.UUID       `json:"id"`
	Kind             string          `json:"kind"`
	OwnerEntityID    uuid.UUID       `json:"owner_entity_id"`
	Frequency        Frequency       `json:"frequency"`
	Status           string          `json:"status"`
	LastRunDate      time.Time       `json:"last_run_date"`
	NextRunDate      time.Time       `json:"next_run_date"`
	LastInstanceDate time.Time       `json:"last_instance_date"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         Currency        `json:"currency"`
	CountryCode      string          `json:"country_code"`
	Description      string          `json:"description"`
	Recipient        Recipient       `json:"recipient"`
	FailureMessage   string          `json:"failure_message,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
}
