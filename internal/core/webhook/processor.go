// Package webhook applies asynchronous provider events to the ledger exactly
// once. Providers re-deliver aggressively and guarantee no ordering, so the
// correctness mechanism is the persisted idempotency record plus
// expected-prior-status checks, never arrival order.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/ports"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/provider"
)

type Processor struct {
	Ledger   ports.LedgerPort
	Adapters provider.Registry
	Notifier ports.Notifier
}

func NewProcessor(ledger ports.LedgerPort, adapters provider.Registry, notifier ports.Notifier) *Processor {
	return &Processor{Ledger: ledger, Adapters: adapters, Notifier: notifier}
}

// Handle verifies, deduplicates and applies one raw webhook delivery.
// rawBody must be the untouched request bytes: signature verification runs
// over them directly.
//
// Error contract: domain.ErrSignatureInvalid means answer 401; a nil return
// (including duplicates and unknown events) means answer 200; anything else
// means answer 5xx so the provider re-POSTs and we get another attempt.
func (p *Processor) Handle(ctx context.Context, providerName string, rawBody []byte, signatureHeader string) error {
	adapter, ok := p.Adapters[domain.Provider(providerName)]
	if !ok {
		return fmt.Errorf("no adapter configured for provider %q", providerName)
	}

	if err := adapter.VerifyWebhook(rawBody, signatureHeader); err != nil {
		return err
	}

	event, err := adapter.ParseWebhook(rawBody)
	if err != nil {
		// An unparseable body passed the signature check, so it really came
		// from the provider; retrying will not fix it.
		slog.Error("webhook: unparseable payload", "provider", providerName, "error", err)
		return nil
	}

	if event.Type == domain.EventUnknown {
		slog.Info("webhook: ignoring unknown event", "provider", providerName, "event", event.RawType)
		return nil
	}
	if event.Reference == "" {
		slog.Warn("webhook: event without reference", "provider", providerName, "event", event.RawType)
		return nil
	}

	// Idempotency gate. The record is only ever written after every effect
	// committed, so a hit means the full transition already happened.
	processed, err := p.Ledger.IsEventProcessed(ctx, event.Key())
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		slog.Info("webhook: duplicate delivery skipped", "key", event.Key())
		return nil
	}

	if err := p.apply(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return nil
		}
		slog.Error("webhook: event processing failed",
			"provider", providerName, "event", event.RawType, "reference", event.Reference, "error", err)
		return err
	}

	// Last step of a successful handler: everything above either fully
	// committed or already returned an error for the provider to retry.
	if err := p.Ledger.MarkEventProcessed(ctx, event.Key(), event.Provider); err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, event *domain.WebhookEvent) error {
	switch event.Type {
	case domain.EventChargeSucceeded:
		return p.applyChargeSuccess(ctx, event)
	case domain.EventTransferSuccess:
		return p.applyTransferTerminal(ctx, event, domain.PayoutStatusCompleted, false)
	case domain.EventTransferFailed:
		return p.applyTransferTerminal(ctx, event, domain.PayoutStatusFailed, true)
	case domain.EventTransferReversed:
		return p.applyTransferTerminal(ctx, event, domain.PayoutStatusReversed, true)
	case domain.EventAccountAssigned:
		return p.Ledger.UpdateVirtualAccountStatus(ctx,
			event.Metadata["customer_code"], "ACTIVE",
			event.Metadata["account_number"], event.Metadata["bank_name"])
	case domain.EventIdentityVerified:
		return p.Ledger.UpdateIdentityStatus(ctx, event.Metadata["customer_code"], "VERIFIED")
	default:
		return nil
	}
}

func (p *Processor) applyChargeSuccess(ctx context.Context, event *domain.WebhookEvent) error {
	tx, err := p.Ledger.GetTransactionByReference(ctx, event.Reference)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		// A charge we are not tracking. Not an error: could be a payment
		// made outside this system.
		slog.Info("webhook: charge for unknown transaction", "reference", event.Reference)
		return domain.ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("lookup transaction %s: %w", event.Reference, err)
	}
	if tx.Status == domain.TxStatusCompleted {
		return domain.ErrDuplicateEvent
	}

	if tx.Metadata["type"] == "deposit" || event.Metadata["type"] == "deposit" {
		wallet, err := p.Ledger.GetWallet(ctx, tx.OwnerID, tx.Currency)
		if err != nil {
			return fmt.Errorf("wallet for owner %s: %w", tx.OwnerID, err)
		}
		// One atomic step: if the credit cannot land, the transaction stays
		// pending and the provider's retry re-applies the whole transition.
		if err := p.Ledger.CompleteDepositAndCredit(ctx, tx.ID, wallet.ID, tx.Amount, event.Reference); err != nil {
			return fmt.Errorf("complete deposit %s: %w", tx.ID, err)
		}
	} else {
		status := domain.TxStatusCompleted
		if err := p.Ledger.UpdateTransaction(ctx, tx.ID, domain.TransactionPatch{Status: &status}); err != nil {
			return fmt.Errorf("complete transaction %s: %w", tx.ID, err)
		}
	}

	p.notify(ctx, tx.OwnerID, "payment.completed", map[string]any{
		"reference": event.Reference,
		"amount":    tx.Amount,
		"currency":  tx.Currency,
	})
	return nil
}

// applyTransferTerminal moves a payout to a terminal status. When compensate
// is set it also credits back the payout's designated credit owner for the
// full original amount, tagged as a reversal so history stays readable.
func (p *Processor) applyTransferTerminal(ctx context.Context, event *domain.WebhookEvent, status string, compensate bool) error {
	payout, err := p.Ledger.GetPayoutByReference(ctx, event.Reference)
	if errors.Is(err, domain.ErrPayoutNotFound) {
		slog.Info("webhook: transfer event for unknown payout", "reference", event.Reference)
		return domain.ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("lookup payout %s: %w", event.Reference, err)
	}

	if !validPayoutTransition(payout.Status, status) {
		slog.Warn("webhook: ignoring out-of-order transfer event",
			"reference", event.Reference, "from", payout.Status, "to", status)
		return domain.ErrDuplicateEvent
	}

	if compensate {
		wallet, err := p.Ledger.GetWallet(ctx, payout.CreditOwnerID, payout.Currency)
		if err != nil {
			return fmt.Errorf("reversal wallet for owner %s: %w", payout.CreditOwnerID, err)
		}
		// Status flip and refund commit together. A partial failure leaves the
		// payout in its prior status, so the retry passes the transition check
		// and the funds are restored exactly once.
		err = p.Ledger.FinalizePayoutWithRefund(ctx, payout.ID, status, wallet.ID, payout.Amount,
			"Transfer "+event.Reference+" "+string(event.Type), event.Reference)
		if err != nil {
			return fmt.Errorf("finalize payout %s: %w", payout.ID, err)
		}
	} else {
		if err := p.Ledger.UpdatePayoutStatus(ctx, payout.ID, status); err != nil {
			return fmt.Errorf("update payout %s: %w", payout.ID, err)
		}
	}

	p.notify(ctx, payout.OwnerID, "transfer."+status, map[string]any{
		"reference": event.Reference,
		"amount":    payout.Amount,
		"currency":  payout.Currency,
		"status":    status,
	})
	return nil
}

// validPayoutTransition encodes "only transition from the expected prior
// status". A reversal is only meaningful after a completed transfer; failure
// only before one.
func validPayoutTransition(from, to string) bool {
	switch to {
	case domain.PayoutStatusCompleted, domain.PayoutStatusFailed:
		return from == domain.PayoutStatusPending || from == domain.PayoutStatusProcessing
	case domain.PayoutStatusReversed:
		return from == domain.PayoutStatusCompleted
	}
	return false
}

func (p *Processor) notify(ctx context.Context, ownerID uuid.UUID, kind string, payload map[string]any) {
	if p.Notifier == nil {
		return
	}
	if err := p.Notifier.Notify(ctx, ownerID, kind, payload); err != nil {
		slog.Warn("webhook: notification dispatch failed", "kind", kind, "error", err)
	}
}
