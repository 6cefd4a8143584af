package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

// LedgerRepository implements ports.LedgerPort on Postgres. Wallet moves run
// inside a transaction with a row lock so check-and-debit is atomic; the
// orchestration layer relies on that guarantee instead of doing its own
// locking.
type LedgerRepository struct {
	Db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{Db: db}
}

func (r *LedgerRepository) GetWallet(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	query := `SELECT id, owner_id, currency, balance, created_at FROM wallets WHERE owner_id = $1 AND currency = $2`
	var w domain.Wallet
	err := r.Db.QueryRow(ctx, query, ownerID, string(currency)).Scan(
		&w.ID, &w.OwnerID, &w.Currency, &w.Balance, &w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *LedgerRepository) CreditWallet(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, reason, description, reference string) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1 WHERE id = $2`, amount, walletID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (wallet_id, direction, amount, reason, description, reference)
		VALUES ($1, 'CREDIT', $2, $3, $4, $5)`,
		walletID, amount, reason, description, reference)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepository) DebitWallet(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, reason, description, reference string) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrWalletNotFound
	}
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance - $1 WHERE id = $2`, amount, walletID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (wallet_id, direction, amount, reason, description, reference)
		VALUES ($1, 'DEBIT', $2, $3, $4, $5)`,
		walletID, amount, reason, description, reference)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepository) HasLedgerEntry(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.Db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallet_entries WHERE reference = $1)`, reference).Scan(&exists)
	return exists, err
}

// CompleteDepositAndCredit flips the deposit transaction to COMPLETED and
// credits the wallet inside one database transaction. If either write fails
// the other rolls back, so a provider retry finds the deposit still pending
// and applies the whole transition again.
func (r *LedgerRepository) CompleteDepositAndCredit(ctx context.Context, txID, walletID uuid.UUID, amount decimal.Decimal, reference string) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`,
		domain.TxStatusCompleted, txID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1 WHERE id = $2`, amount, walletID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (wallet_id, direction, amount, reason, description, reference)
		VALUES ($1, 'CREDIT', $2, $3, $4, $5)`,
		walletID, amount, domain.ReasonDeposit, "Wallet deposit", reference)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepository) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transactions (owner_id, type, amount, currency, status, description, reference, provider, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err = r.Db.QueryRow(ctx, query,
		t.OwnerID, t.Type, t.Amount, string(t.Currency), t.Status,
		t.Description, t.Reference, string(t.Provider), meta,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) UpdateTransaction(ctx context.Context, id uuid.UUID, patch domain.TransactionPatch) error {
	if patch.Status != nil {
		if _, err := r.Db.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, *patch.Status, id); err != nil {
			return err
		}
	}
	if patch.Description != nil {
		if _, err := r.Db.Exec(ctx, `UPDATE transactions SET description = $1 WHERE id = $2`, *patch.Description, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *LedgerRepository) GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `
		SELECT id, owner_id, type, amount, currency, status, description, reference, provider, metadata, created_at
		FROM transactions WHERE reference = $1
	`
	var t domain.Transaction
	var meta []byte
	err := r.Db.QueryRow(ctx, query, reference).Scan(
		&t.ID, &t.OwnerID, &t.Type, &t.Amount, &t.Currency, &t.Status,
		&t.Description, &t.Reference, &t.Provider, &meta, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &t.Metadata)
	}
	return &t, nil
}

func (r *LedgerRepository) CreatePayout(ctx context.Context, p *domain.Payout) error {
	recipient, err := json.Marshal(p.Recipient)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO payouts (owner_id, credit_owner_id, recipient, amount, currency, provider, reference, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err = r.Db.QueryRow(ctx, query,
		p.OwnerID, p.CreditOwnerID, recipient, p.Amount, string(p.Currency),
		string(p.Provider), p.Reference, p.Status, p.Reason,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (r *LedgerRepository) UpdatePayoutStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.Db.Exec(ctx, `UPDATE payouts SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

func (r *LedgerRepository) GetPayoutByReference(ctx context.Context, reference string) (*domain.Payout, error) {
	query := `
		SELECT id, owner_id, credit_owner_id, recipient, amount, currency, provider, reference, status, reason, created_at, updated_at
		FROM payouts WHERE reference = $1
	`
	var p domain.Payout
	var recipient []byte
	err := r.Db.QueryRow(ctx, query, reference).Scan(
		&p.ID, &p.OwnerID, &p.CreditOwnerID, &recipient, &p.Amount, &p.Currency,
		&p.Provider, &p.Reference, &p.Status, &p.Reason, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(recipient) > 0 {
		_ = json.Unmarshal(recipient, &p.Recipient)
	}
	return &p, nil
}

// FinalizePayoutWithRefund moves the payout terminal and restores the funds in
// the same database transaction, so the status can never advance without the
// compensating credit landing with it.
func (r *LedgerRepository) FinalizePayoutWithRefund(ctx context.Context, payoutID uuid.UUID, status string, walletID uuid.UUID, amount decimal.Decimal, description, reference string) error {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE payouts SET status = $1, updated_at = now() WHERE id = $2`,
		status, payoutID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1 WHERE id = $2`, amount, walletID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_entries (wallet_id, direction, amount, reason, description, reference)
		VALUES ($1, 'CREDIT', $2, $3, $4, $5)`,
		walletID, amount, domain.ReasonReversal, description, reference)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepository) IsEventProcessed(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.Db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_key = $1)`, key).Scan(&exists)
	return exists, err
}

func (r *LedgerRepository) MarkEventProcessed(ctx context.Context, key string, provider domain.Provider) error {
	_, err := r.Db.Exec(ctx, `
		INSERT INTO processed_events (event_key, provider) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, key, string(provider))
	return err
}

func (r *LedgerRepository) UpdateVirtualAccountStatus(ctx context.Context, customerCode, status, accountNumber, bankName string) error {
	_, err := r.Db.Exec(ctx, `
		INSERT INTO virtual_accounts (customer_code, status, account_number, bank_name, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (customer_code) DO UPDATE
		SET status = EXCLUDED.status,
		    account_number = EXCLUDED.account_number,
		    bank_name = EXCLUDED.bank_name,
		    updated_at = now()`,
		customerCode, status, accountNumber, bankName)
	return err
}

// RegisterVirtualAccount links a freshly provisioned provider account to an
// owner so later webhook updates can find it.
func (r *LedgerRepository) RegisterVirtualAccount(ctx context.Context, customerCode string, ownerID uuid.UUID, provider domain.Provider, status, accountNumber, bankName string) error {
	_, err := r.Db.Exec(ctx, `
		INSERT INTO virtual_accounts (customer_code, owner_id, provider, status, account_number, bank_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (customer_code) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    provider = EXCLUDED.provider,
		    status = EXCLUDED.status,
		    account_number = EXCLUDED.account_number,
		    bank_name = EXCLUDED.bank_name,
		    updated_at = now()`,
		customerCode, ownerID, string(provider), status, accountNumber, bankName)
	return err
}

func (r *LedgerRepository) UpdateIdentityStatus(ctx context.Context, customerCode, status string) error {
	_, err := r.Db.Exec(ctx, `
		UPDATE owners SET kyc_status = $1
		WHERE id = (SELECT owner_id FROM virtual_accounts WHERE customer_code = $2)`,
		status, customerCode)
	return err
}

// GetHistory fetches the most recent wallet entries for an owner.
func (r *LedgerRepository) GetHistory(ctx context.Context, ownerID uuid.UUID, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT e.id, e.direction, e.amount, e.reason, e.description, e.reference, e.created_at, w.currency
		FROM wallet_entries e
		JOIN wallets w ON w.id = e.wallet_id
		WHERE w.owner_id = $1
		ORDER BY e.created_at DESC
		LIMIT $2
	`
	rows, err := r.Db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []map[string]interface{}
	for rows.Next() {
		var id uuid.UUID
		var direction, reason, description, reference, currency string
		var amount decimal.Decimal
		var createdAt interface{}
		if err := rows.Scan(&id, &direction, &amount, &reason, &description, &reference, &createdAt, &currency); err != nil {
			return nil, err
		}
		history = append(history, map[string]interface{}{
			"id":          id,
			"direction":   direction,
			"amount":      amount,
			"reason":      reason,
			"description": description,
			"reference":   reference,
			"currency":    currency,
			"date":        createdAt,
		})
	}
	return history, rows.Err()
}
