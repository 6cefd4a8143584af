package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Owner is a company or team member holding wallets.
type Owner struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	KYCStatus string    `json:"kyc_status"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *AccountRepository) CreateOwner(ctx context.Context, name, email string) (*Owner, error) {
	query := `
		INSERT INTO owners (name, email)
		VALUES ($1, $2)
		RETURNING id, name, email, kyc_status, created_at
	`
	var o Owner
	err := r.db.QueryRow(ctx, query, name, email).Scan(
		&o.ID, &o.Name, &o.Email, &o.KYCStatus, &o.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}
	return &o, nil
}

func (r *AccountRepository) GetOwnerByID(ctx context.Context, id uuid.UUID) (*Owner, error) {
	query := `SELECT id, name, email, kyc_status, created_at FROM owners WHERE id = $1`
	var o Owner
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.Name, &o.Email, &o.KYCStatus, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("owner not found")
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateWallet provisions an empty wallet for an owner and currency.
func (r *AccountRepository) CreateWallet(ctx context.Context, ownerID uuid.UUID, currency string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO wallets (owner_id, currency) VALUES ($1, $2)
		ON CONFLICT (owner_id, currency) DO UPDATE SET currency = EXCLUDED.currency
		RETURNING id`, ownerID, currency).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return id, nil
}

// SaveAPIKey stores the hashed key for the owner.
func (r *AccountRepository) SaveAPIKey(ctx context.Context, accountID uuid.UUID, keyHash string, keyPrefix string) error {
	query := `INSERT INTO api_keys (account_id, key_hash, key_prefix) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, accountID, keyHash, keyPrefix); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}
