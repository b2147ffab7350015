package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

type pgWalletRepository struct {
	logger *slog.Logger
}

// NewPgWalletRepository creates a WalletRepository backed by PostgreSQL. Methods take a
// Querier so callers control the transaction boundary.
func NewPgWalletRepository(logger *slog.Logger) repository.WalletRepository {
	return &pgWalletRepository{logger: logger.With("component", "wallet_repository_pg")}
}

const walletColumns = `
	id, owner_id, balance, currency, is_active, is_frozen, last_transaction_at,
	total_credits, total_debits, transaction_count, created_at, updated_at
`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Balance, &w.Currency, &w.IsActive, &w.IsFrozen,
		&w.LastTransactionAt, &w.TotalCredits, &w.TotalDebits, &w.TransactionCount,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *pgWalletRepository) GetOrCreateByOwner(ctx context.Context, q repository.Querier, ownerID uuid.UUID, currency string) (*domain.Wallet, error) {
	now := time.Now().UTC()
	// ON CONFLICT DO NOTHING keeps provisioning idempotent under concurrent first requests;
	// the follow-up select returns whichever row won.
	insert := `
		INSERT INTO wallets (id, owner_id, balance, currency, is_active, is_frozen,
		                     total_credits, total_debits, transaction_count, created_at, updated_at)
		VALUES ($1, $2, 0, $3, TRUE, FALSE, 0, 0, 0, $4, $4)
		ON CONFLICT (owner_id) DO NOTHING
	`
	if _, err := q.Exec(ctx, insert, uuid.New(), ownerID, currency, now); err != nil {
		r.logger.ErrorContext(ctx, "Error provisioning wallet", "error", err, "owner_id", ownerID)
		return nil, err
	}
	return r.GetByOwnerID(ctx, q, ownerID)
}

func (r *pgWalletRepository) GetByOwnerID(ctx context.Context, q repository.Querier, ownerID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1`
	w, err := scanWallet(q.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

func (r *pgWalletRepository) GetForUpdate(ctx context.Context, q repository.Querier, walletID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	w, err := scanWallet(q.QueryRow(ctx, query, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

func (r *pgWalletRepository) ApplyMutation(ctx context.Context, q repository.Querier, wallet *domain.Wallet) error {
	wallet.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE wallets SET
			balance = $1,
			total_credits = $2,
			total_debits = $3,
			transaction_count = $4,
			last_transaction_at = $5,
			updated_at = $6
		WHERE id = $7
	`
	tag, err := q.Exec(ctx, query,
		wallet.Balance, wallet.TotalCredits, wallet.TotalDebits, wallet.TransactionCount,
		wallet.LastTransactionAt, wallet.UpdatedAt, wallet.ID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error applying wallet mutation", "error", err, "wallet_id", wallet.ID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (r *pgWalletRepository) Deactivate(ctx context.Context, q repository.Querier, walletID uuid.UUID) error {
	query := `
		UPDATE wallets SET is_active = FALSE, updated_at = $1
		WHERE id = $2 AND balance = 0
	`
	tag, err := q.Exec(ctx, query, time.Now().UTC(), walletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the wallet does not exist or it still holds funds.
		w, getErr := r.GetForUpdate(ctx, q, walletID)
		if getErr != nil {
			return getErr
		}
		if w.Balance != 0 {
			return domain.ErrWalletNotEmpty
		}
		return domain.ErrWalletNotFound
	}
	return nil
}
