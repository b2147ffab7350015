package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx, so repository methods can
// run inside or outside a transaction as the caller decides.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WalletRepository persists wallets. Balance is only ever written through
// ApplyMutation inside the same transaction that appends the matching ledger entry.
type WalletRepository interface {
	// GetOrCreateByOwner lazily provisions the owner's wallet, at most once, relying on
	// the unique index on owner_id.
	GetOrCreateByOwner(ctx context.Context, q Querier, ownerID uuid.UUID, currency string) (*domain.Wallet, error)
	GetByOwnerID(ctx context.Context, q Querier, ownerID uuid.UUID) (*domain.Wallet, error)
	// GetForUpdate locks the wallet row (SELECT ... FOR UPDATE) for the duration of the
	// enclosing transaction. Concurrent mutations of the same wallet serialize here.
	GetForUpdate(ctx context.Context, q Querier, walletID uuid.UUID) (*domain.Wallet, error)
	// ApplyMutation writes balance, cumulative stats and last_transaction_at.
	ApplyMutation(ctx context.Context, q Querier, wallet *domain.Wallet) error
	// Deactivate marks a zero-balance wallet inactive. Wallets are never deleted.
	Deactivate(ctx context.Context, q Querier, walletID uuid.UUID) error
}

// LedgerRepository persists the append-only transaction log.
type LedgerRepository interface {
	// Create appends an entry. A (provider, external_reference, kind) collision is
	// reported as domain.ErrDuplicateReference.
	Create(ctx context.Context, q Querier, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	// GetByReference returns the entry for an external reference, or domain.ErrNotFound.
	GetByReference(ctx context.Context, q Querier, provider, reference string) (*domain.LedgerEntry, error)
	ListByOwner(ctx context.Context, q Querier, ownerID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
}

// UserRepository exposes the identity lookups the wallet core needs.
type UserRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, q Querier, email string) (*domain.User, error)
	GetByVirtualAccountNumber(ctx context.Context, q Querier, accountNumber string) (*domain.User, error)
	GetByGatewayCustomerID(ctx context.Context, q Querier, customerID string) (*domain.User, error)
}
