package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

type pgUserRepository struct {
	logger *slog.Logger
}

// NewPgUserRepository creates a UserRepository backed by PostgreSQL.
func NewPgUserRepository(logger *slog.Logger) repository.UserRepository {
	return &pgUserRepository{logger: logger.With("component", "user_repository_pg")}
}

const userColumns = `
	id, email, virtual_account_number, gateway_customer_id, transaction_pin_hash, is_active, created_at
`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.VirtualAccountNumber, &u.GatewayCustomerID,
		&u.TransactionPinHash, &u.IsActive, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *pgUserRepository) getOne(ctx context.Context, q repository.Querier, query string, arg any) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *pgUserRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, q, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *pgUserRepository) GetByEmail(ctx context.Context, q repository.Querier, email string) (*domain.User, error) {
	return r.getOne(ctx, q, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *pgUserRepository) GetByVirtualAccountNumber(ctx context.Context, q repository.Querier, accountNumber string) (*domain.User, error) {
	return r.getOne(ctx, q, `SELECT `+userColumns+` FROM users WHERE virtual_account_number = $1`, accountNumber)
}

func (r *pgUserRepository) GetByGatewayCustomerID(ctx context.Context, q repository.Querier, customerID string) (*domain.User, error) {
	return r.getOne(ctx, q, `SELECT `+userColumns+` FROM users WHERE gateway_customer_id = $1`, customerID)
}
