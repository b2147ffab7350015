package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

const pgUniqueViolationCode = "23505"

type pgLedgerRepository struct {
	logger *slog.Logger
}

// NewPgLedgerRepository creates a LedgerRepository backed by PostgreSQL.
func NewPgLedgerRepository(logger *slog.Logger) repository.LedgerRepository {
	return &pgLedgerRepository{logger: logger.With("component", "ledger_repository_pg")}
}

const ledgerColumns = `
	id, wallet_id, owner_id, kind, amount, previous_balance, new_balance,
	provider, external_reference, category, status, description, gateway_payload, created_at
`

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(
		&e.ID, &e.WalletID, &e.OwnerID, &e.Kind, &e.Amount, &e.PreviousBalance, &e.NewBalance,
		&e.Provider, &e.ExternalReference, &e.Category, &e.Status, &e.Description,
		&e.GatewayPayload, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *pgLedgerRepository) Create(ctx context.Context, q repository.Querier, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO ledger_entries (id, wallet_id, owner_id, kind, amount, previous_balance,
		                            new_balance, provider, external_reference, category, status,
		                            description, gateway_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := q.Exec(ctx, query,
		entry.ID, entry.WalletID, entry.OwnerID, entry.Kind, entry.Amount, entry.PreviousBalance,
		entry.NewBalance, entry.Provider, entry.ExternalReference, entry.Category, entry.Status,
		entry.Description, entry.GatewayPayload, entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			// The unique index on (provider, external_reference, kind) is the race-closing
			// backstop for concurrent identical webhook deliveries.
			r.logger.InfoContext(ctx, "Duplicate external reference rejected by constraint",
				"provider", entry.Provider, "external_reference", entry.ExternalReference)
			return nil, domain.ErrDuplicateReference
		}
		r.logger.ErrorContext(ctx, "Error creating ledger entry", "error", err, "external_reference", entry.ExternalReference)
		return nil, err
	}
	return entry, nil
}

func (r *pgLedgerRepository) GetByReference(ctx context.Context, q repository.Querier, provider, reference string) (*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE provider = $1 AND external_reference = $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	e, err := scanLedgerEntry(q.QueryRow(ctx, query, provider, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *pgLedgerRepository) ListByOwner(ctx context.Context, q repository.Querier, ownerID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := q.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		err := rows.Scan(
			&e.ID, &e.WalletID, &e.OwnerID, &e.Kind, &e.Amount, &e.PreviousBalance, &e.NewBalance,
			&e.Provider, &e.ExternalReference, &e.Category, &e.Status, &e.Description,
			&e.GatewayPayload, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
