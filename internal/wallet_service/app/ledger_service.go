package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

// NATS subjects published by the wallet core.
const (
	SubjectTransactionCompleted   = "wallet.transaction.completed"
	SubjectReconciliationRequired = "wallet.reconciliation.required"
)

// Publisher is the outbound event surface; *messagebroker.NatsClient satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// DB is what the application services need from *pgxpool.Pool: starting transactions
// for mutations and running plain queries for reads.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	repository.Querier
}

// LedgerService is the single point of truth for wallet balance mutation. Every
// mutation locks the wallet row, appends exactly one ledger entry and writes the new
// balance inside one database transaction, so balance and log cannot diverge.
type LedgerService struct {
	walletRepo repository.WalletRepository
	ledgerRepo repository.LedgerRepository
	db         DB
	publisher  Publisher
	currency   string
	logger     *slog.Logger
}

func NewLedgerService(
	walletRepo repository.WalletRepository,
	ledgerRepo repository.LedgerRepository,
	db DB,
	publisher Publisher,
	currency string,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		db:         db,
		publisher:  publisher,
		currency:   currency,
		logger:     logger.With("service", "ledger"),
	}
}

// GetOrCreateWallet lazily provisions the owner's wallet, at most once per owner.
func (s *LedgerService) GetOrCreateWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		w, err := s.walletRepo.GetOrCreateByOwner(ctx, tx, ownerID, s.currency)
		if err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision wallet for owner %s: %w", ownerID, err)
	}
	return wallet, nil
}

// Credit atomically increments the wallet balance and appends a completed credit entry.
func (s *LedgerService) Credit(ctx context.Context, walletID uuid.UUID, amount int64, provider, reference string, category domain.EntryCategory, description string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var entry *domain.LedgerEntry
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		wallet, err := s.walletRepo.GetForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if !wallet.IsActive {
			return domain.ErrWalletInactive
		}

		entry, err = s.applyEntry(ctx, tx, wallet, domain.EntryKindCredit, amount, provider, reference, category, description)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishTransactionCompleted(ctx, entry)
	s.logger.InfoContext(ctx, "Wallet credited",
		"wallet_id", walletID, "amount", amount, "provider", provider, "reference", reference, "new_balance", entry.NewBalance)
	return entry, nil
}

// Fund credits the owner's wallet from an external payment, provisioning the wallet
// lazily. The (provider, reference) pair is the idempotency key; a second Fund with the
// same pair fails with ErrDuplicateReference and moves no money.
func (s *LedgerService) Fund(ctx context.Context, ownerID uuid.UUID, amount int64, provider, reference, description string) (*domain.LedgerEntry, error) {
	wallet, err := s.GetOrCreateWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.Credit(ctx, wallet.ID, amount, provider, reference, domain.CategoryFunding, description)
}

// Debit atomically decrements the wallet balance and appends a completed debit entry.
// The balance check runs against the locked row, so concurrent debits serialize and the
// second observes the first's committed balance.
func (s *LedgerService) Debit(ctx context.Context, walletID uuid.UUID, amount int64, provider, reference string, category domain.EntryCategory, description string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var entry *domain.LedgerEntry
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		wallet, err := s.walletRepo.GetForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if !wallet.IsActive {
			return domain.ErrWalletInactive
		}
		if wallet.IsFrozen {
			return domain.ErrWalletFrozen
		}
		if wallet.Balance < amount {
			return domain.ErrInsufficientBalance
		}

		entry, err = s.applyEntry(ctx, tx, wallet, domain.EntryKindDebit, amount, provider, reference, category, description)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishTransactionCompleted(ctx, entry)
	s.logger.InfoContext(ctx, "Wallet debited",
		"wallet_id", walletID, "amount", amount, "provider", provider, "reference", reference, "new_balance", entry.NewBalance)
	return entry, nil
}

// Transfer moves funds between two wallets in one transaction; both update or neither.
// Wallet rows are locked lowest-id-first so two opposite-direction transfers cannot
// deadlock.
func (s *LedgerService) Transfer(ctx context.Context, fromWalletID, toWalletID uuid.UUID, amount int64, description string) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}
	if fromWalletID == toWalletID {
		return nil, nil, fmt.Errorf("%w: cannot transfer to the same wallet", domain.ErrInvalidAmount)
	}

	correlationRef := "TRF-" + uuid.NewString()
	var outEntry, inEntry *domain.LedgerEntry

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		firstID, secondID := fromWalletID, toWalletID
		if secondID.String() < firstID.String() {
			firstID, secondID = secondID, firstID
		}

		first, err := s.walletRepo.GetForUpdate(ctx, tx, firstID)
		if err != nil {
			return err
		}
		second, err := s.walletRepo.GetForUpdate(ctx, tx, secondID)
		if err != nil {
			return err
		}

		from, to := first, second
		if from.ID != fromWalletID {
			from, to = second, first
		}

		if !from.IsActive || !to.IsActive {
			return domain.ErrWalletInactive
		}
		if from.IsFrozen {
			return domain.ErrWalletFrozen
		}
		if from.Balance < amount {
			return domain.ErrInsufficientBalance
		}

		outEntry, err = s.applyEntry(ctx, tx, from, domain.EntryKindTransferOut, amount, "internal", correlationRef, domain.CategoryTransfer, description)
		if err != nil {
			return err
		}
		inEntry, err = s.applyEntry(ctx, tx, to, domain.EntryKindTransferIn, amount, "internal", correlationRef, domain.CategoryTransfer, description)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishTransactionCompleted(ctx, outEntry)
	s.publishTransactionCompleted(ctx, inEntry)
	s.logger.InfoContext(ctx, "Transfer completed",
		"from_wallet_id", fromWalletID, "to_wallet_id", toWalletID, "amount", amount, "reference", correlationRef)
	return outEntry, inEntry, nil
}

// TransferBetweenOwners resolves both owners' wallets (provisioning lazily) and transfers.
func (s *LedgerService) TransferBetweenOwners(ctx context.Context, fromOwnerID, toOwnerID uuid.UUID, amount int64, description string) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	fromWallet, err := s.GetOrCreateWallet(ctx, fromOwnerID)
	if err != nil {
		return nil, nil, err
	}
	toWallet, err := s.GetOrCreateWallet(ctx, toOwnerID)
	if err != nil {
		return nil, nil, err
	}
	return s.Transfer(ctx, fromWallet.ID, toWallet.ID, amount, description)
}

// DeactivateWallet marks the owner's wallet inactive. Only a zero-balance wallet can be
// deactivated; wallets are never deleted.
func (s *LedgerService) DeactivateWallet(ctx context.Context, ownerID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		wallet, err := s.walletRepo.GetByOwnerID(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if err := s.walletRepo.Deactivate(ctx, tx, wallet.ID); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "Wallet deactivated", "wallet_id", wallet.ID, "owner_id", ownerID)
		return nil
	})
}

// FindEntryByReference is the idempotency lookup for funding deliveries.
func (s *LedgerService) FindEntryByReference(ctx context.Context, provider, reference string) (*domain.LedgerEntry, error) {
	return s.ledgerRepo.GetByReference(ctx, s.db, provider, reference)
}

// Balance returns the owner's balance in minor units, provisioning the wallet lazily.
func (s *LedgerService) Balance(ctx context.Context, ownerID uuid.UUID) (int64, string, error) {
	wallet, err := s.GetOrCreateWallet(ctx, ownerID)
	if err != nil {
		return 0, "", err
	}
	return wallet.Balance, wallet.Currency, nil
}

// Entries lists the owner's ledger entries, newest first.
func (s *LedgerService) Entries(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.ledgerRepo.ListByOwner(ctx, s.db, ownerID, limit, offset)
}

// applyEntry performs the read-compute-write for one wallet inside the caller's
// transaction: new balance, cumulative stats and the matching ledger entry.
func (s *LedgerService) applyEntry(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, kind domain.EntryKind, amount int64, provider, reference string, category domain.EntryCategory, description string) (*domain.LedgerEntry, error) {
	previous := wallet.Balance

	switch kind {
	case domain.EntryKindCredit, domain.EntryKindTransferIn:
		wallet.Balance += amount
		wallet.TotalCredits += amount
	case domain.EntryKindDebit, domain.EntryKindTransferOut:
		wallet.Balance -= amount
		wallet.TotalDebits += amount
	}
	wallet.TransactionCount++
	now := time.Now().UTC()
	wallet.LastTransactionAt = &now

	entry := &domain.LedgerEntry{
		WalletID:          &wallet.ID,
		OwnerID:           &wallet.OwnerID,
		Kind:              kind,
		Amount:            amount,
		PreviousBalance:   previous,
		NewBalance:        wallet.Balance,
		Provider:          provider,
		ExternalReference: reference,
		Category:          category,
		Status:            domain.EntryStatusCompleted,
		Description:       description,
	}

	created, err := s.ledgerRepo.Create(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if err := s.walletRepo.ApplyMutation(ctx, tx, wallet); err != nil {
		return nil, err
	}

	ledgerMutationsCounter.WithLabelValues(string(kind), string(category)).Inc()
	return created, nil
}

type transactionCompletedEvent struct {
	EntryID    uuid.UUID  `json:"entry_id"`
	WalletID   *uuid.UUID `json:"wallet_id"`
	OwnerID    *uuid.UUID `json:"owner_id"`
	Kind       string     `json:"kind"`
	Amount     int64      `json:"amount"`
	NewBalance int64      `json:"new_balance"`
	Category   string     `json:"category"`
	Reference  string     `json:"reference"`
	CreatedAt  time.Time  `json:"created_at"`
}

// publishTransactionCompleted emits the post-commit event. Publishing is best effort;
// the ledger row is already durable.
func (s *LedgerService) publishTransactionCompleted(ctx context.Context, entry *domain.LedgerEntry) {
	if s.publisher == nil || entry == nil {
		return
	}
	payload, err := json.Marshal(transactionCompletedEvent{
		EntryID:    entry.ID,
		WalletID:   entry.WalletID,
		OwnerID:    entry.OwnerID,
		Kind:       string(entry.Kind),
		Amount:     entry.Amount,
		NewBalance: entry.NewBalance,
		Category:   string(entry.Category),
		Reference:  entry.ExternalReference,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal transaction event", "error", err, "entry_id", entry.ID)
		return
	}
	if err := s.publisher.Publish(ctx, SubjectTransactionCompleted, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish transaction event", "error", err, "entry_id", entry.ID)
	}
}
