package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
)

func newLedgerFixture(t *testing.T) (*LedgerService, *fakeWalletRepo, *fakeLedgerRepo, *fakePublisher) {
	t.Helper()
	walletRepo := newFakeWalletRepo()
	ledgerRepo := newFakeLedgerRepo()
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewLedgerService(walletRepo, ledgerRepo, fakeDB{}, publisher, "NGN", logger)
	return svc, walletRepo, ledgerRepo, publisher
}

func TestLedgerService_CreditThenDebit_BalanceMatchesLog(t *testing.T) {
	svc, walletRepo, ledgerRepo, publisher := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 0)

	credit, err := svc.Credit(context.Background(), wallet.ID, 1000_00, "paystack", "ref-1", domain.CategoryFunding, "funding")
	require.NoError(t, err)
	assert.Equal(t, int64(0), credit.PreviousBalance)
	assert.Equal(t, int64(1000_00), credit.NewBalance)

	debit, err := svc.Debit(context.Background(), wallet.ID, 250_00, "vtpass", "ref-2", domain.CategoryAirtime, "airtime purchase")
	require.NoError(t, err)
	assert.Equal(t, int64(1000_00), debit.PreviousBalance)
	assert.Equal(t, int64(750_00), debit.NewBalance)

	// Stored balance equals the sum of signed entry amounts.
	stored := walletRepo.get(wallet.ID)
	var sum int64
	for _, e := range ledgerRepo.all() {
		sum += e.SignedAmount()
	}
	assert.Equal(t, sum, stored.Balance)
	assert.Equal(t, int64(1000_00), stored.TotalCredits)
	assert.Equal(t, int64(250_00), stored.TotalDebits)
	assert.Equal(t, int64(2), stored.TransactionCount)
	assert.NotNil(t, stored.LastTransactionAt)

	assert.Equal(t, []string{SubjectTransactionCompleted, SubjectTransactionCompleted}, publisher.published())
}

func TestLedgerService_RejectsNonPositiveAmounts(t *testing.T) {
	svc, walletRepo, ledgerRepo, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 500_00)

	for _, amount := range []int64{0, -100} {
		_, err := svc.Credit(context.Background(), wallet.ID, amount, "paystack", "r", domain.CategoryFunding, "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = svc.Debit(context.Background(), wallet.ID, amount, "vtpass", "r", domain.CategoryAirtime, "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
	assert.Empty(t, ledgerRepo.all())
}

func TestLedgerService_Debit_InsufficientBalance(t *testing.T) {
	svc, walletRepo, ledgerRepo, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 100_00)

	_, err := svc.Debit(context.Background(), wallet.ID, 100_01, "vtpass", "ref-1", domain.CategoryData, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, int64(100_00), walletRepo.get(wallet.ID).Balance)
	assert.Empty(t, ledgerRepo.all())
}

func TestLedgerService_SequentialDebits_SecondSeesCommittedBalance(t *testing.T) {
	svc, walletRepo, _, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 100_00)

	_, err := svc.Debit(context.Background(), wallet.ID, 80_00, "vtpass", "ref-1", domain.CategoryAirtime, "")
	require.NoError(t, err)

	_, err = svc.Debit(context.Background(), wallet.ID, 80_00, "vtpass", "ref-2", domain.CategoryAirtime, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(20_00), walletRepo.get(wallet.ID).Balance)
}

func TestLedgerService_ConcurrentDebits_ExactlyOneSucceeds(t *testing.T) {
	svc, walletRepo, ledgerRepo, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 100_00)

	start := make(chan struct{})
	results := make(chan error, 2)
	for _, ref := range []string{"ref-1", "ref-2"} {
		go func(ref string) {
			<-start
			_, err := svc.Debit(context.Background(), wallet.ID, 80_00, "vtpass", ref, domain.CategoryAirtime, "")
			results <- err
		}(ref)
	}
	close(start)

	var succeeded, insufficient int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(20_00), walletRepo.get(wallet.ID).Balance)
	assert.Len(t, ledgerRepo.all(), 1)
}

func TestLedgerService_Debit_FrozenWallet(t *testing.T) {
	svc, walletRepo, _, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 500_00)
	walletRepo.get(wallet.ID).IsFrozen = true

	_, err := svc.Debit(context.Background(), wallet.ID, 100_00, "vtpass", "ref-1", domain.CategoryAirtime, "")
	assert.ErrorIs(t, err, domain.ErrWalletFrozen)

	// A frozen wallet still accepts credits.
	_, err = svc.Credit(context.Background(), wallet.ID, 100_00, "paystack", "ref-2", domain.CategoryFunding, "")
	assert.NoError(t, err)
}

func TestLedgerService_DuplicateReferenceRejected(t *testing.T) {
	svc, walletRepo, ledgerRepo, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 0)

	_, err := svc.Credit(context.Background(), wallet.ID, 100_00, "paystack", "ref-1", domain.CategoryFunding, "")
	require.NoError(t, err)

	_, err = svc.Credit(context.Background(), wallet.ID, 100_00, "paystack", "ref-1", domain.CategoryFunding, "")
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	assert.Len(t, ledgerRepo.all(), 1)
	assert.Equal(t, int64(100_00), walletRepo.get(wallet.ID).Balance)
}

func TestLedgerService_Fund_ProvisionsWalletAndDedupes(t *testing.T) {
	svc, walletRepo, ledgerRepo, _ := newLedgerFixture(t)
	ownerID := uuid.New()

	entry, err := svc.Fund(context.Background(), ownerID, 500_00, "paystack", "psk-1", "Wallet funding via paystack")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindCredit, entry.Kind)
	assert.Equal(t, int64(500_00), entry.NewBalance)

	wallet, err := walletRepo.GetByOwnerID(context.Background(), fakeDB{}, ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(500_00), wallet.Balance)

	_, err = svc.Fund(context.Background(), ownerID, 500_00, "paystack", "psk-1", "Wallet funding via paystack")
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.Len(t, ledgerRepo.all(), 1)
	assert.Equal(t, int64(500_00), walletRepo.get(wallet.ID).Balance)
}

func TestLedgerService_Transfer_MovesFundsAtomically(t *testing.T) {
	svc, walletRepo, _, _ := newLedgerFixture(t)
	from := walletRepo.seed(uuid.New(), 500_00)
	to := walletRepo.seed(uuid.New(), 100_00)

	outEntry, inEntry, err := svc.Transfer(context.Background(), from.ID, to.ID, 200_00, "rent split")
	require.NoError(t, err)

	assert.Equal(t, domain.EntryKindTransferOut, outEntry.Kind)
	assert.Equal(t, domain.EntryKindTransferIn, inEntry.Kind)
	// Both legs share one correlation reference.
	assert.Equal(t, outEntry.ExternalReference, inEntry.ExternalReference)
	assert.Contains(t, outEntry.ExternalReference, "TRF-")

	assert.Equal(t, int64(300_00), walletRepo.get(from.ID).Balance)
	assert.Equal(t, int64(300_00), walletRepo.get(to.ID).Balance)
}

func TestLedgerService_Transfer_InsufficientLeavesBothUntouched(t *testing.T) {
	svc, walletRepo, ledgerRepo, _ := newLedgerFixture(t)
	from := walletRepo.seed(uuid.New(), 100_00)
	to := walletRepo.seed(uuid.New(), 0)

	_, _, err := svc.Transfer(context.Background(), from.ID, to.ID, 200_00, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, int64(100_00), walletRepo.get(from.ID).Balance)
	assert.Equal(t, int64(0), walletRepo.get(to.ID).Balance)
	assert.Empty(t, ledgerRepo.all())
}

func TestLedgerService_Transfer_SameWalletRejected(t *testing.T) {
	svc, walletRepo, _, _ := newLedgerFixture(t)
	wallet := walletRepo.seed(uuid.New(), 500_00)

	_, _, err := svc.Transfer(context.Background(), wallet.ID, wallet.ID, 100_00, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestLedgerService_GetOrCreateWallet_IsIdempotent(t *testing.T) {
	svc, _, _, _ := newLedgerFixture(t)
	ownerID := uuid.New()

	first, err := svc.GetOrCreateWallet(context.Background(), ownerID)
	require.NoError(t, err)
	second, err := svc.GetOrCreateWallet(context.Background(), ownerID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "NGN", first.Currency)
}

func TestLedgerService_DeactivateWallet_RequiresZeroBalance(t *testing.T) {
	svc, walletRepo, _, _ := newLedgerFixture(t)
	ownerID := uuid.New()
	wallet := walletRepo.seed(ownerID, 100_00)

	err := svc.DeactivateWallet(context.Background(), ownerID)
	assert.ErrorIs(t, err, domain.ErrWalletNotEmpty)
	assert.True(t, walletRepo.get(wallet.ID).IsActive)

	_, err = svc.Debit(context.Background(), wallet.ID, 100_00, "vtpass", "ref-1", domain.CategoryAirtime, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateWallet(context.Background(), ownerID))
	assert.False(t, walletRepo.get(wallet.ID).IsActive)

	// An inactive wallet rejects further movement.
	_, err = svc.Credit(context.Background(), wallet.ID, 100_00, "paystack", "ref-2", domain.CategoryFunding, "")
	assert.ErrorIs(t, err, domain.ErrWalletInactive)
}

func TestLedgerService_Entries_NewestFirst(t *testing.T) {
	svc, walletRepo, _, _ := newLedgerFixture(t)
	ownerID := uuid.New()
	wallet := walletRepo.seed(ownerID, 0)

	for i, ref := range []string{"a", "b", "c"} {
		_, err := svc.Credit(context.Background(), wallet.ID, int64(100*(i+1)), "paystack", ref, domain.CategoryFunding, "")
		require.NoError(t, err)
	}

	entries, err := svc.Entries(context.Background(), ownerID, 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ExternalReference)
	assert.Equal(t, "b", entries[1].ExternalReference)
}
