package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

// fakeTx satisfies pgx.Tx for pgx.BeginFunc. Only Commit and Rollback are ever called
// because the fake repositories ignore the Querier for data access; fakeWalletRepo does
// use it to hold row locks until the transaction ends, the way FOR UPDATE does.
type fakeTx struct {
	pgx.Tx
	mu        sync.Mutex
	finished  bool
	finishers []func()
}

func (t *fakeTx) onFinish(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishers = append(t.finishers, fn)
}

// finish runs once even though pgx.BeginFunc rolls back after a successful commit.
func (t *fakeTx) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	for i := len(t.finishers) - 1; i >= 0; i-- {
		t.finishers[i]()
	}
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.finish(); return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.finish(); return nil }

type fakeDB struct{}

func (fakeDB) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }
func (fakeDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

// fakeWalletRepo is a map-backed WalletRepository. GetForUpdate returns a copy so the
// store only changes when ApplyMutation writes it back, and it holds a per-wallet lock
// until the surrounding transaction finishes, so concurrent mutations serialize the way
// they do against the real FOR UPDATE row lock.
type fakeWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
	byOwner map[uuid.UUID]uuid.UUID
	locks   map[uuid.UUID]*sync.Mutex
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{
		wallets: make(map[uuid.UUID]*domain.Wallet),
		byOwner: make(map[uuid.UUID]uuid.UUID),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *fakeWalletRepo) seed(ownerID uuid.UUID, balance int64) *domain.Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &domain.Wallet{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Balance:  balance,
		Currency: "NGN",
		IsActive: true,
	}
	r.wallets[w.ID] = w
	r.byOwner[ownerID] = w.ID
	return w
}

func (r *fakeWalletRepo) get(walletID uuid.UUID) *domain.Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallets[walletID]
}

func (r *fakeWalletRepo) GetOrCreateByOwner(ctx context.Context, q repository.Querier, ownerID uuid.UUID, currency string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byOwner[ownerID]; ok {
		cp := *r.wallets[id]
		return &cp, nil
	}
	w := &domain.Wallet{ID: uuid.New(), OwnerID: ownerID, Currency: currency, IsActive: true}
	r.wallets[w.ID] = w
	r.byOwner[ownerID] = w.ID
	cp := *w
	return &cp, nil
}

func (r *fakeWalletRepo) GetByOwnerID(ctx context.Context, q repository.Querier, ownerID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOwner[ownerID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *r.wallets[id]
	return &cp, nil
}

func (r *fakeWalletRepo) GetForUpdate(ctx context.Context, q repository.Querier, walletID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	if _, ok := r.wallets[walletID]; !ok {
		r.mu.Unlock()
		return nil, domain.ErrWalletNotFound
	}
	rowLock, ok := r.locks[walletID]
	if !ok {
		rowLock = &sync.Mutex{}
		r.locks[walletID] = rowLock
	}
	r.mu.Unlock()

	rowLock.Lock()
	if tx, ok := q.(*fakeTx); ok {
		tx.onFinish(rowLock.Unlock)
	} else {
		defer rowLock.Unlock()
	}

	// Read after acquiring the row lock so a concurrently committed mutation is seen.
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.wallets[walletID]
	return &cp, nil
}

func (r *fakeWalletRepo) ApplyMutation(ctx context.Context, q repository.Querier, wallet *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *wallet
	r.wallets[wallet.ID] = &cp
	return nil
}

func (r *fakeWalletRepo) Deactivate(ctx context.Context, q repository.Querier, walletID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	if w.Balance != 0 {
		return domain.ErrWalletNotEmpty
	}
	w.IsActive = false
	return nil
}

// fakeLedgerRepo enforces the (provider, reference, kind) uniqueness the real schema
// guarantees with its partial unique index.
type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	refs    map[string]int
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{refs: make(map[string]int)}
}

func refKey(provider, reference string, kind domain.EntryKind) string {
	return fmt.Sprintf("%s|%s|%s", provider, reference, kind)
}

func (r *fakeLedgerRepo) Create(ctx context.Context, q repository.Querier, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ExternalReference != "" {
		key := refKey(entry.Provider, entry.ExternalReference, entry.Kind)
		if _, exists := r.refs[key]; exists {
			return nil, domain.ErrDuplicateReference
		}
		r.refs[key] = len(r.entries)
	}
	cp := *entry
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, cp)
	out := cp
	return &out, nil
}

func (r *fakeLedgerRepo) GetByReference(ctx context.Context, q repository.Querier, provider, reference string) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].Provider == provider && r.entries[i].ExternalReference == reference {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeLedgerRepo) ListByOwner(ctx context.Context, q repository.Querier, ownerID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].OwnerID != nil && *r.entries[i].OwnerID == ownerID {
			out = append(out, r.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeLedgerRepo) all() []domain.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LedgerEntry(nil), r.entries...)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *fakeUserRepo) add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *fakeUserRepo) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, q repository.Querier, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetByVirtualAccountNumber(ctx context.Context, q repository.Querier, accountNumber string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.VirtualAccountNumber != nil && *u.VirtualAccountNumber == accountNumber {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetByGatewayCustomerID(ctx context.Context, q repository.Querier, customerID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GatewayCustomerID != nil && *u.GatewayCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}
