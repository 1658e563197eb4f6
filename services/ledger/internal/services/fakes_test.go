package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/corebank/ledger-core/services/ledger/configs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is the in-memory backing state shared by the fake repositories.
type memStore struct {
	accounts map[uuid.UUID]models.Account
	txns     []models.Transaction
	cards    []models.Card
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[uuid.UUID]models.Account)}
}

func (s *memStore) clone() *memStore {
	accounts := make(map[uuid.UUID]models.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = a
	}
	return &memStore{
		accounts: accounts,
		txns:     append([]models.Transaction(nil), s.txns...),
		cards:    append([]models.Card(nil), s.cards...),
	}
}

// fakeDB serializes units of work with a mutex and restores a snapshot on
// error, mirroring transaction rollback.
type fakeDB struct {
	mu    sync.Mutex
	store *memStore
}

func newFakeDB() *fakeDB {
	return &fakeDB{store: newMemStore()}
}

func (d *fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := d.store.clone()
	if err := fn(ctx, nil); err != nil {
		d.store = snapshot
		return err
	}
	return nil
}

// The engine's read-only paths hand the Querier to the fake repositories,
// which go straight to the store; these are never reached.
func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented in fake")
}
func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

type fakeAccountRepo struct {
	db *fakeDB
}

func (r *fakeAccountRepo) Create(_ context.Context, _ pgx.Tx, account models.Account) error {
	for _, a := range r.db.store.accounts {
		if a.AccountNumber == account.AccountNumber {
			return pkg.NewAppError(pkg.ErrSQLDuplicateCode, "duplicate value violates unique constraint", pkg.SqlError)
		}
	}
	r.db.store.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) FindById(_ context.Context, _ database.Querier, accountID uuid.UUID) (models.Account, error) {
	account, ok := r.db.store.accounts[accountID]
	if !ok {
		return models.Account{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", pgx.ErrNoRows)
	}
	return account, nil
}

func (r *fakeAccountRepo) FindByNumber(_ context.Context, _ database.Querier, accountNumber string) (models.Account, error) {
	for _, a := range r.db.store.accounts {
		if a.AccountNumber == accountNumber {
			return a, nil
		}
	}
	return models.Account{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", pgx.ErrNoRows)
}

func (r *fakeAccountRepo) NumberExists(_ context.Context, _ pgx.Tx, accountNumber string) (bool, error) {
	for _, a := range r.db.store.accounts {
		if a.AccountNumber == accountNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) LockForUpdate(_ context.Context, _ pgx.Tx, accountIDs ...uuid.UUID) error {
	// The fake transaction mutex already serializes units of work.
	for _, id := range accountIDs {
		if _, ok := r.db.store.accounts[id]; !ok {
			return pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", pgx.ErrNoRows)
		}
	}
	return nil
}

func (r *fakeAccountRepo) ApplyBalanceDelta(_ context.Context, _ pgx.Tx, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error) {
	account, ok := r.db.store.accounts[accountID]
	if !ok {
		return models.Account{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", pgx.ErrNoRows)
	}
	next := account.Balance.Add(delta)
	if next.IsNegative() {
		return models.Account{}, pkg.NewAppError(pkg.ErrInsufficientFundsCode, "insufficient balance", pkg.ErrInsufficientBalance)
	}
	account.Balance = next
	account.UpdatedAt = time.Now()
	r.db.store.accounts[accountID] = account
	return account, nil
}

type fakeTransactionRepo struct {
	db *fakeDB

	// appendFault, when set, is consulted before each append; returning a
	// non-nil error fails the insert.
	appendFault func(txn models.Transaction) error
}

func (r *fakeTransactionRepo) Append(_ context.Context, _ pgx.Tx, txn models.Transaction) error {
	if r.appendFault != nil {
		if err := r.appendFault(txn); err != nil {
			return err
		}
	}
	for _, existing := range r.db.store.txns {
		if existing.TransactionID == txn.TransactionID {
			return pkg.NewAppError(pkg.ErrSQLDuplicateCode, "duplicate value violates unique constraint", pkg.SqlError)
		}
	}
	r.db.store.txns = append(r.db.store.txns, txn)
	return nil
}

func (r *fakeTransactionRepo) ListByAccount(_ context.Context, _ database.Querier, accountID uuid.UUID, typeFilter *pkg.TransactionType) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range r.db.store.txns {
		if t.AccountID != accountID {
			continue
		}
		if typeFilter != nil && t.Type != *typeFilter {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeTransactionRepo) FindByTransactionID(_ context.Context, _ database.Querier, transactionID string, ownerUserID uuid.UUID) (models.Transaction, error) {
	for _, t := range r.db.store.txns {
		if t.TransactionID != transactionID {
			continue
		}
		owner, ok := r.db.store.accounts[t.AccountID]
		if ok && owner.UserID == ownerUserID {
			return t, nil
		}
	}
	return models.Transaction{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", pgx.ErrNoRows)
}

type fakeCardRepo struct {
	db *fakeDB
}

func (r *fakeCardRepo) Create(_ context.Context, _ pgx.Tx, card models.Card) error {
	r.db.store.cards = append(r.db.store.cards, card)
	return nil
}

func (r *fakeCardRepo) NumberExists(_ context.Context, _ pgx.Tx, cardNumber string) (bool, error) {
	for _, c := range r.db.store.cards {
		if c.CardNumber == cardNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCardRepo) ListByAccount(_ context.Context, _ database.Querier, accountID uuid.UUID) ([]models.Card, error) {
	var out []models.Card
	for _, c := range r.db.store.cards {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func testConfig() *configs.Config {
	return &configs.Config{
		PinFreshnessWindow: 10 * time.Minute,
		IdMaxAttempts:      5,
		UnitRetryCount:     3,
		CardValidityYears:  3,
		MaxAmount:          decimal.RequireFromString("1000000.00"),
	}
}
