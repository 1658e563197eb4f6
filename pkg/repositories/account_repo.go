package repositories

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepository defines the interface for the account store. Reads take a
// database.Querier so they run inside or outside a unit of work; writes take
// pgx.Tx because balances only change inside one.
type AccountRepository interface {
	// Create inserts a new account record.
	Create(ctx context.Context, tx pgx.Tx, account models.Account) error
	// FindById finds an account by ID.
	FindById(ctx context.Context, q database.Querier, accountID uuid.UUID) (models.Account, error)
	// FindByNumber finds an account by its 16-digit account number.
	FindByNumber(ctx context.Context, q database.Querier, accountNumber string) (models.Account, error)
	// NumberExists reports whether an account number is already assigned.
	NumberExists(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error)
	// LockForUpdate takes row locks on the given accounts in UUID order so
	// concurrent transfers over the same pair cannot deadlock.
	LockForUpdate(ctx context.Context, tx pgx.Tx, accountIDs ...uuid.UUID) error
	// ApplyBalanceDelta atomically adds delta (negative for debits) to the
	// account balance, rejecting any result below zero. It is the sole
	// sanctioned balance writer.
	ApplyBalanceDelta(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error)
}

type AccountRepositoryImpl struct {
}

func NewAccountRepository() AccountRepository {
	return &AccountRepositoryImpl{}
}

// balance is cast to text so it round-trips through shopspring/decimal without
// precision loss.
const accountColumns = `id, user_id, account_number, account_type, balance::text, pin_hash, status, created_at, updated_at`

func (a AccountRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, account models.Account) error {
	_, err := tx.Exec(ctx, `INSERT INTO accounts (id, user_id, account_number, account_type, balance, pin_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
		account.ID, account.UserID, account.AccountNumber, account.AccountType,
		account.Balance.StringFixed(2), account.PinHash, account.Status, account.CreatedAt, account.UpdatedAt)
	return err
}

func (a AccountRepositoryImpl) FindById(ctx context.Context, q database.Querier, accountID uuid.UUID) (models.Account, error) {
	if accountID == uuid.Nil {
		return models.Account{}, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid account id", nil)
	}
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (a AccountRepositoryImpl) FindByNumber(ctx context.Context, q database.Querier, accountNumber string) (models.Account, error) {
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	return scanAccount(row)
}

func (a AccountRepositoryImpl) NumberExists(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber).Scan(&exists)
	return exists, err
}

func (a AccountRepositoryImpl) LockForUpdate(ctx context.Context, tx pgx.Tx, accountIDs ...uuid.UUID) error {
	if len(accountIDs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(accountIDs))
	copy(ids, accountIDs)
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	rows, err := tx.Query(ctx, `SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (a AccountRepositoryImpl) ApplyBalanceDelta(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error) {
	row := tx.QueryRow(ctx, `UPDATE accounts
		SET balance = balance + $2::numeric, updated_at = now()
		WHERE id = $1 AND balance + $2::numeric >= 0
		RETURNING `+accountColumns, accountID, delta.StringFixed(2))
	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, err
	}
	// No row matched: either the account is gone or the delta would push the
	// balance below zero. Disambiguate with a plain read.
	if _, ferr := a.FindById(ctx, tx, accountID); ferr != nil {
		return models.Account{}, ferr
	}
	return models.Account{}, pkg.NewAppError(pkg.ErrInsufficientFundsCode, "insufficient balance", pkg.ErrInsufficientBalance)
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var (
		account models.Account
		balance string
	)
	if err := row.Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.AccountType,
		&balance, &account.PinHash, &account.Status, &account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return models.Account{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return models.Account{}, err
	}
	account.Balance = parsed
	return account, nil
}
