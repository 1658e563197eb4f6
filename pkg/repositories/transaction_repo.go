package repositories

import (
	"context"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepository is the append-only ledger. There are deliberately no
// update or delete methods: a record is immutable once appended.
type TransactionRepository interface {
	// Append inserts a ledger record. A unique violation on transaction_id
	// aborts the surrounding unit of work; the engine retries with a fresh id.
	Append(ctx context.Context, tx pgx.Tx, txn models.Transaction) error
	// ListByAccount returns an account's records newest first, optionally
	// filtered by type.
	ListByAccount(ctx context.Context, q database.Querier, accountID uuid.UUID, typeFilter *pkg.TransactionType) ([]models.Transaction, error)
	// FindByTransactionID looks up a record by display id, constrained to the
	// given owning user (the caller-supplied authorization boundary).
	FindByTransactionID(ctx context.Context, q database.Querier, transactionID string, ownerUserID uuid.UUID) (models.Transaction, error)
}

type TransactionRepositoryImpl struct {
}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

const transactionColumns = `t.id, t.transaction_id, t.account_id, t.recipient_account_id, t.transaction_type,
	t.amount::text, t.balance_before::text, t.balance_after::text, t.description, t.status, t.created_at`

func (t TransactionRepositoryImpl) Append(ctx context.Context, tx pgx.Tx, txn models.Transaction) error {
	_, err := tx.Exec(ctx, `
						INSERT INTO transactions (id, transaction_id, account_id, recipient_account_id, transaction_type,
							amount, balance_before, balance_after, description, status, created_at)
						VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11)`,
		txn.ID,
		txn.TransactionID,
		txn.AccountID,
		txn.RecipientAccountID,
		txn.Type,
		txn.Amount.StringFixed(2),
		txn.BalanceBefore.StringFixed(2),
		txn.BalanceAfter.StringFixed(2),
		txn.Description,
		txn.Status,
		txn.CreatedAt,
	)
	return err
}

func (t TransactionRepositoryImpl) ListByAccount(ctx context.Context, q database.Querier, accountID uuid.UUID, typeFilter *pkg.TransactionType) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.account_id = $1`
	args := []any{accountID}
	if typeFilter != nil {
		query += ` AND t.transaction_type = $2`
		args = append(args, *typeFilter)
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (t TransactionRepositoryImpl) FindByTransactionID(ctx context.Context, q database.Querier, transactionID string, ownerUserID uuid.UUID) (models.Transaction, error) {
	row := q.QueryRow(ctx, `
						SELECT `+transactionColumns+`
						FROM transactions t
						JOIN accounts a ON a.id = t.account_id
						WHERE t.transaction_id = $1 AND a.user_id = $2`,
		transactionID, ownerUserID)
	return scanTransaction(row)
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		txn                   models.Transaction
		amount, before, after string
	)
	if err := row.Scan(
		&txn.ID, &txn.TransactionID, &txn.AccountID, &txn.RecipientAccountID, &txn.Type,
		&amount, &before, &after, &txn.Description, &txn.Status, &txn.CreatedAt,
	); err != nil {
		return models.Transaction{}, err
	}
	var err error
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Transaction{}, err
	}
	if txn.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return models.Transaction{}, err
	}
	if txn.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}
