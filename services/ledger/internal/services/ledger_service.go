package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/idgen"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/corebank/ledger-core/pkg/money"
	"github.com/corebank/ledger-core/pkg/repositories"
	"github.com/corebank/ledger-core/pkg/utils"
	"github.com/corebank/ledger-core/services/ledger/configs"
	"github.com/corebank/ledger-core/services/ledger/internal/observability"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Database is the unit-of-work surface the engine needs; *database.DB
// satisfies it.
type Database interface {
	database.Querier
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// OpenAccountRequest carries the validated inputs for opening an account.
type OpenAccountRequest struct {
	UserID      uuid.UUID       `validate:"required"`
	AccountType pkg.AccountType `validate:"required,oneof=SAVINGS CHECKING CURRENT"`
	Pin         string          `validate:"required,len=4,numeric"`
}

// OperationResult is the success payload of a single-account operation.
type OperationResult struct {
	Account     models.Account
	Transaction models.Transaction
}

// TransferResult carries both sides of a committed transfer.
type TransferResult struct {
	Sender    models.Account
	Recipient models.Account
	DebitLeg  models.Transaction
	CreditLeg models.Transaction
}

// LedgerService is the operations engine: every balance mutation in the
// system goes through one of these methods, each wrapped in a single atomic
// unit of work.
type LedgerService interface {
	// OpenAccount creates an account with a zero balance and issues its card.
	OpenAccount(ctx context.Context, req OpenAccountRequest) (models.Account, models.Card, error)
	// ResolveAccount looks an account up by its 16-digit number.
	ResolveAccount(ctx context.Context, accountNumber string) (models.Account, error)
	// Deposit credits amount to the account and appends a DEPOSIT record.
	Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (OperationResult, error)
	// Withdraw debits amount from the account and appends a WITHDRAWAL record.
	// Rejected attempts leave no trace in the ledger.
	Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (OperationResult, error)
	// Transfer moves amount to the account identified by number. Debit, credit
	// and both ledger records commit or roll back together.
	Transfer(ctx context.Context, senderAccountID uuid.UUID, recipientAccountNumber string, amount decimal.Decimal, description string) (TransferResult, error)
	// BalanceInquiry reads the balance and appends a zero-amount audit record.
	BalanceInquiry(ctx context.Context, accountID uuid.UUID) (OperationResult, error)
	// ListTransactions returns the account's records newest first.
	ListTransactions(ctx context.Context, accountID uuid.UUID, typeFilter *pkg.TransactionType) ([]models.Transaction, error)
	// GetTransaction fetches one record, constrained to the owning user.
	GetTransaction(ctx context.Context, ownerUserID uuid.UUID, transactionID string) (models.Transaction, error)
}

type LedgerServiceImpl struct {
	logger      *zap.Logger
	cnf         *configs.Config
	db          Database
	accountRepo repositories.AccountRepository
	txnRepo     repositories.TransactionRepository
	cardRepo    repositories.CardRepository
	validate    *validator.Validate
	now         func() time.Time
}

func NewLedgerService(logger *zap.Logger, cnf *configs.Config, db Database,
	accountRepo repositories.AccountRepository, txnRepo repositories.TransactionRepository,
	cardRepo repositories.CardRepository) LedgerService {
	return &LedgerServiceImpl{
		logger:      logger,
		cnf:         cnf,
		db:          db,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		cardRepo:    cardRepo,
		validate:    validator.New(),
		now:         time.Now,
	}
}

func (s *LedgerServiceImpl) OpenAccount(ctx context.Context, req OpenAccountRequest) (account models.Account, card models.Card, err error) {
	const op = "open_account"
	start := s.now()
	defer func() { s.observe(op, start, err) }()

	if vErr := s.validate.Struct(&req); vErr != nil {
		err = pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid account opening request", vErr)
		return
	}
	hash, hErr := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if hErr != nil {
		err = pkg.NewAppError(pkg.ErrServerCode, "failed to hash pin", hErr)
		return
	}

	err = s.runUnit(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		number, uErr := s.uniqueNumber(ctx, tx, s.accountRepo.NumberExists, idgen.AccountNumber)
		if uErr != nil {
			return uErr
		}
		now := s.now()
		account = models.Account{
			ID:            uuid.New(),
			UserID:        req.UserID,
			AccountNumber: number,
			AccountType:   req.AccountType,
			Balance:       decimal.Zero,
			PinHash:       string(hash),
			Status:        pkg.AccountStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if cErr := s.accountRepo.Create(ctx, tx, account); cErr != nil {
			return cErr
		}

		cardNumber, uErr := s.uniqueNumber(ctx, tx, s.cardRepo.NumberExists, idgen.CardNumber)
		if uErr != nil {
			return uErr
		}
		card = models.Card{
			ID:         uuid.New(),
			AccountID:  account.ID,
			CardNumber: cardNumber,
			CardType:   pkg.CardTypeDebit,
			CVV:        idgen.CVV(),
			ExpiryDate: now.AddDate(s.cnf.CardValidityYears, 0, 0),
			Status:     pkg.CardStatusActive,
			CreatedAt:  now,
		}
		return s.cardRepo.Create(ctx, tx, card)
	})
	if err != nil {
		return models.Account{}, models.Card{}, err
	}
	s.logger.Info("account opened",
		zap.String("account_id", account.ID.String()),
		zap.String("account_number", account.AccountNumber),
		zap.String("account_type", string(account.AccountType)))
	return account, card, nil
}

func (s *LedgerServiceImpl) ResolveAccount(ctx context.Context, accountNumber string) (models.Account, error) {
	account, err := s.accountRepo.FindByNumber(ctx, s.db, accountNumber)
	if err != nil {
		return models.Account{}, pkg.HandleSQLError(s.logger, "resolve_account", err)
	}
	return account, nil
}

func (s *LedgerServiceImpl) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (res OperationResult, err error) {
	const op = "deposit"
	start := s.now()
	defer func() { s.observe(op, start, err) }()

	if err = money.ValidateAmount(amount, s.cnf.MaxAmount); err != nil {
		return
	}
	if utils.IsEmpty(description) {
		description = "Deposit"
	}

	err = s.runUnit(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		account, aErr := s.lockAccount(ctx, tx, accountID)
		if aErr != nil {
			return aErr
		}
		if !account.IsActive() {
			return pkg.NewAppError(pkg.ErrAccountNotActiveCode, "account is not active", nil)
		}
		updated, dErr := s.accountRepo.ApplyBalanceDelta(ctx, tx, accountID, amount)
		if dErr != nil {
			return dErr
		}
		txn := s.newTransaction(account.ID, pkg.TransactionTypeDeposit, amount, account.Balance, updated.Balance, description, nil)
		if tErr := s.txnRepo.Append(ctx, tx, txn); tErr != nil {
			return tErr
		}
		res = OperationResult{Account: updated, Transaction: txn}
		return nil
	})
	if err != nil {
		return OperationResult{}, err
	}
	s.logger.Info("deposit committed",
		zap.String("transaction_id", res.Transaction.TransactionID),
		zap.String("account_id", accountID.String()),
		zap.String("amount", money.Format(amount)))
	return res, nil
}

func (s *LedgerServiceImpl) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (res OperationResult, err error) {
	const op = "withdraw"
	start := s.now()
	defer func() { s.observe(op, start, err) }()

	if err = money.ValidateAmount(amount, s.cnf.MaxAmount); err != nil {
		return
	}
	if utils.IsEmpty(description) {
		description = "Withdrawal"
	}

	err = s.runUnit(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		account, aErr := s.lockAccount(ctx, tx, accountID)
		if aErr != nil {
			return aErr
		}
		if !account.IsActive() {
			return pkg.NewAppError(pkg.ErrAccountNotActiveCode, "account is not active", nil)
		}
		// Rejected withdrawals write nothing: no record, no mutation.
		if amount.Cmp(account.Balance) > 0 {
			return pkg.NewAppError(pkg.ErrInsufficientFundsCode, "insufficient balance", pkg.ErrInsufficientBalance)
		}
		updated, dErr := s.accountRepo.ApplyBalanceDelta(ctx, tx, accountID, amount.Neg())
		if dErr != nil {
			return dErr
		}
		txn := s.newTransaction(account.ID, pkg.TransactionTypeWithdrawal, amount, account.Balance, updated.Balance, description, nil)
		if tErr := s.txnRepo.Append(ctx, tx, txn); tErr != nil {
			return tErr
		}
		res = OperationResult{Account: updated, Transaction: txn}
		return nil
	})
	if err != nil {
		return OperationResult{}, err
	}
	s.logger.Info("withdrawal committed",
		zap.String("transaction_id", res.Transaction.TransactionID),
		zap.String("account_id", accountID.String()),
		zap.String("amount", money.Format(amount)))
	return res, nil
}

func (s *LedgerServiceImpl) Transfer(ctx context.Context, senderAccountID uuid.UUID, recipientAccountNumber string, amount decimal.Decimal, description string) (res TransferResult, err error) {
	const op = "transfer"
	start := s.now()
	defer func() { s.observe(op, start, err) }()

	if err = money.ValidateAmount(amount, s.cnf.MaxAmount); err != nil {
		return
	}

	err = s.runUnit(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		recipient, rErr := s.accountRepo.FindByNumber(ctx, tx, recipientAccountNumber)
		if rErr != nil {
			if errors.Is(rErr, pgx.ErrNoRows) || pkg.IsCode(rErr, pkg.ErrRecordNotFoundCode) {
				return pkg.NewAppError(pkg.ErrInvalidRecipientCode, "invalid or inactive recipient account", rErr)
			}
			return rErr
		}
		if !recipient.IsActive() {
			return pkg.NewAppError(pkg.ErrInvalidRecipientCode, "invalid or inactive recipient account", nil)
		}
		if recipient.ID == senderAccountID {
			return pkg.NewAppError(pkg.ErrSameAccountCode, "cannot transfer to the same account", nil)
		}

		// Lock both rows up front, in UUID order, then re-read fresh balances
		// under the locks.
		if lErr := s.accountRepo.LockForUpdate(ctx, tx, senderAccountID, recipient.ID); lErr != nil {
			return lErr
		}
		sender, sErr := s.accountRepo.FindById(ctx, tx, senderAccountID)
		if sErr != nil {
			return sErr
		}
		if !sender.IsActive() {
			return pkg.NewAppError(pkg.ErrAccountNotActiveCode, "account is not active", nil)
		}
		recipient, rErr = s.accountRepo.FindById(ctx, tx, recipient.ID)
		if rErr != nil {
			return rErr
		}
		if amount.Cmp(sender.Balance) > 0 {
			return pkg.NewAppError(pkg.ErrInsufficientFundsCode, "insufficient balance", pkg.ErrInsufficientBalance)
		}

		// Debit leg.
		debited, dErr := s.accountRepo.ApplyBalanceDelta(ctx, tx, sender.ID, amount.Neg())
		if dErr != nil {
			return dErr
		}
		debitLeg := s.newTransaction(sender.ID, pkg.TransactionTypeTransfer, amount, sender.Balance, debited.Balance,
			fmt.Sprintf("Transfer to %s: %s", recipient.AccountNumber, description), &recipient.ID)
		if tErr := s.txnRepo.Append(ctx, tx, debitLeg); tErr != nil {
			return tErr
		}

		// Credit leg.
		credited, cErr := s.accountRepo.ApplyBalanceDelta(ctx, tx, recipient.ID, amount)
		if cErr != nil {
			return cErr
		}
		creditLeg := s.newTransaction(recipient.ID, pkg.TransactionTypeTransfer, amount, recipient.Balance, credited.Balance,
			fmt.Sprintf("Transfer from %s: %s", sender.AccountNumber, description), nil)
		if tErr := s.txnRepo.Append(ctx, tx, creditLeg); tErr != nil {
			return tErr
		}

		res = TransferResult{Sender: debited, Recipient: credited, DebitLeg: debitLeg, CreditLeg: creditLeg}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.logger.Info("transfer committed",
		zap.String("transaction_id", res.DebitLeg.TransactionID),
		zap.String("sender_account_id", senderAccountID.String()),
		zap.String("recipient_account", recipientAccountNumber),
		zap.String("amount", money.Format(amount)))
	return res, nil
}

func (s *LedgerServiceImpl) BalanceInquiry(ctx context.Context, accountID uuid.UUID) (res OperationResult, err error) {
	const op = "balance_inquiry"
	start := s.now()
	defer func() { s.observe(op, start, err) }()

	err = s.runUnit(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		// Row lock keeps the before==after snapshot honest against concurrent
		// mutations.
		account, aErr := s.lockAccount(ctx, tx, accountID)
		if aErr != nil {
			return aErr
		}
		txn := s.newTransaction(account.ID, pkg.TransactionTypeBalanceInquiry, decimal.Zero, account.Balance, account.Balance, "Balance Inquiry", nil)
		if tErr := s.txnRepo.Append(ctx, tx, txn); tErr != nil {
			return tErr
		}
		res = OperationResult{Account: account, Transaction: txn}
		return nil
	})
	if err != nil {
		return OperationResult{}, err
	}
	return res, nil
}

func (s *LedgerServiceImpl) ListTransactions(ctx context.Context, accountID uuid.UUID, typeFilter *pkg.TransactionType) ([]models.Transaction, error) {
	if typeFilter != nil && !pkg.ValidTransactionType(*typeFilter) {
		return nil, pkg.NewAppError(pkg.ErrInvalidInputCode, "unknown transaction type filter", nil)
	}
	txns, err := s.txnRepo.ListByAccount(ctx, s.db, accountID, typeFilter)
	if err != nil {
		return nil, pkg.HandleSQLError(s.logger, "list_transactions", err)
	}
	return txns, nil
}

func (s *LedgerServiceImpl) GetTransaction(ctx context.Context, ownerUserID uuid.UUID, transactionID string) (models.Transaction, error) {
	txn, err := s.txnRepo.FindByTransactionID(ctx, s.db, transactionID, ownerUserID)
	if err != nil {
		return models.Transaction{}, pkg.HandleSQLError(s.logger, "get_transaction", err)
	}
	return txn, nil
}

// runUnit executes fn inside one unit of work. A duplicate-key failure (TXN id
// minted twice within the same second) aborts the Postgres transaction, so the
// whole unit is retried with regenerated identifiers; everything else is
// permanent.
func (s *LedgerServiceImpl) runUnit(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	attempt := func() error {
		if err := s.db.WithTransaction(ctx, fn); err != nil {
			mapped := pkg.HandleSQLError(s.logger, op, err)
			if pkg.IsCode(mapped, pkg.ErrSQLDuplicateCode) {
				s.logger.Warn("identifier collision, retrying unit of work", zap.String("op", op))
				return mapped
			}
			return backoff.Permanent(mapped)
		}
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cnf.UnitRetryCount)
	return backoff.Retry(attempt, backoff.WithContext(b, ctx))
}

func (s *LedgerServiceImpl) lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (models.Account, error) {
	if err := s.accountRepo.LockForUpdate(ctx, tx, accountID); err != nil {
		return models.Account{}, err
	}
	return s.accountRepo.FindById(ctx, tx, accountID)
}

// uniqueNumber draws candidates from gen until one is unassigned, capped at
// the configured attempt count.
func (s *LedgerServiceImpl) uniqueNumber(ctx context.Context, tx pgx.Tx,
	exists func(context.Context, pgx.Tx, string) (bool, error), gen func() string) (string, error) {
	for i := 0; i < s.cnf.IdMaxAttempts; i++ {
		candidate := gen()
		taken, err := exists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", pkg.NewAppError(pkg.ErrIdCollisionCode, "could not allocate a unique number", nil)
}

func (s *LedgerServiceImpl) newTransaction(accountID uuid.UUID, txType pkg.TransactionType,
	amount, before, after decimal.Decimal, description string, recipientID *uuid.UUID) models.Transaction {
	now := s.now()
	return models.Transaction{
		ID:                 uuid.New(),
		TransactionID:      idgen.TransactionID(now),
		AccountID:          accountID,
		RecipientAccountID: recipientID,
		Type:               txType,
		Amount:             amount,
		BalanceBefore:      before,
		BalanceAfter:       after,
		Description:        description,
		Status:             pkg.TransactionStatusSuccess,
		CreatedAt:          now,
	}
}

func (s *LedgerServiceImpl) observe(op string, start time.Time, err error) {
	outcome := observability.OutcomeSuccess
	if err != nil {
		if pkg.IsRejection(err) {
			outcome = observability.OutcomeRejected
			code, _ := pkg.Describe(err)
			observability.RejectionsTotal.WithLabelValues(op, code.Code).Inc()
		} else {
			outcome = observability.OutcomeFailed
		}
	}
	observability.ObserveOperation(op, outcome, s.now().Sub(start))
}
