package services_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/corebank/ledger-core/services/ledger/internal/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type engineFixture struct {
	db       *fakeDB
	accounts *fakeAccountRepo
	txns     *fakeTransactionRepo
	cards    *fakeCardRepo
	engine   services.LedgerService
}

func newEngineFixture() *engineFixture {
	db := newFakeDB()
	accounts := &fakeAccountRepo{db: db}
	txns := &fakeTransactionRepo{db: db}
	cards := &fakeCardRepo{db: db}
	return &engineFixture{
		db:       db,
		accounts: accounts,
		txns:     txns,
		cards:    cards,
		engine:   services.NewLedgerService(zap.NewNop(), testConfig(), db, accounts, txns, cards),
	}
}

func (f *engineFixture) seedAccount(t *testing.T, balance string, status pkg.AccountStatus) models.Account {
	t.Helper()
	now := time.Now()
	account := models.Account{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		AccountNumber: nextSeedNumber(),
		AccountType:   pkg.AccountTypeSavings,
		Balance:       decimal.RequireFromString(balance),
		PinHash:       "$2a$10$fake",
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.db.store.accounts[account.ID] = account
	return account
}

var seededNumbers int64

// nextSeedNumber hands out distinct 16-digit numbers for seeded accounts.
func nextSeedNumber() string {
	seededNumbers++
	n := seededNumbers
	digits := make([]byte, 16)
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

func TestOpenAccount(t *testing.T) {
	f := newEngineFixture()
	userID := uuid.New()

	account, card, err := f.engine.OpenAccount(context.Background(), services.OpenAccountRequest{
		UserID:      userID,
		AccountType: pkg.AccountTypeChecking,
		Pin:         "4321",
	})
	require.NoError(t, err)

	assert.Equal(t, userID, account.UserID)
	assert.Len(t, account.AccountNumber, 16)
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, pkg.AccountStatusActive, account.Status)
	assert.NotEqual(t, "4321", account.PinHash, "pin must never be stored in clear")

	assert.Equal(t, account.ID, card.AccountID)
	assert.Len(t, card.CardNumber, 16)
	assert.Len(t, card.CVV, 3)
	assert.Equal(t, pkg.CardStatusActive, card.Status)
	expectedExpiry := card.CreatedAt.AddDate(3, 0, 0)
	assert.True(t, card.ExpiryDate.Equal(expectedExpiry))

	// Opening writes no ledger records.
	assert.Empty(t, f.db.store.txns)
}

func TestOpenAccountRejectsBadPin(t *testing.T) {
	f := newEngineFixture()

	for _, pin := range []string{"", "12", "12345", "12a4"} {
		_, _, err := f.engine.OpenAccount(context.Background(), services.OpenAccountRequest{
			UserID:      uuid.New(),
			AccountType: pkg.AccountTypeSavings,
			Pin:         pin,
		})
		assert.True(t, pkg.IsCode(err, pkg.ErrInvalidInputCode), "pin %q must be rejected", pin)
	}
	assert.Empty(t, f.db.store.accounts)
}

func TestDeposit(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	res, err := f.engine.Deposit(context.Background(), account.ID, decimal.RequireFromString("50.25"), "")
	require.NoError(t, err)

	assert.Equal(t, "150.25", res.Account.Balance.StringFixed(2))
	txn := res.Transaction
	assert.Equal(t, pkg.TransactionTypeDeposit, txn.Type)
	assert.Equal(t, "50.25", txn.Amount.StringFixed(2))
	assert.Equal(t, "100.00", txn.BalanceBefore.StringFixed(2))
	assert.Equal(t, "150.25", txn.BalanceAfter.StringFixed(2))
	assert.Equal(t, "Deposit", txn.Description)
	assert.Equal(t, pkg.TransactionStatusSuccess, txn.Status)
	assert.True(t, strings.HasPrefix(txn.TransactionID, "TXN"))
	assert.Nil(t, txn.RecipientAccountID)
	assert.Equal(t, "50.25", txn.SignedAmount().StringFixed(2))
}

func TestDepositRejectsInvalidAmount(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	for _, amount := range []string{"0.00", "-1.00", "0.001", "10.555"} {
		_, err := f.engine.Deposit(context.Background(), account.ID, decimal.RequireFromString(amount), "")
		assert.True(t, pkg.IsCode(err, pkg.ErrInvalidInputCode), "amount %s must be rejected", amount)
	}
	assert.Equal(t, "100.00", f.db.store.accounts[account.ID].Balance.StringFixed(2))
	assert.Empty(t, f.db.store.txns)
}

func TestDepositRejectsInactiveAccount(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusBlocked)

	_, err := f.engine.Deposit(context.Background(), account.ID, decimal.RequireFromString("10.00"), "")
	assert.True(t, pkg.IsCode(err, pkg.ErrAccountNotActiveCode))
	assert.Empty(t, f.db.store.txns)
}

func TestDepositUnknownAccount(t *testing.T) {
	f := newEngineFixture()

	_, err := f.engine.Deposit(context.Background(), uuid.New(), decimal.RequireFromString("10.00"), "")
	assert.True(t, pkg.IsCode(err, pkg.ErrRecordNotFoundCode))
}

func TestWithdraw(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	res, err := f.engine.Withdraw(context.Background(), account.ID, decimal.RequireFromString("40.00"), "groceries")
	require.NoError(t, err)

	assert.Equal(t, "60.00", res.Account.Balance.StringFixed(2))
	txn := res.Transaction
	assert.Equal(t, pkg.TransactionTypeWithdrawal, txn.Type)
	assert.Equal(t, "100.00", txn.BalanceBefore.StringFixed(2))
	assert.Equal(t, "60.00", txn.BalanceAfter.StringFixed(2))
	assert.Equal(t, "groceries", txn.Description)
	assert.Equal(t, "-40.00", txn.SignedAmount().StringFixed(2))
}

func TestWithdrawToExactlyZero(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "25.00", pkg.AccountStatusActive)

	res, err := f.engine.Withdraw(context.Background(), account.ID, decimal.RequireFromString("25.00"), "")
	require.NoError(t, err)
	assert.True(t, res.Account.Balance.IsZero())
}

func TestWithdrawInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "30.00", pkg.AccountStatusActive)

	_, err := f.engine.Withdraw(context.Background(), account.ID, decimal.RequireFromString("30.01"), "")
	assert.True(t, pkg.IsCode(err, pkg.ErrInsufficientFundsCode))

	// The rejection must leave neither a record nor a balance change.
	assert.Equal(t, "30.00", f.db.store.accounts[account.ID].Balance.StringFixed(2))
	assert.Empty(t, f.db.store.txns)
}

func TestTransfer(t *testing.T) {
	f := newEngineFixture()
	sender := f.seedAccount(t, "500.00", pkg.AccountStatusActive)
	recipient := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	res, err := f.engine.Transfer(context.Background(), sender.ID, recipient.AccountNumber,
		decimal.RequireFromString("120.50"), "rent")
	require.NoError(t, err)

	assert.Equal(t, "379.50", res.Sender.Balance.StringFixed(2))
	assert.Equal(t, "220.50", res.Recipient.Balance.StringFixed(2))

	debit := res.DebitLeg
	assert.Equal(t, sender.ID, debit.AccountID)
	require.NotNil(t, debit.RecipientAccountID)
	assert.Equal(t, recipient.ID, *debit.RecipientAccountID)
	assert.Equal(t, "Transfer to "+recipient.AccountNumber+": rent", debit.Description)
	assert.Equal(t, "500.00", debit.BalanceBefore.StringFixed(2))
	assert.Equal(t, "379.50", debit.BalanceAfter.StringFixed(2))

	credit := res.CreditLeg
	assert.Equal(t, recipient.ID, credit.AccountID)
	assert.Nil(t, credit.RecipientAccountID)
	assert.Equal(t, "Transfer from "+sender.AccountNumber+": rent", credit.Description)
	assert.Equal(t, "100.00", credit.BalanceBefore.StringFixed(2))
	assert.Equal(t, "220.50", credit.BalanceAfter.StringFixed(2))

	// Money is conserved across the pair.
	assert.True(t, debit.SignedAmount().Add(credit.SignedAmount()).IsZero())
	assert.Len(t, f.db.store.txns, 2)
}

func TestTransferRejections(t *testing.T) {
	f := newEngineFixture()
	sender := f.seedAccount(t, "100.00", pkg.AccountStatusActive)
	blocked := f.seedAccount(t, "100.00", pkg.AccountStatusBlocked)

	tests := []struct {
		name      string
		recipient string
		amount    string
		wantCode  pkg.ErrorCode
	}{
		{"unknown recipient", "0000000000000000", "10.00", pkg.ErrInvalidRecipientCode},
		{"inactive recipient", blocked.AccountNumber, "10.00", pkg.ErrInvalidRecipientCode},
		{"same account", sender.AccountNumber, "10.00", pkg.ErrSameAccountCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Transfer(context.Background(), sender.ID, tt.recipient,
				decimal.RequireFromString(tt.amount), "")
			assert.True(t, pkg.IsCode(err, tt.wantCode))
		})
	}

	recipient := f.seedAccount(t, "0.00", pkg.AccountStatusActive)
	_, err := f.engine.Transfer(context.Background(), sender.ID, recipient.AccountNumber,
		decimal.RequireFromString("100.01"), "")
	assert.True(t, pkg.IsCode(err, pkg.ErrInsufficientFundsCode))

	assert.Equal(t, "100.00", f.db.store.accounts[sender.ID].Balance.StringFixed(2))
	assert.Empty(t, f.db.store.txns)
}

func TestTransferCreditFaultRollsBackBothLegs(t *testing.T) {
	f := newEngineFixture()
	sender := f.seedAccount(t, "500.00", pkg.AccountStatusActive)
	recipient := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	// Fail the credit-leg insert; the whole unit of work must roll back.
	f.txns.appendFault = func(txn models.Transaction) error {
		if strings.HasPrefix(txn.Description, "Transfer from ") {
			return pkg.NewAppError(pkg.ErrServerCode, "storage failure", nil)
		}
		return nil
	}

	_, err := f.engine.Transfer(context.Background(), sender.ID, recipient.AccountNumber,
		decimal.RequireFromString("50.00"), "")
	require.Error(t, err)

	assert.Equal(t, "500.00", f.db.store.accounts[sender.ID].Balance.StringFixed(2))
	assert.Equal(t, "100.00", f.db.store.accounts[recipient.ID].Balance.StringFixed(2))
	assert.Empty(t, f.db.store.txns, "a half-committed transfer must not leave a debit leg behind")
}

func TestBalanceInquiry(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "75.50", pkg.AccountStatusActive)

	res, err := f.engine.BalanceInquiry(context.Background(), account.ID)
	require.NoError(t, err)

	assert.Equal(t, "75.50", res.Account.Balance.StringFixed(2))
	txn := res.Transaction
	assert.Equal(t, pkg.TransactionTypeBalanceInquiry, txn.Type)
	assert.True(t, txn.Amount.IsZero())
	assert.Equal(t, txn.BalanceBefore.StringFixed(2), txn.BalanceAfter.StringFixed(2))
	assert.True(t, txn.SignedAmount().IsZero())
	assert.Len(t, f.db.store.txns, 1, "each inquiry appends an audit record")
}

func TestBalanceInquiryWorksOnInactiveAccount(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "10.00", pkg.AccountStatusInactive)

	res, err := f.engine.BalanceInquiry(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", res.Account.Balance.StringFixed(2))
}

func TestListTransactions(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "1000.00", pkg.AccountStatusActive)
	other := f.seedAccount(t, "1000.00", pkg.AccountStatusActive)

	ctx := context.Background()
	_, err := f.engine.Deposit(ctx, account.ID, decimal.RequireFromString("10.00"), "first")
	require.NoError(t, err)
	_, err = f.engine.Withdraw(ctx, account.ID, decimal.RequireFromString("5.00"), "second")
	require.NoError(t, err)
	_, err = f.engine.Deposit(ctx, other.ID, decimal.RequireFromString("99.00"), "elsewhere")
	require.NoError(t, err)

	txns, err := f.engine.ListTransactions(ctx, account.ID, nil)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.Equal(t, account.ID, txn.AccountID)
	}
	assert.False(t, txns[0].CreatedAt.Before(txns[1].CreatedAt), "history must be newest first")

	deposits := pkg.TransactionTypeDeposit
	txns, err = f.engine.ListTransactions(ctx, account.ID, &deposits)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "first", txns[0].Description)

	bogus := pkg.TransactionType("GIFT")
	_, err = f.engine.ListTransactions(ctx, account.ID, &bogus)
	assert.True(t, pkg.IsCode(err, pkg.ErrInvalidInputCode))
}

func TestGetTransactionOwnerConstraint(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	ctx := context.Background()
	res, err := f.engine.Deposit(ctx, account.ID, decimal.RequireFromString("10.00"), "")
	require.NoError(t, err)

	found, err := f.engine.GetTransaction(ctx, account.UserID, res.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.TransactionID, found.TransactionID)

	// Another user cannot read the receipt, and cannot tell it exists.
	_, err = f.engine.GetTransaction(ctx, uuid.New(), res.Transaction.TransactionID)
	assert.True(t, pkg.IsCode(err, pkg.ErrRecordNotFoundCode))
}

func TestDuplicateTransactionIDRetriesUnit(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)

	// First append collides, the retried unit succeeds with fresh ids.
	failures := 0
	f.txns.appendFault = func(models.Transaction) error {
		if failures == 0 {
			failures++
			return pkg.NewAppError(pkg.ErrSQLDuplicateCode, "duplicate value violates unique constraint", pkg.SqlError)
		}
		return nil
	}

	res, err := f.engine.Deposit(context.Background(), account.ID, decimal.RequireFromString("10.00"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	assert.Equal(t, "110.00", res.Account.Balance.StringFixed(2))
	assert.Len(t, f.db.store.txns, 1, "the rolled-back attempt must not leave a record")
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)
	amount := decimal.RequireFromString("10.00")

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Withdraw(context.Background(), account.ID, amount, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case pkg.IsCode(err, pkg.ErrInsufficientFundsCode):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, succeeded, "exactly ten withdrawals fit into the balance")
	assert.Equal(t, workers-10, rejected)
	assert.True(t, f.db.store.accounts[account.ID].Balance.IsZero())
	assert.Len(t, f.db.store.txns, 10)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newEngineFixture()
	account := f.seedAccount(t, "100.00", pkg.AccountStatusActive)
	amount := decimal.RequireFromString("33.33")

	ctx := context.Background()
	_, err := f.engine.Deposit(ctx, account.ID, amount, "")
	require.NoError(t, err)
	_, err = f.engine.Withdraw(ctx, account.ID, amount, "")
	require.NoError(t, err)

	assert.Equal(t, "100.00", f.db.store.accounts[account.ID].Balance.StringFixed(2))

	// Every record's balance movement matches its signed amount.
	for _, txn := range f.db.store.txns {
		assert.True(t, txn.BalanceAfter.Sub(txn.BalanceBefore).Equal(txn.SignedAmount()))
	}
}
