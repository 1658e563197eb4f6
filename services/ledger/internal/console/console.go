// Package console is the operator surface: a line-oriented session loop that
// drives the ledger engine. All policy lives in the engine; the console only
// reads input, asks for a PIN when the guard demands one, and renders results.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/corebank/ledger-core/pkg/money"
	"github.com/corebank/ledger-core/services/ledger/internal/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Console struct {
	ledger services.LedgerService
	pins   services.PinService
	logger *zap.Logger
	in     *bufio.Reader
	out    io.Writer

	active *models.Account
	user   uuid.UUID
}

func New(ledger services.LedgerService, pins services.PinService, logger *zap.Logger, in *bufio.Reader, out io.Writer) *Console {
	return &Console{ledger: ledger, pins: pins, logger: logger, in: in, out: out, user: uuid.New()}
}

// Run drives the session loop until the operator quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintln(c.out, "\n=== Ledger Console ===")
		if c.active != nil {
			fmt.Fprintf(c.out, "Active account: %s (%s)\n", c.active.AccountNumber, c.active.AccountType)
		}
		fmt.Fprintln(c.out, "1) Open account")
		fmt.Fprintln(c.out, "2) Select account")
		fmt.Fprintln(c.out, "3) Deposit")
		fmt.Fprintln(c.out, "4) Withdraw")
		fmt.Fprintln(c.out, "5) Transfer")
		fmt.Fprintln(c.out, "6) Balance inquiry")
		fmt.Fprintln(c.out, "7) Transaction history")
		fmt.Fprintln(c.out, "8) Receipt lookup")
		fmt.Fprintln(c.out, "0) Quit")
		fmt.Fprint(c.out, "> ")
		switch strings.TrimSpace(c.readLine()) {
		case "1":
			c.openAccount(ctx)
		case "2":
			c.selectAccount(ctx)
		case "3":
			c.deposit(ctx)
		case "4":
			c.withdraw(ctx)
		case "5":
			c.transfer(ctx)
		case "6":
			c.balanceInquiry(ctx)
		case "7":
			c.history(ctx)
		case "8":
			c.receipt(ctx)
		case "0":
			return
		default:
			fmt.Fprintln(c.out, "Unknown choice.")
		}
	}
}

func (c *Console) openAccount(ctx context.Context) {
	fmt.Fprint(c.out, "Account type (SAVINGS/CHECKING/CURRENT): ")
	accType := pkg.AccountType(strings.ToUpper(strings.TrimSpace(c.readLine())))
	fmt.Fprint(c.out, "Choose a 4-digit PIN: ")
	pin := strings.TrimSpace(c.readLine())

	account, card, err := c.ledger.OpenAccount(ctx, services.OpenAccountRequest{
		UserID:      c.user,
		AccountType: accType,
		Pin:         pin,
	})
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Account %s opened.\n", account.AccountNumber)
	fmt.Fprintf(c.out, "Card %s issued, expires %s.\n", card.CardNumber, card.ExpiryDate.Format("01/2006"))
	c.active = &account
}

func (c *Console) selectAccount(ctx context.Context) {
	fmt.Fprint(c.out, "Account number: ")
	number := strings.TrimSpace(c.readLine())
	account, err := c.ledger.ResolveAccount(ctx, number)
	if err != nil {
		c.printError(err)
		return
	}
	c.active = &account
	fmt.Fprintf(c.out, "Selected account %s.\n", account.AccountNumber)
}

func (c *Console) deposit(ctx context.Context) {
	account, ok := c.requireGrant(ctx)
	if !ok {
		return
	}
	amount, ok := c.readAmount("Amount: ")
	if !ok {
		return
	}
	fmt.Fprint(c.out, "Description (optional): ")
	description := strings.TrimSpace(c.readLine())

	res, err := c.ledger.Deposit(ctx, account.ID, amount, description)
	if err != nil {
		c.printError(err)
		return
	}
	c.active = &res.Account
	fmt.Fprintf(c.out, "Deposited. Receipt %s, balance %s.\n",
		res.Transaction.TransactionID, money.Format(res.Account.Balance))
}

func (c *Console) withdraw(ctx context.Context) {
	account, ok := c.requireGrant(ctx)
	if !ok {
		return
	}
	amount, ok := c.readAmount("Amount: ")
	if !ok {
		return
	}
	fmt.Fprint(c.out, "Description (optional): ")
	description := strings.TrimSpace(c.readLine())

	res, err := c.ledger.Withdraw(ctx, account.ID, amount, description)
	if err != nil {
		c.printError(err)
		return
	}
	c.active = &res.Account
	fmt.Fprintf(c.out, "Withdrawn. Receipt %s, balance %s.\n",
		res.Transaction.TransactionID, money.Format(res.Account.Balance))
}

func (c *Console) transfer(ctx context.Context) {
	account, ok := c.requireGrant(ctx)
	if !ok {
		return
	}
	fmt.Fprint(c.out, "Recipient account number: ")
	recipient := strings.TrimSpace(c.readLine())
	amount, ok := c.readAmount("Amount: ")
	if !ok {
		return
	}
	fmt.Fprint(c.out, "Description (optional): ")
	description := strings.TrimSpace(c.readLine())

	res, err := c.ledger.Transfer(ctx, account.ID, recipient, amount, description)
	if err != nil {
		c.printError(err)
		return
	}
	c.active = &res.Sender
	fmt.Fprintf(c.out, "Transfer complete. Receipt %s, balance %s.\n",
		res.DebitLeg.TransactionID, money.Format(res.Sender.Balance))
}

func (c *Console) balanceInquiry(ctx context.Context) {
	account, ok := c.requireAccount()
	if !ok {
		return
	}
	res, err := c.ledger.BalanceInquiry(ctx, account.ID)
	if err != nil {
		c.printError(err)
		return
	}
	c.active = &res.Account
	fmt.Fprintf(c.out, "Balance: %s (receipt %s)\n",
		money.Format(res.Account.Balance), res.Transaction.TransactionID)
}

func (c *Console) history(ctx context.Context) {
	account, ok := c.requireAccount()
	if !ok {
		return
	}
	fmt.Fprint(c.out, "Filter by type (blank for all): ")
	raw := strings.ToUpper(strings.TrimSpace(c.readLine()))
	var filter *pkg.TransactionType
	if raw != "" {
		t := pkg.TransactionType(raw)
		filter = &t
	}
	txns, err := c.ledger.ListTransactions(ctx, account.ID, filter)
	if err != nil {
		c.printError(err)
		return
	}
	if len(txns) == 0 {
		fmt.Fprintln(c.out, "No transactions.")
		return
	}
	for _, t := range txns {
		fmt.Fprintf(c.out, "- %s  %-15s  %s  balance %s  %s\n",
			t.TransactionID, t.Type, money.Format(t.Amount), money.Format(t.BalanceAfter),
			t.CreatedAt.Format(time.RFC3339))
		if strings.TrimSpace(t.Description) != "" {
			fmt.Fprintf(c.out, "    %s\n", t.Description)
		}
	}
}

func (c *Console) receipt(ctx context.Context) {
	fmt.Fprint(c.out, "Receipt number: ")
	receipt := strings.TrimSpace(c.readLine())
	txn, err := c.ledger.GetTransaction(ctx, c.user, receipt)
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "%s  %s  %s\n", txn.TransactionID, txn.Type, txn.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "Amount: %s\n", money.Format(txn.Amount))
	fmt.Fprintf(c.out, "Balance: %s -> %s\n", money.Format(txn.BalanceBefore), money.Format(txn.BalanceAfter))
	if strings.TrimSpace(txn.Description) != "" {
		fmt.Fprintf(c.out, "Description: %s\n", txn.Description)
	}
}

func (c *Console) requireAccount() (*models.Account, bool) {
	if c.active == nil {
		fmt.Fprintln(c.out, "No account selected.")
		return nil, false
	}
	return c.active, true
}

// requireGrant gates money movement behind a fresh PIN grant, prompting for
// the PIN when the previous grant has lapsed.
func (c *Console) requireGrant(ctx context.Context) (*models.Account, bool) {
	account, ok := c.requireAccount()
	if !ok {
		return nil, false
	}
	if err := c.pins.Check(ctx, account.ID); err == nil {
		return account, true
	} else if !pkg.IsCode(err, pkg.ErrPinExpiredCode) {
		c.printError(err)
		return nil, false
	}

	fmt.Fprint(c.out, "PIN: ")
	pin := strings.TrimSpace(c.readLine())
	if _, err := c.pins.Authorize(ctx, account.ID, pin); err != nil {
		c.printError(err)
		return nil, false
	}
	return account, true
}

func (c *Console) readAmount(prompt string) (decimal.Decimal, bool) {
	fmt.Fprint(c.out, prompt)
	raw := strings.TrimSpace(c.readLine())
	d, err := money.Parse(raw)
	if err != nil {
		c.printError(err)
		return decimal.Decimal{}, false
	}
	return d, true
}

func (c *Console) readLine() string {
	s, _ := c.in.ReadString('\n')
	return strings.TrimRight(s, "\r\n")
}

func (c *Console) printError(err error) {
	_, msg := pkg.Describe(err)
	fmt.Fprintln(c.out, "Error:", msg)
	c.logger.Debug("console operation failed", zap.Error(err))
}
