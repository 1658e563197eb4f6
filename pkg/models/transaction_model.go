package models

import (
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction maps to table `transactions`. Records are immutable: the ledger
// is append-only and no field is ever updated after insert.
type Transaction struct {
	ID                 uuid.UUID
	TransactionID      string // display id, TXN<unix><6 digits>, unique
	AccountID          uuid.UUID
	RecipientAccountID *uuid.UUID // set on the debit leg of a transfer only
	Type               pkg.TransactionType
	Amount             decimal.Decimal
	BalanceBefore      decimal.Decimal
	BalanceAfter       decimal.Decimal
	Description        string
	Status             pkg.TransactionStatus
	CreatedAt          time.Time
}

// SignedAmount is the balance delta this record captured: positive for
// deposits and credit legs, negative for withdrawals and debit legs, zero for
// balance inquiries.
func (t Transaction) SignedAmount() decimal.Decimal {
	return t.BalanceAfter.Sub(t.BalanceBefore)
}
