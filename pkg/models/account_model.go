package models

import (
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account maps to table `accounts`. Balance is a scale-2 decimal and never
// goes negative; the account store is the only writer of that column.
type Account struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AccountNumber string // 16 digits, unique, immutable once assigned
	AccountType   pkg.AccountType
	Balance       decimal.Decimal
	PinHash       string // bcrypt hash of the 4-digit PIN
	Status        pkg.AccountStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the account may move money.
func (a Account) IsActive() bool {
	return a.Status == pkg.AccountStatusActive
}

// Card maps to table `cards`. Cards are issued once at account opening and
// never gate ledger operations.
type Card struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	CardNumber string // 16 digits, unique
	CardType   pkg.CardType
	CVV        string
	ExpiryDate time.Time
	Status     pkg.CardStatus
	CreatedAt  time.Time
}

// PinGrant records a successful PIN verification. Money movement is authorized
// while now - GrantedAt stays inside the configured freshness window.
type PinGrant struct {
	AccountID uuid.UUID
	GrantedAt time.Time
}
