package pkg

// AccountType enumerates the account products the ledger tracks.
type AccountType string

const (
	AccountTypeSavings  AccountType = "SAVINGS"
	AccountTypeChecking AccountType = "CHECKING"
	AccountTypeCurrent  AccountType = "CURRENT"
)

// AccountStatus controls whether an account may move money. Accounts are never
// deleted; they are flipped to INACTIVE or BLOCKED instead.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusBlocked  AccountStatus = "BLOCKED"
)

type TransactionType string

const (
	TransactionTypeDeposit        TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal     TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer       TransactionType = "TRANSFER"
	TransactionTypeBalanceInquiry TransactionType = "BALANCE_INQUIRY"
)

type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
	TransactionStatusPending TransactionStatus = "PENDING"
)

type CardType string

const (
	CardTypeDebit  CardType = "DEBIT"
	CardTypeCredit CardType = "CREDIT"
)

type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// ValidAccountType reports whether t is one of the supported products.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeSavings, AccountTypeChecking, AccountTypeCurrent:
		return true
	}
	return false
}

// ValidTransactionType reports whether t is a known ledger record type.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer, TransactionTypeBalanceInquiry:
		return true
	}
	return false
}
