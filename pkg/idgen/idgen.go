// Package idgen mints the display identifiers used by the ledger: 16-digit
// account and card numbers, 3-digit CVVs, and TXN-prefixed transaction ids.
// The generators are stateless; uniqueness is the caller's concern (existence
// checks for account/card numbers, a storage unique constraint for TXN ids).
package idgen

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	numberLength = 16
	cvvLength    = 3
	txnSuffixLen = 6

	// TxnPrefix starts every transaction display id.
	TxnPrefix = "TXN"
)

// AccountNumber returns a 16-digit account number with uniformly random digits.
func AccountNumber() string {
	return digits(numberLength)
}

// CardNumber returns a 16-digit card number with uniformly random digits.
func CardNumber() string {
	return digits(numberLength)
}

// CVV returns a 3-digit card verification value.
func CVV() string {
	return digits(cvvLength)
}

// TransactionID returns "TXN" + unix seconds + 6 random digits. Collisions are
// possible within one second; storage enforces uniqueness and the engine
// retries with a fresh id.
func TransactionID(now time.Time) string {
	var b strings.Builder
	b.WriteString(TxnPrefix)
	b.WriteString(strconv.FormatInt(now.Unix(), 10))
	b.WriteString(digits(txnSuffixLen))
	return b.String()
}

func digits(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	return b.String()
}
