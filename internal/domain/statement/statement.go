// Package statement defines the canonical transaction draft produced by the
// extraction engine and the per-document exchange context shared by its parts.
package statement

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTextTooShort is returned when the input carries too little signal
	// to attempt parsing at all.
	ErrTextTooShort = errors.New("statement text too short to parse")
	// ErrNoTransactionsFound is returned when parsing completed but zero
	// drafts were produced.
	ErrNoTransactionsFound = errors.New("no transactions found in statement")
)

// MinTextLength is the minimum input length below which parsing is not attempted.
const MinTextLength = 40

// Direction tells whether a draft moves money in or out of the account.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// Placeholder returns the fallback description for drafts whose original
// description failed the sanitizer's validity check.
func (d Direction) Placeholder() string {
	if d == DirectionIncome {
		return "Transfer"
	}
	return "Payment"
}

// TransactionDraft is an unpersisted, normalized transaction record.
// AmountCents is always strictly positive and denominated in EUR; the sign
// is carried by Direction.
type TransactionDraft struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Direction   Direction `json:"direction"`
}

// Key builds the composite deduplication key: calendar date, amount rounded
// to two decimals and the first 30 characters of the description.
func (t TransactionDraft) Key() string {
	desc := []rune(t.Description)
	if len(desc) > 30 {
		desc = desc[:30]
	}
	return fmt.Sprintf("%s|%d.%02d|%s",
		t.Date.Format("2006-01-02"), t.AmountCents/100, t.AmountCents%100, string(desc))
}

// SignedCents returns the amount with the conventional sign applied:
// positive for income, negative for expense.
func (t TransactionDraft) SignedCents() int64 {
	if t.Direction == DirectionExpense {
		return -t.AmountCents
	}
	return t.AmountCents
}

// PegRate is the fixed BGN-per-EUR currency-board peg, used whenever a
// document does not state its own rate.
const PegRate = 1.95583

// ExchangeContext holds the BGN-per-EUR rate for one document parse.
// It is computed once at the start of a parse and never persisted.
type ExchangeContext struct {
	RateBGNPerEUR float64
}

// NewExchangeContext returns a context at the fixed peg.
func NewExchangeContext() ExchangeContext {
	return ExchangeContext{RateBGNPerEUR: PegRate}
}

// Rate returns the effective rate, falling back to the peg when the context
// was zero-initialized.
func (c ExchangeContext) Rate() float64 {
	if c.RateBGNPerEUR <= 0 {
		return PegRate
	}
	return c.RateBGNPerEUR
}
