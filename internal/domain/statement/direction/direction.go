// Package direction decides whether a statement line is income or expense.
// Two signal sources exist: layout cues (debit/credit markers, money in/out
// columns) and keyword cues over the line text. Layout cues always win;
// keywords are the fallback for statements without clean columns, and the
// final fallback is expense.
package direction

import (
	"strings"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// layoutLabels are markers printed adjacent to an amount or as a column
// header. The two-letter Дт/Кт codes come from local bank ledgers.
var layoutLabels = map[string]statement.Direction{
	"дт":        statement.DirectionExpense,
	"dt":        statement.DirectionExpense,
	"дебит":     statement.DirectionExpense,
	"debit":     statement.DirectionExpense,
	"money out": statement.DirectionExpense,
	"paid out":  statement.DirectionExpense,
	"кт":        statement.DirectionIncome,
	"kt":        statement.DirectionIncome,
	"кредит":    statement.DirectionIncome,
	"credit":    statement.DirectionIncome,
	"money in":  statement.DirectionIncome,
	"paid in":   statement.DirectionIncome,
}

var incomeKeywords = []string{
	"transfer from", "received from", "deposit", "refund", "salary", "interest earned",
	"превод от", "получен превод", "захранване", "възстановяване", "заплата", "вноска",
}

var expenseKeywords = []string{
	"transfer to", "withdrawal", "payment", "purchase", "direct debit", "card payment",
	"превод към", "теглене", "плащане", "покупка", "такса",
}

// FromLayoutLabel maps a column label or amount-adjacent marker to a
// direction. The label is matched whole, case-insensitively.
func FromLayoutLabel(label string) (statement.Direction, bool) {
	d, ok := layoutLabels[strings.ToLower(strings.TrimSpace(strings.Trim(label, ".:")))]
	return d, ok
}

// FromKeywords scans the whole line for curated bilingual direction
// keywords. Expense keywords are checked after income keywords so that a
// phrase like "refund of payment" classifies as income.
func FromKeywords(text string) (statement.Direction, bool) {
	lower := strings.ToLower(text)
	for _, kw := range incomeKeywords {
		if strings.Contains(lower, kw) {
			return statement.DirectionIncome, true
		}
	}
	for _, kw := range expenseKeywords {
		if strings.Contains(lower, kw) {
			return statement.DirectionExpense, true
		}
	}
	return "", false
}

// Classify combines a layout cue (if any) with keyword cues over the line.
// Layout cues override keywords; with neither present the default is
// expense, a deliberate policy inherited from the heuristics this engine
// encodes.
func Classify(layout statement.Direction, hasLayout bool, text string) statement.Direction {
	if hasLayout {
		return layout
	}
	if d, ok := FromKeywords(text); ok {
		return d
	}
	return statement.DirectionExpense
}
