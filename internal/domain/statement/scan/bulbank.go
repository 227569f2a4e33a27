package scan

import (
	"regexp"
	"time"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// BulbankScanner reads the local bank ledger layout:
//
//	05.01.2024  ПЛАЩАНЕ КАУФЛАНД СОФИЯ  Дт 19.17 BGN (9.80 EUR)
//
// Dates are "DD.MM.YYYY"; direction is carried by the two-letter Дт/Кт code
// next to the amount, and amounts often appear as BGN (EUR) pairs. The EUR
// member of a pair is always authoritative.
type BulbankScanner struct{}

var bulbankDatePattern = regexp.MustCompile(`^(\d{2}\.\d{2}\.\d{4})\b\.?\s*`)

func (s *BulbankScanner) Name() string { return "bulbank" }

func (s *BulbankScanner) Scan(text string) ([]statement.TransactionDraft, error) {
	return bulbankLayout.run(text)
}

var bulbankLayout = layout{
	name:     "bulbank",
	dateLine: bulbankDate,
	startMarkers: []string{
		"движения по сметка", "извлечение", "дата на операция",
	},
	trailerMarkers: []string{
		"крайно салдо", "начално салдо за следващ", "обороти за периода",
		"край на извлечението", "сума на блокирани",
	},
}

func bulbankDate(line string) (time.Time, string, bool) {
	m := bulbankDatePattern.FindStringSubmatchIndex(line)
	if m == nil {
		return time.Time{}, "", false
	}
	t, err := time.Parse("02.01.2006", line[m[2]:m[3]])
	if err != nil {
		return time.Time{}, "", false
	}
	return t, line[m[1]:], true
}
