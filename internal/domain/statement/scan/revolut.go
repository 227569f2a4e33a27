package scan

import (
	"regexp"
	"time"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// RevolutScanner reads the foreign-currency statement layout:
//
//	Date          Description                Money out   Money in   Balance
//	Jan 5, 2024   Transfer from Jane Doe                 €120.00    €1,540.00
//
// Dates are "Mon D, YYYY"; amounts carry the € symbol. Entries wrap onto
// continuation lines when the description is long.
type RevolutScanner struct{}

var revolutDatePattern = regexp.MustCompile(
	`^((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},\s+\d{4})\b\s*`)

func (s *RevolutScanner) Name() string { return "revolut" }

func (s *RevolutScanner) Scan(text string) ([]statement.TransactionDraft, error) {
	return revolutLayout.run(text)
}

var revolutLayout = layout{
	name:     "revolut",
	dateLine: revolutDate,
	startMarkers: []string{
		"money out", "account transactions", "transactions from",
	},
	trailerMarkers: []string{
		"balance summary", "closing balance", "get help", "report lost",
		"this statement was generated",
	},
}

func revolutDate(line string) (time.Time, string, bool) {
	m := revolutDatePattern.FindStringSubmatchIndex(line)
	if m == nil {
		return time.Time{}, "", false
	}
	for _, f := range []string{"Jan 2, 2006", "January 2, 2006"} {
		if t, err := time.Parse(f, line[m[2]:m[3]]); err == nil {
			return t, line[m[1]:], true
		}
	}
	return time.Time{}, "", false
}
