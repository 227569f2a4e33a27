// Package scan turns raw statement text into transaction drafts. Each bank
// layout gets its own Scanner; all of them share the same line-by-line state
// machine and differ only in marker vocabulary and date format.
package scan

import (
	"regexp"
	"strings"
	"time"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/direction"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/money"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/sanitize"
)

// Format identifies which parsing path applies to a document.
type Format string

const (
	FormatTabularCSV Format = "tabular-csv"
	FormatRevolut    Format = "revolut"
	FormatBulbank    Format = "bulbank"
)

// Scanner is the strategy interface implemented per bank layout.
type Scanner interface {
	// Scan parses already-extracted statement text into drafts. It is a
	// pure function of its input; independent documents may be scanned
	// concurrently.
	Scan(text string) ([]statement.TransactionDraft, error)
	// Name returns the layout name for logging.
	Name() string
}

// ForFormat returns the Scanner for a layout format. Tabular documents have
// no scanner; they go through the row-normalizer path instead.
func ForFormat(f Format) (Scanner, bool) {
	switch f {
	case FormatRevolut:
		return &RevolutScanner{}, true
	case FormatBulbank:
		return &BulbankScanner{}, true
	default:
		return nil, false
	}
}

// Detect classifies a document by its layout markers. Bank-name markers
// outrank generic table headers, so a known-bank statement always gets its
// dedicated scanner even when generic debit/credit headers are present.
func Detect(text string) Format {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "revolut"):
		return FormatRevolut
	case strings.Contains(lower, "булбанк"),
		strings.Contains(lower, "bulbank"),
		strings.Contains(lower, "уникредит"):
		return FormatBulbank
	}

	// Generic layout markers.
	if strings.Contains(lower, "bgn (") || strings.Contains(lower, "лв. (") ||
		(strings.Contains(text, "Дт") && strings.Contains(text, "Кт")) {
		return FormatBulbank
	}
	if strings.Contains(lower, "money out") && strings.Contains(lower, "money in") {
		return FormatRevolut
	}

	return FormatTabularCSV
}

// maxContinuationLines bounds how far a scanner reads past a date line while
// reconstructing a wrapped entry.
const maxContinuationLines = 15

var pageNoisePattern = regexp.MustCompile(`(?i)^\s*(?:page\s+\d+|стр(?:аница)?\.?\s*\d+|[-=_]{3,})`)

// layout holds the per-bank vocabulary the shared state machine runs on.
type layout struct {
	name string
	// dateLine parses a leading date and returns the remainder of the line.
	dateLine func(string) (time.Time, string, bool)
	// startMarkers flip the machine from seekingTable to inTable.
	startMarkers []string
	// trailerMarkers end the table once at least one draft was collected.
	trailerMarkers []string
}

type scanState int

const (
	seekingTable scanState = iota
	inTable
	done
)

// candidate is one in-progress entry: a date line plus its continuation buffer.
type candidate struct {
	date  time.Time
	lines []string
}

// run is the shared state machine. It never fails on a malformed line; only
// document-level conditions surface as errors.
func (l layout) run(text string) ([]statement.TransactionDraft, error) {
	if len(strings.TrimSpace(text)) < statement.MinTextLength {
		return nil, statement.ErrTextTooShort
	}

	ctx := money.DeriveContext(text)

	var drafts []statement.TransactionDraft
	var cur *candidate
	state := seekingTable

	flush := func() {
		if cur == nil {
			return
		}
		if d, ok := l.emit(*cur, ctx); ok {
			drafts = append(drafts, d)
		}
		cur = nil
	}

	for _, rawLine := range strings.Split(text, "\n") {
		if state == done {
			break
		}
		line := strings.TrimSpace(rawLine)
		if line == "" || pageNoisePattern.MatchString(line) {
			continue
		}

		switch state {
		case seekingTable:
			if containsAnyFold(line, l.startMarkers) {
				state = inTable
				continue
			}
			// A dated line carrying money is the table even without a header.
			if date, rest, ok := l.dateLine(line); ok && len(money.ExtractTokens(line)) > 0 {
				state = inTable
				cur = &candidate{date: date, lines: []string{rest}}
			}

		case inTable:
			if containsAnyFold(line, l.trailerMarkers) {
				flush()
				if len(drafts) > 0 {
					state = done
				}
				continue
			}
			if date, rest, ok := l.dateLine(line); ok {
				flush()
				cur = &candidate{date: date, lines: []string{rest}}
				continue
			}
			if cur != nil && len(cur.lines) < maxContinuationLines {
				cur.lines = append(cur.lines, line)
			}
		}
	}
	flush()

	if len(drafts) == 0 {
		return nil, statement.ErrNoTransactionsFound
	}
	return drafts, nil
}

// emit resolves a completed candidate into a draft. Candidates without a
// monetary token are not transactions and produce nothing.
func (l layout) emit(c candidate, ctx statement.ExchangeContext) (statement.TransactionDraft, bool) {
	combined := strings.Join(c.lines, " ")
	res, ok := money.Resolve(combined, ctx)
	if !ok || res.EURCents <= 0 {
		return statement.TransactionDraft{}, false
	}

	dir := direction.Classify(res.Direction, res.HasDirection, combined)

	return statement.TransactionDraft{
		Date:        c.date,
		Description: sanitize.Describe(stripAmounts(combined), dir),
		AmountCents: res.EURCents,
		Direction:   dir,
	}, true
}

// stripAmounts removes monetary tokens and their layout labels from entry
// text so the description carries only the narrative part.
func stripAmounts(line string) string {
	tokens := money.ExtractTokens(line)
	if len(tokens) == 0 {
		return line
	}
	var b strings.Builder
	prev := 0
	for _, t := range tokens {
		if t.Pos > prev {
			b.WriteString(line[prev:t.Pos])
		}
		prev = t.End
	}
	if prev < len(line) {
		b.WriteString(line[prev:])
	}
	s := b.String()
	// leftover pair parens and direction codes
	s = strings.NewReplacer("(", " ", ")", " ").Replace(s)
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := direction.FromLayoutLabel(f); ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func containsAnyFold(line string, markers []string) bool {
	lower := strings.ToLower(line)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
