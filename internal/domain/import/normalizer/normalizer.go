// Package normalizer handles regional money and date parsing and maps
// arbitrary tabular rows onto the canonical transaction fields. Column
// names are unknown and multilingual, so fields are located first by
// header synonyms and then by sniffing the cell contents themselves.
package normalizer

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/money"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/sanitize"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrInvalidDate   = errors.New("invalid date format")
)

// Header synonym lists per canonical field, matched case-insensitively.
var (
	dateHeaders = []string{
		"date", "дата", "дата на операция", "booking date", "value date",
		"вальор", "data",
	}
	amountHeaders = []string{
		"amount", "сума", "стойност", "value", "importe",
	}
	debitHeaders = []string{
		"debit", "дебит", "дт", "money out", "paid out",
	}
	creditHeaders = []string{
		"credit", "кредит", "кт", "money in", "paid in",
	}
	descHeaders = []string{
		"description", "описание", "основание", "контрагент", "narrative",
		"merchant", "payee", "details", "memo",
	}
	typeHeaders = []string{
		"type", "тип", "вид", "direction", "д/к",
	}
)

var incomeTypes = map[string]bool{
	"income": true, "credit": true, "приход": true, "кт": true, "к": true,
	"deposit": true, "in": true,
}

var expenseTypes = map[string]bool{
	"expense": true, "debit": true, "разход": true, "дт": true, "д": true,
	"withdrawal": true, "out": true,
}

var signedDecimalPattern = regexp.MustCompile(
	`^[-+]?\d{1,3}(?:[ .,]\d{3})*(?:[.,]\d{1,2})?$|^[-+]?\d+(?:[.,]\d{1,2})?$`)

// Row is one tabular record: header name to raw cell value.
type Row map[string]string

// NormalizeRow maps a row with unknown column names onto a draft. Rows with
// fewer than two non-empty fields, no parseable date or no amount fail
// softly: the row is skipped, never surfaced as an error.
func NormalizeRow(row Row, ex statement.ExchangeContext) (statement.TransactionDraft, bool) {
	if countNonEmpty(row) < 2 {
		return statement.TransactionDraft{}, false
	}

	used := make(map[string]bool, len(row))

	dateStr := pickByHeader(row, dateHeaders, used)
	amountStr := pickByHeader(row, amountHeaders, used)
	debitStr := pickByHeader(row, debitHeaders, used)
	creditStr := pickByHeader(row, creditHeaders, used)
	descStr := pickByHeader(row, descHeaders, used)
	typeStr := pickByHeader(row, typeHeaders, used)

	// Content sniffing fills anything the headers did not.
	if dateStr == "" {
		dateStr = sniffDate(row, used)
	}
	if amountStr == "" && debitStr == "" && creditStr == "" {
		amountStr = sniffAmount(row, used)
	}
	if descStr == "" {
		descStr = sniffDescription(row, used)
	}

	date, err := ParseFlexibleDate(dateStr, "", time.UTC)
	if err != nil {
		return statement.TransactionDraft{}, false
	}

	cents, signNegative, ok := resolveRowAmount(amountStr, debitStr, creditStr, ex)
	if !ok || cents == 0 {
		return statement.TransactionDraft{}, false
	}

	dir := rowDirection(typeStr, debitStr, creditStr, signNegative)

	return statement.TransactionDraft{
		Date:        date,
		Description: sanitize.Describe(descStr, dir),
		AmountCents: cents,
		Direction:   dir,
	}, true
}

// resolveRowAmount parses the amount cell, or merges separate debit/credit
// cells (the non-empty one wins; debit means money out). Returns magnitude
// cents in EUR plus whether the literal value was negative.
func resolveRowAmount(amountStr, debitStr, creditStr string, ex statement.ExchangeContext) (int64, bool, bool) {
	if amountStr != "" {
		return parseCell(amountStr, ex)
	}
	if strings.TrimSpace(debitStr) != "" {
		cents, _, ok := parseCell(debitStr, ex)
		return cents, true, ok
	}
	if strings.TrimSpace(creditStr) != "" {
		cents, _, ok := parseCell(creditStr, ex)
		return cents, false, ok
	}
	return 0, false, false
}

// parseCell handles both plain signed decimals and values carrying a
// currency marker, which are converted to EUR through the document rate.
func parseCell(raw string, ex statement.ExchangeContext) (cents int64, negative, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, false
	}
	negative = strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "(")

	if toks := money.ExtractTokens(raw); len(toks) == 1 {
		return money.ToEURCents(toks[0], ex), negative, true
	}

	parsed, err := ParseAmount(raw)
	if err != nil {
		return 0, false, false
	}
	if parsed < 0 {
		parsed, negative = -parsed, true
	}
	return parsed, negative, true
}

// rowDirection combines the explicit type field with the literal amount sign
// and the debit/credit cell placement. The explicit type wins on conflict.
func rowDirection(typeStr, debitStr, creditStr string, signNegative bool) statement.Direction {
	if t := strings.ToLower(strings.TrimSpace(typeStr)); t != "" {
		if incomeTypes[t] {
			return statement.DirectionIncome
		}
		if expenseTypes[t] {
			return statement.DirectionExpense
		}
	}
	if strings.TrimSpace(debitStr) != "" {
		return statement.DirectionExpense
	}
	if strings.TrimSpace(creditStr) != "" {
		return statement.DirectionIncome
	}
	if signNegative {
		return statement.DirectionExpense
	}
	return statement.DirectionIncome
}

// pickByHeader walks the synonym list in priority order, so a row carrying
// two columns from the same list ("Date" and "Вальор") always resolves to
// the same one regardless of map iteration order.
func pickByHeader(row Row, synonyms []string, used map[string]bool) string {
	headers := sortedHeaders(row)
	for _, syn := range synonyms {
		for _, header := range headers {
			if used[header] {
				continue
			}
			v := strings.TrimSpace(row[header])
			if v == "" {
				continue
			}
			if strings.ToLower(strings.TrimSpace(header)) == syn {
				used[header] = true
				return v
			}
		}
	}
	return ""
}

func sniffDate(row Row, used map[string]bool) string {
	for _, header := range sortedHeaders(row) {
		v := strings.TrimSpace(row[header])
		if used[header] || v == "" {
			continue
		}
		if _, err := ParseFlexibleDate(v, "", time.UTC); err == nil {
			used[header] = true
			return v
		}
	}
	return ""
}

func sniffAmount(row Row, used map[string]bool) string {
	for _, header := range sortedHeaders(row) {
		v := strings.TrimSpace(row[header])
		if used[header] || v == "" {
			continue
		}
		if signedDecimalPattern.MatchString(v) {
			used[header] = true
			return v
		}
	}
	return ""
}

// sniffDescription picks the longest remaining non-numeric field; length
// ties go to the alphabetically first header.
func sniffDescription(row Row, used map[string]bool) string {
	best, bestHeader := "", ""
	for _, header := range sortedHeaders(row) {
		v := strings.TrimSpace(row[header])
		if used[header] || v == "" || signedDecimalPattern.MatchString(v) {
			continue
		}
		if len(v) > len(best) {
			best, bestHeader = v, header
		}
	}
	if bestHeader != "" {
		used[bestHeader] = true
	}
	return best
}

func sortedHeaders(row Row) []string {
	headers := make([]string, 0, len(row))
	for h := range row {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	return headers
}

func countNonEmpty(row Row) int {
	n := 0
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// ParseAmount converts a decimal string with unknown separator convention to
// signed cents. Currency symbols are stripped; the last separator followed
// by one or two digits is the decimal one, everything else is grouping.
func ParseAmount(raw string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)
	// "лв." and similar leave a dangling separator behind
	cleaned = strings.TrimRight(cleaned, ",.")
	if cleaned == "" || cleaned == "-" {
		return 0, ErrInvalidAmount
	}

	isNegative := strings.HasPrefix(cleaned, "-")
	cleaned = strings.TrimPrefix(cleaned, "-")
	if strings.Contains(cleaned, "-") {
		return 0, ErrInvalidAmount
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	sep := lastComma
	if lastDot > sep {
		sep = lastDot
	}

	intPart, fracPart := cleaned, ""
	if sep >= 0 && len(cleaned)-sep-1 >= 1 && len(cleaned)-sep-1 <= 2 {
		intPart, fracPart = cleaned[:sep], cleaned[sep+1:]
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) == 1 {
		fracPart += "0"
	}

	whole, err := strconv.ParseFloat(intPart, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := int64(math.Round(whole)) * 100
	if fracPart != "" {
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		cents += frac
	}

	if isNegative {
		cents = -cents
	}
	return cents, nil
}

// Common date formats produced by supported banks, tried in order.
var dateFormats = []string{
	"02.01.2006",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02.01.2006 15:04",
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
}

// ParseFlexibleDate attempts to parse a date using multiple formats.
func ParseFlexibleDate(raw string, preferredFormat string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}

	if loc == nil {
		loc = time.UTC
	}

	// Try preferred format first
	if preferredFormat != "" {
		goFormat := convertDateFormat(preferredFormat)
		if t, err := time.ParseInLocation(goFormat, raw, loc); err == nil {
			return t, nil
		}
	}

	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, raw, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

// convertDateFormat converts user-friendly format strings to Go format
// e.g., "DD.MM.YYYY" -> "02.01.2006"
func convertDateFormat(format string) string {
	replacements := []struct{ pattern, layout string }{
		{"YYYY", "2006"},
		{"YY", "06"},
		{"MM", "01"},
		{"DD", "02"},
		{"HH", "15"},
		{"mm", "04"},
		{"ss", "05"},
	}

	result := format
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.pattern, r.layout)
	}
	return result
}

// DetectDateFormat attempts to guess the date format from sample data.
func DetectDateFormat(samples []string) string {
	if len(samples) == 0 {
		return "DD.MM.YYYY"
	}

	sample := strings.TrimSpace(samples[0])

	monthNamePattern := regexp.MustCompile(`^[A-Z][a-z]{2,8} \d{1,2}, \d{4}$`)
	isoPattern := regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`)
	ddmmPattern := regexp.MustCompile(`^\d{1,2}([-/.])\d{1,2}([-/.])\d{4}$`)

	switch {
	case monthNamePattern.MatchString(sample):
		return "Jan 2, 2006"
	case isoPattern.MatchString(sample):
		return "YYYY-MM-DD"
	case ddmmPattern.MatchString(sample):
		sep := ddmmPattern.FindStringSubmatch(sample)[1]
		return "DD" + sep + "MM" + sep + "YYYY"
	}
	return "DD.MM.YYYY"
}

// CleanDescription trims and collapses whitespace without applying the full
// sanitizer; callers that need validity checking use sanitize.Describe.
func CleanDescription(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
