// Package tabular parses CSV/TSV statement exports into transaction drafts.
// It uses gocsv for struct-based unmarshaling when the file's headers match
// known column names, and falls back to sniffer-driven positional mapping
// when they do not.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/normalizer"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/sniffer"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

func init() {
	// Bank exports capitalize headers inconsistently ("Дата", "DATE", "date").
	gocsv.SetHeaderNormalizer(strings.ToLower)
}

// row is a raw CSV row unmarshaled by header name. The tags cover the
// column vocabularies of the supported banks; gocsv leaves unmatched
// fields empty.
type row struct {
	// Date columns
	Date     string `csv:"date"`
	Data     string `csv:"дата"`
	DataOp   string `csv:"дата на операция"`
	Valeur   string `csv:"вальор"`
	DateBook string `csv:"booking date"`

	// Description columns
	Description string `csv:"description"`
	Opisanie    string `csv:"описание"`
	Osnovanie   string `csv:"основание"`
	Kontragent  string `csv:"контрагент"`
	Merchant    string `csv:"merchant"`
	Payee       string `csv:"payee"`
	Details     string `csv:"details"`
	Memo        string `csv:"memo"`

	// Amount columns (single)
	Amount   string `csv:"amount"`
	Suma     string `csv:"сума"`
	Stoinost string `csv:"стойност"`
	Value    string `csv:"value"`

	// Debit/Credit columns (double-entry)
	Debit    string `csv:"debit"`
	Debit2   string `csv:"дебит"`
	Dt       string `csv:"дт"`
	MoneyOut string `csv:"money out"`

	Credit  string `csv:"credit"`
	Credit2 string `csv:"кредит"`
	Kt      string `csv:"кт"`
	MoneyIn string `csv:"money in"`

	// Direction type columns
	Type string `csv:"type"`
	Tip  string `csv:"тип"`
	Vid  string `csv:"вид"`

	// Balance (for reference, never imported)
	Balance string `csv:"balance"`
	Saldo   string `csv:"салдо"`
}

// Result contains the outcome of parsing one tabular file.
type Result struct {
	Drafts      []statement.TransactionDraft
	TotalRows   int
	ParsedRows  int
	SkippedRows int
}

// Parse detects the file's layout and converts every data row into a draft.
// Rows that cannot be normalized are counted and skipped, never fatal.
func Parse(data []byte, ex statement.ExchangeContext) (*Result, error) {
	cfg, err := sniffer.DetectConfig(data)
	if err != nil {
		return nil, fmt.Errorf("detect tabular layout: %w", err)
	}

	res, err := parseTagged(data, cfg, ex)
	if err == nil && res.ParsedRows > 0 {
		return res, nil
	}

	// Headers did not match any known tag; map columns positionally.
	return parseMapped(data, cfg, ex)
}

// parseTagged is the struct-tag path: gocsv binds columns by header name.
// The csv.Reader is built per call so independent documents can be parsed
// concurrently; only the header normalizer is process-global.
func parseTagged(data []byte, cfg *sniffer.FileConfig, ex statement.ExchangeContext) (*Result, error) {
	reader := io.Reader(bytes.NewReader(data))
	if cfg.SkipLines > 0 {
		reader = skipLines(reader, cfg.SkipLines)
	}

	r := csv.NewReader(reader)
	r.Comma = cfg.Delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows []row
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal csv: %w", err)
	}

	res := &Result{TotalRows: len(rows)}
	for _, r := range rows {
		draft, ok := normalizer.NormalizeRow(r.toRow(), ex)
		if !ok {
			res.SkippedRows++
			continue
		}
		res.Drafts = append(res.Drafts, draft)
		res.ParsedRows++
	}
	return res, nil
}

// toRow collapses the per-bank columns into canonical normalizer fields.
func (r row) toRow() normalizer.Row {
	return normalizer.Row{
		"date":        coalesce(r.Date, r.Data, r.DataOp, r.Valeur, r.DateBook),
		"description": coalesce(r.Description, r.Opisanie, r.Osnovanie, r.Kontragent, r.Merchant, r.Payee, r.Details, r.Memo),
		"amount":      coalesce(r.Amount, r.Suma, r.Stoinost, r.Value),
		"debit":       coalesce(r.Debit, r.Debit2, r.Dt, r.MoneyOut),
		"credit":      coalesce(r.Credit, r.Credit2, r.Kt, r.MoneyIn),
		"type":        coalesce(r.Type, r.Tip, r.Vid),
	}
}

// parseMapped is the positional fallback for files whose headers match no
// struct tag: sniffer suggestions pick the column indices.
func parseMapped(data []byte, cfg *sniffer.FileConfig, ex statement.ExchangeContext) (*Result, error) {
	cols := sniffer.SuggestColumns(cfg.Headers)
	if cols.DateCol < 0 {
		return nil, fmt.Errorf("no date column among headers %v", cfg.Headers)
	}

	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.Comma = cfg.Delimiter
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	res := &Result{}
	lineNum := 0
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.SkippedRows++
			lineNum++
			continue
		}
		if lineNum <= cfg.SkipLines {
			lineNum++
			continue
		}
		lineNum++
		res.TotalRows++

		getValue := func(idx int) string {
			if idx < 0 || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		draft, ok := normalizer.NormalizeRow(normalizer.Row{
			"date":        getValue(cols.DateCol),
			"description": getValue(cols.DescCol),
			"amount":      getValue(cols.AmountCol),
			"debit":       getValue(cols.DebitCol),
			"credit":      getValue(cols.CreditCol),
			"type":        getValue(cols.TypeCol),
		}, ex)
		if !ok {
			res.SkippedRows++
			continue
		}
		res.Drafts = append(res.Drafts, draft)
		res.ParsedRows++
	}
	return res, nil
}

// coalesce returns the first non-empty string
func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// skipLines returns a reader that discards the first n lines.
func skipLines(r io.Reader, n int) io.Reader {
	return &lineSkipper{reader: r, skip: n}
}

type lineSkipper struct {
	reader  io.Reader
	skip    int
	skipped bool
}

func (ls *lineSkipper) Read(p []byte) (int, error) {
	if !ls.skipped {
		buf := make([]byte, 1)
		lines := 0
		for lines < ls.skip {
			n, err := ls.reader.Read(buf)
			if err != nil {
				return 0, err
			}
			if n > 0 && buf[0] == '\n' {
				lines++
			}
		}
		ls.skipped = true
	}
	return ls.reader.Read(p)
}
