// Package money extracts monetary tokens from statement text and resolves
// which of them is the transaction amount. Statements mix BGN and EUR,
// print "X BGN (Y EUR)" pairs and keep debit/credit amounts in separate
// columns, so resolution is a fixed-priority policy rather than a guess.
// Every resolved amount is converted to EUR cents through the document's
// exchange context.
package money

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/direction"
)

// Currency is one of the two currencies this engine understands.
type Currency string

const (
	EUR Currency = "EUR"
	BGN Currency = "BGN"
)

// Token is one monetary value found on a line, together with its position
// and any direction label printed next to it.
type Token struct {
	Cents    int64
	Currency Currency
	Pos      int // byte offset of the match start
	End      int // byte offset just past the match
	Label    statement.Direction
	HasLabel bool
}

// Policy names the rule that picked the authoritative amount, so tests can
// pin resolution behavior down instead of re-deriving it.
type Policy string

const (
	// PolicyPairedEUR: the EUR member of an "X BGN (Y EUR)" pair wins.
	PolicyPairedEUR Policy = "paired-eur"
	// PolicyLabeledColumn: the single non-zero labeled column wins.
	PolicyLabeledColumn Policy = "labeled-column"
	// PolicyKeywordColumn: two non-zero labeled columns, keyword cues broke the tie.
	PolicyKeywordColumn Policy = "keyword-column"
	// PolicyFirstTokenExpense: two non-zero labeled columns, no keyword cue;
	// the first token wins and direction defaults to expense.
	PolicyFirstTokenExpense Policy = "first-token-default-expense"
	// PolicyFirstToken: several unlabeled tokens; the first one (amount
	// column precedes balance in every known layout) wins.
	PolicyFirstToken Policy = "first-token"
	// PolicySingleToken: only one token exists.
	PolicySingleToken Policy = "single-token"
)

// Resolution is the outcome of amount disambiguation for one line.
type Resolution struct {
	EURCents     int64
	Policy       Policy
	Direction    statement.Direction
	HasDirection bool
}

// The marker-before and marker-after shapes are separate alternatives so
// that a match never swallows the leading marker of the next token, as in
// "€4.50 €1,535.50".
const numberPattern = `\d{1,3}(?:[ .,]\d{3})*(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

var tokenPattern = regexp.MustCompile(
	`(€|EUR|BGN|лв\.?|лева)\s{0,2}-?(` + numberPattern + `)|-?(` + numberPattern + `)\s{0,2}(€|EUR|BGN|лв\.?|лева)`)

// ExtractTokens finds every number carrying a currency marker (symbol or
// code, before or after the value) and attaches the direction label printed
// immediately before it, if any. Bare numbers are not monetary tokens.
func ExtractTokens(line string) []Token {
	var tokens []Token
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(line, -1) {
		var marker, number string
		if m[2] >= 0 {
			marker = line[m[2]:m[3]]
			number = line[m[4]:m[5]]
		} else {
			number = line[m[6]:m[7]]
			marker = line[m[8]:m[9]]
		}
		cents, ok := parseCents(number)
		if !ok {
			continue
		}
		tok := Token{
			Cents:    cents,
			Currency: currencyOf(marker),
			Pos:      m[0],
			End:      m[1],
		}
		if label, found := labelBefore(line, m[0]); found {
			tok.Label = label
			tok.HasLabel = true
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func currencyOf(marker string) Currency {
	switch strings.ToUpper(strings.TrimRight(marker, ".")) {
	case "€", "EUR":
		return EUR
	default:
		return BGN
	}
}

// labelBefore inspects the word directly preceding a token for a layout
// direction marker (Дт, Кт, money out, ...).
func labelBefore(line string, pos int) (statement.Direction, bool) {
	prefix := strings.TrimRight(line[:pos], " \t(")
	fields := strings.Fields(prefix)
	if len(fields) == 0 {
		return "", false
	}
	last := fields[len(fields)-1]
	if d, ok := direction.FromLayoutLabel(last); ok {
		return d, true
	}
	// two-word labels ("money out", "paid in")
	if len(fields) >= 2 {
		if d, ok := direction.FromLayoutLabel(fields[len(fields)-2] + " " + last); ok {
			return d, true
		}
	}
	return "", false
}

// parseCents turns a numeric string with unknown separator convention into
// cents. The last separator is the decimal one when followed by one or two
// digits; everything else is grouping.
func parseCents(s string) (int64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	sep := -1
	if lastComma > lastDot {
		sep = lastComma
	} else if lastDot > lastComma {
		sep = lastDot
	}
	if sep >= 0 && len(s)-sep-1 >= 1 && len(s)-sep-1 <= 2 {
		intPart := strings.Map(keepDigit, s[:sep])
		fracPart := s[sep+1:]
		if fracPart == "" || strings.ContainsAny(fracPart, ",.") {
			return 0, false
		}
		if len(fracPart) == 1 {
			fracPart += "0"
		}
		whole, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, false
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, false
		}
		return whole*100 + frac, true
	}
	whole, err := strconv.ParseInt(strings.Map(keepDigit, s), 10, 64)
	if err != nil {
		return 0, false
	}
	return whole * 100, true
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// pairedEUR looks for a token immediately followed by a parenthesized token
// in the other currency. The EUR member of such a pair is authoritative no
// matter which one appears first.
func pairedEUR(line string, tokens []Token) (eur, other Token, ok bool) {
	for i := 0; i+1 < len(tokens); i++ {
		a, b := tokens[i], tokens[i+1]
		if a.Currency == b.Currency {
			continue
		}
		between := strings.TrimSpace(line[a.End:b.Pos])
		if between != "(" {
			continue
		}
		rest := strings.TrimLeft(line[b.End:], " ")
		if !strings.HasPrefix(rest, ")") {
			continue
		}
		if a.Currency == EUR {
			return a, b, true
		}
		return b, a, true
	}
	return Token{}, Token{}, false
}

// Resolve applies the disambiguation policy to one line (or one combined
// multi-line entry). The second return is false when the line carries no
// monetary token at all; such lines are simply not transactions.
func Resolve(line string, ctx statement.ExchangeContext) (Resolution, bool) {
	tokens := ExtractTokens(line)
	if len(tokens) == 0 {
		return Resolution{}, false
	}

	if tok, other, ok := pairedEUR(line, tokens); ok {
		res := Resolution{EURCents: ToEURCents(tok, ctx), Policy: PolicyPairedEUR}
		// The Дт/Кт code usually sits next to the BGN member; either
		// member's label applies to the pair as a whole.
		switch {
		case tok.HasLabel:
			res.Direction, res.HasDirection = tok.Label, true
		case other.HasLabel:
			res.Direction, res.HasDirection = other.Label, true
		}
		return res, true
	}

	if len(tokens) == 1 {
		tok := tokens[0]
		res := Resolution{EURCents: ToEURCents(tok, ctx), Policy: PolicySingleToken}
		if tok.HasLabel {
			res.Direction, res.HasDirection = tok.Label, true
		}
		return res, true
	}

	labeled := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.HasLabel {
			labeled = append(labeled, t)
		}
	}

	if len(labeled) >= 2 {
		nonZero := make([]Token, 0, len(labeled))
		for _, t := range labeled {
			if t.Cents != 0 {
				nonZero = append(nonZero, t)
			}
		}
		switch len(nonZero) {
		case 1:
			t := nonZero[0]
			return Resolution{
				EURCents:     ToEURCents(t, ctx),
				Policy:       PolicyLabeledColumn,
				Direction:    t.Label,
				HasDirection: true,
			}, true
		case 0:
			// labeled columns all empty; fall through to positional pick
		default:
			if kw, ok := direction.FromKeywords(line); ok {
				for _, t := range nonZero {
					if t.Label == kw {
						return Resolution{
							EURCents:     ToEURCents(t, ctx),
							Policy:       PolicyKeywordColumn,
							Direction:    kw,
							HasDirection: true,
						}, true
					}
				}
			}
			t := nonZero[0]
			return Resolution{
				EURCents:     ToEURCents(t, ctx),
				Policy:       PolicyFirstTokenExpense,
				Direction:    statement.DirectionExpense,
				HasDirection: true,
			}, true
		}
	}

	if len(labeled) == 1 && labeled[0].Cents != 0 {
		t := labeled[0]
		return Resolution{
			EURCents:     ToEURCents(t, ctx),
			Policy:       PolicyLabeledColumn,
			Direction:    t.Label,
			HasDirection: true,
		}, true
	}

	// Several unlabeled tokens: the amount column precedes the balance
	// column in every supported layout, so the first token wins.
	return Resolution{EURCents: ToEURCents(tokens[0], ctx), Policy: PolicyFirstToken}, true
}

// ToEURCents converts a token to EUR cents through the document rate,
// rounding half away from zero. EUR tokens pass through unchanged.
func ToEURCents(t Token, ctx statement.ExchangeContext) int64 {
	if t.Currency == EUR {
		return abs64(t.Cents)
	}
	return int64(math.Round(math.Abs(float64(t.Cents)) / ctx.Rate()))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

var (
	statedRatePattern = regexp.MustCompile(
		`(?i)(?:1\s*EUR\s*=\s*|exchange\s+rate[:\s]+|(?:фиксиран\s+)?курс[:\s]+)(\d[.,]\d{3,6})`)
	pairPattern = regexp.MustCompile(
		`(\d+(?:[.,]\d{1,2})?)\s{0,2}(?:BGN|лв\.?)\s*\(\s*(\d+(?:[.,]\d{1,2})?)\s{0,2}(?:EUR|€)\s*\)`)
)

// DeriveContext computes the document exchange rate: a stated rate wins,
// otherwise the first same-line BGN/EUR pair implies one, otherwise the
// fixed peg applies. Called once per document.
func DeriveContext(text string) statement.ExchangeContext {
	if m := statedRatePattern.FindStringSubmatch(text); m != nil {
		if rate, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil && plausibleRate(rate) {
			return statement.ExchangeContext{RateBGNPerEUR: rate}
		}
	}
	if m := pairPattern.FindStringSubmatch(text); m != nil {
		bgn, ok1 := parseCents(m[1])
		eur, ok2 := parseCents(m[2])
		if ok1 && ok2 && eur > 0 {
			rate := float64(bgn) / float64(eur)
			if plausibleRate(rate) {
				return statement.ExchangeContext{RateBGNPerEUR: rate}
			}
		}
	}
	return statement.NewExchangeContext()
}

// plausibleRate guards against mistaking arbitrary numbers for a rate; the
// currency board keeps the real rate near the peg.
func plausibleRate(rate float64) bool {
	return rate > 1.2 && rate < 3.0
}
