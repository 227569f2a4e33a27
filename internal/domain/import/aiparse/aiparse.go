// Package aiparse is the model-assisted fallback parser. Documents that no
// layout scanner recognizes are handed to Gemini with a strict-JSON prompt,
// and the response is validated through the same draft rules as every other
// parsing path.
package aiparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/sanitize"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

const prompt = `You are a financial statement parser for Bulgarian and European bank statements.

Task:
- Parse ALL transactions in the attached statement text.
- Output STRICT JSON only (no comments, no trailing commas, no extra text).
- Output a JSON array of objects.

Each object must have these fields:
- "date": string, ISO format "YYYY-MM-DD"
- "description": string
- "amount_eur": number, positive, in euros
- "direction": "income" or "expense"

Rules:
- Amounts printed as "X BGN (Y EUR)" mean the same money twice; use the EUR value.
- Amounts printed only in BGN must be divided by 1.95583.
- If the statement has separate debit/credit columns, debit means expense.
- Return ONLY valid raw JSON.
- Do NOT wrap the response in code fences.
- Output must begin with "[" and end with "]".`

// contentGenerator is the slice of the genai client the parser needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Parser sends statement text to the model, rate-limited per process.
type Parser struct {
	models  contentGenerator
	model   string
	limiter *rate.Limiter
}

// New creates a parser backed by a real genai client. The limiter keeps the
// process inside the free-tier request quota.
func New(ctx context.Context, model string) (*Parser, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Parser{
		models:  client.Models,
		model:   model,
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 2),
	}, nil
}

// ParseText asks the model for transaction drafts and validates the answer.
func (p *Parser) ParseText(ctx context.Context, text string) ([]statement.TransactionDraft, error) {
	if len(strings.TrimSpace(text)) < statement.MinTextLength {
		return nil, statement.ErrTextTooShort
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{Text: "Statement text:\n\n" + text},
			},
		},
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	drafts, err := DecodeDrafts(raw)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, statement.ErrNoTransactionsFound
	}
	return drafts, nil
}

// modelDraft mirrors the JSON contract the prompt demands.
type modelDraft struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	AmountEUR   float64 `json:"amount_eur"`
	Direction   string  `json:"direction"`
}

// DecodeDrafts parses and validates the model's JSON output. Invalid entries
// are dropped; only a malformed document is an error.
func DecodeDrafts(raw string) ([]statement.TransactionDraft, error) {
	clean := stripFences(raw)

	var entries []modelDraft
	if err := json.Unmarshal([]byte(clean), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal model output: %w", err)
	}

	drafts := make([]statement.TransactionDraft, 0, len(entries))
	for _, e := range entries {
		date, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			continue
		}
		if e.AmountEUR <= 0 {
			continue
		}
		dir := statement.Direction(e.Direction)
		if dir != statement.DirectionIncome && dir != statement.DirectionExpense {
			continue
		}
		drafts = append(drafts, statement.TransactionDraft{
			Date:        date,
			Description: sanitize.Describe(e.Description, dir),
			AmountCents: int64(e.AmountEUR*100 + 0.5),
			Direction:   dir,
		})
	}
	return drafts, nil
}

// stripFences removes Markdown fences and surrounding junk when the model
// ignores the raw-JSON instruction.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost array if junk remains around it.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
