package aiparse

import (
	"testing"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

func TestDecodeDrafts(t *testing.T) {
	raw := `[
		{"date": "2024-01-05", "description": "Transfer from Jane Doe", "amount_eur": 120.00, "direction": "income"},
		{"date": "2024-01-06", "description": "KAUFLAND SOFIA", "amount_eur": 9.80, "direction": "expense"}
	]`

	drafts, err := DecodeDrafts(raw)
	if err != nil {
		t.Fatalf("DecodeDrafts failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}

	if drafts[0].AmountCents != 12000 {
		t.Errorf("amount = %d, want 12000", drafts[0].AmountCents)
	}
	if drafts[0].Direction != statement.DirectionIncome {
		t.Errorf("direction = %s, want income", drafts[0].Direction)
	}
	if drafts[1].AmountCents != 980 {
		t.Errorf("amount = %d, want 980", drafts[1].AmountCents)
	}
}

func TestDecodeDrafts_CodeFences(t *testing.T) {
	raw := "```json\n[{\"date\": \"2024-01-05\", \"description\": \"Coffee\", \"amount_eur\": 2.50, \"direction\": \"expense\"}]\n```"

	drafts, err := DecodeDrafts(raw)
	if err != nil {
		t.Fatalf("DecodeDrafts failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0].AmountCents != 250 {
		t.Errorf("amount = %d, want 250", drafts[0].AmountCents)
	}
}

func TestDecodeDrafts_DropsInvalidEntries(t *testing.T) {
	raw := `[
		{"date": "not-a-date", "description": "bad date", "amount_eur": 5.00, "direction": "expense"},
		{"date": "2024-01-05", "description": "zero amount", "amount_eur": 0, "direction": "expense"},
		{"date": "2024-01-05", "description": "bad direction", "amount_eur": 5.00, "direction": "transfer"},
		{"date": "2024-01-05", "description": "ok", "amount_eur": 5.00, "direction": "expense"}
	]`

	drafts, err := DecodeDrafts(raw)
	if err != nil {
		t.Fatalf("DecodeDrafts failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0].Description != "ok" {
		t.Errorf("description = %q, want %q", drafts[0].Description, "ok")
	}
}

func TestDecodeDrafts_Malformed(t *testing.T) {
	if _, err := DecodeDrafts("the model refused"); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}
