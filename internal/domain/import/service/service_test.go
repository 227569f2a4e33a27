package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/common"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/normalizer"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/repository"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/scan"
)

const revolutStatement = `Revolut Bank UAB
Account transactions from Jan 1, 2024 to Jan 31, 2024

Date          Description                Money out   Money in   Balance
Jan 5, 2024   Transfer from Jane Doe                 €120.00    €1,540.00
Jan 7, 2024   Payment to Coffee House
              Sofia center branch        €4.50                  €1,535.50

Balance summary
Closing balance €1,535.50
`

const bulbankStatement = `УНИКРЕДИТ БУЛБАНК АД
Извлечение по сметка BG80BNBG96611020345678 за период 01.01.2024 - 31.01.2024

05.01.2024  ПЛАЩАНЕ ПОС KAUFLAND СОФИЯ  Дт 19.17 BGN (9.80 EUR)
06.01.2024  ПРЕВОД ОТ ИВАН ПЕТРОВ  Кт 97.79 BGN (50.00 EUR)

Крайно салдо 1 234.56 BGN
`

func newTestService(repo repository.ImportRepository, ai DraftParser) *ImportService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImportService(repo, ai, logger)
}

func TestParseDocument_Revolut(t *testing.T) {
	svc := newTestService(&fakeImportRepo{}, nil)

	outcome, err := svc.ParseDocument(context.Background(), revolutStatement)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if outcome.Format != scan.FormatRevolut {
		t.Fatalf("format = %s, want %s", outcome.Format, scan.FormatRevolut)
	}
	if len(outcome.Drafts) != 2 {
		t.Fatalf("got %d drafts, want 2: %+v", len(outcome.Drafts), outcome.Drafts)
	}

	first := outcome.Drafts[0]
	if first.Direction != statement.DirectionIncome {
		t.Errorf("first direction = %s, want income", first.Direction)
	}
	if first.AmountCents != 12000 {
		t.Errorf("first amount = %d, want 12000", first.AmountCents)
	}
	if first.Description != "Transfer from Jane Doe" {
		t.Errorf("first description = %q", first.Description)
	}

	// The wrapped entry must come back as a single draft.
	second := outcome.Drafts[1]
	if second.Direction != statement.DirectionExpense {
		t.Errorf("second direction = %s, want expense", second.Direction)
	}
	if second.AmountCents != 450 {
		t.Errorf("second amount = %d, want 450", second.AmountCents)
	}
	if !strings.Contains(second.Description, "Coffee House") ||
		!strings.Contains(second.Description, "Sofia center branch") {
		t.Errorf("continuation lost: %q", second.Description)
	}
}

func TestParseDocument_Bulbank(t *testing.T) {
	svc := newTestService(&fakeImportRepo{}, nil)

	outcome, err := svc.ParseDocument(context.Background(), bulbankStatement)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if outcome.Format != scan.FormatBulbank {
		t.Fatalf("format = %s, want %s", outcome.Format, scan.FormatBulbank)
	}
	if len(outcome.Drafts) != 2 {
		t.Fatalf("got %d drafts, want 2: %+v", len(outcome.Drafts), outcome.Drafts)
	}

	// The EUR member of the BGN (EUR) pair is authoritative.
	first := outcome.Drafts[0]
	if first.AmountCents != 980 {
		t.Errorf("first amount = %d EUR cents, want 980", first.AmountCents)
	}
	if first.Direction != statement.DirectionExpense {
		t.Errorf("first direction = %s, want expense", first.Direction)
	}
	if first.Description != "ПЛАЩАНЕ ПОС KAUFLAND СОФИЯ" {
		t.Errorf("first description = %q", first.Description)
	}

	second := outcome.Drafts[1]
	if second.AmountCents != 5000 {
		t.Errorf("second amount = %d, want 5000", second.AmountCents)
	}
	if second.Direction != statement.DirectionIncome {
		t.Errorf("second direction = %s, want income", second.Direction)
	}
}

func TestParseDocument_Idempotent(t *testing.T) {
	svc := newTestService(&fakeImportRepo{}, nil)

	a, err := svc.ParseDocument(context.Background(), bulbankStatement)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	b, err := svc.ParseDocument(context.Background(), bulbankStatement)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if !reflect.DeepEqual(a.Drafts, b.Drafts) {
		t.Fatalf("parsing is not idempotent:\n%+v\n%+v", a.Drafts, b.Drafts)
	}
}

func TestParseDocument_DuplicateLineCollapsed(t *testing.T) {
	svc := newTestService(&fakeImportRepo{}, nil)

	// Re-exported statements sometimes repeat a line verbatim; the repeat
	// must collapse so the output matches the clean document exactly.
	line := "05.01.2024  ПЛАЩАНЕ ПОС KAUFLAND СОФИЯ  Дт 19.17 BGN (9.80 EUR)"
	doubled := strings.Replace(bulbankStatement, line, line+"\n"+line, 1)

	base, err := svc.ParseDocument(context.Background(), bulbankStatement)
	if err != nil {
		t.Fatalf("clean parse: %v", err)
	}
	dup, err := svc.ParseDocument(context.Background(), doubled)
	if err != nil {
		t.Fatalf("doubled parse: %v", err)
	}
	if len(dup.Drafts) != 2 {
		t.Fatalf("got %d drafts, want 2: %+v", len(dup.Drafts), dup.Drafts)
	}
	if !reflect.DeepEqual(base.Drafts, dup.Drafts) {
		t.Fatalf("duplicate line changed the output:\n%+v\n%+v", base.Drafts, dup.Drafts)
	}
}

func TestParseDocument_TooShort(t *testing.T) {
	svc := newTestService(&fakeImportRepo{}, nil)

	_, err := svc.ParseDocument(context.Background(), "Bulbank Дт Кт")
	if err == nil {
		t.Fatal("expected error for too-short text")
	}
}

func TestParseDocument_AIFallback(t *testing.T) {
	want := []statement.TransactionDraft{
		{
			Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			Description: "Recovered by model",
			AmountCents: 500,
			Direction:   statement.DirectionExpense,
		},
	}
	ai := &fakeDraftParser{drafts: want}
	svc := newTestService(&fakeImportRepo{}, ai)

	// Long enough, but no layout any scanner or the tabular path recognizes.
	text := strings.Repeat("scanned noise without any structure at all ", 5)
	outcome, err := svc.ParseDocument(context.Background(), text)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if !outcome.UsedAI {
		t.Fatal("expected AI fallback to be used")
	}
	if !reflect.DeepEqual(outcome.Drafts, want) {
		t.Fatalf("drafts = %+v, want %+v", outcome.Drafts, want)
	}

	svcNoAI := newTestService(&fakeImportRepo{}, nil)
	if _, err := svcNoAI.ParseDocument(context.Background(), text); err == nil {
		t.Fatal("expected error without AI fallback")
	}
}

func TestImportRows_BatchesAndDedup(t *testing.T) {
	rows := make([]normalizer.Row, 0, importBatchSize+6)
	for i := 0; i < importBatchSize+5; i++ {
		rows = append(rows, normalizer.Row{
			"Date":        "13/02/2024",
			"Description": fmt.Sprintf("Merchant %d", i),
			"Amount":      "-1.00",
		})
	}
	// One row that fails soft normalization.
	rows = append(rows, normalizer.Row{"Description": "no date or amount"})

	repo := &fakeImportRepo{}
	svc := newTestService(repo, nil)

	result, err := svc.ImportRows(context.Background(), uuid.New(), rows)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if result.RowsImported != importBatchSize+5 {
		t.Fatalf("imported = %d, want %d", result.RowsImported, importBatchSize+5)
	}
	if result.RowsFailed != 1 {
		t.Fatalf("failed = %d, want 1", result.RowsFailed)
	}

	sizes := repo.bulkSizes()
	if len(sizes) != 2 || sizes[0] != importBatchSize || sizes[1] != 5 {
		t.Fatalf("bulk insert sizes = %v", sizes)
	}

	// Input order survives concurrent normalization.
	if repo.inserted[0].Description != "Merchant 0" {
		t.Fatalf("first inserted draft = %q", repo.inserted[0].Description)
	}
}

func TestImportRows_HistoryDedup(t *testing.T) {
	existing := statement.TransactionDraft{
		Date:        time.Date(2024, 2, 13, 0, 0, 0, 0, time.UTC),
		Description: "KAUFLAND",
		AmountCents: 2550,
		Direction:   statement.DirectionExpense,
	}
	repo := &fakeImportRepo{
		existingKeys: map[string]struct{}{existing.Key(): {}},
	}
	svc := newTestService(repo, nil)

	rows := []normalizer.Row{
		{"Date": "13/02/2024", "Description": "KAUFLAND", "Amount": "-25.50"},
		{"Date": "14/02/2024", "Description": "NEW MERCHANT", "Amount": "-10.00"},
	}

	result, err := svc.ImportRows(context.Background(), uuid.New(), rows)
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if result.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", result.Duplicates)
	}
	if result.RowsImported != 1 {
		t.Fatalf("imported = %d, want 1", result.RowsImported)
	}
	if repo.inserted[0].Description != "NEW MERCHANT" {
		t.Fatalf("surviving draft = %q", repo.inserted[0].Description)
	}
}

func TestImportFile_Bulbank(t *testing.T) {
	repo := &fakeImportRepo{}
	svc := newTestService(repo, nil)

	result, err := svc.ImportFile(context.Background(), uuid.New(), "statement.txt", []byte(bulbankStatement))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if result.Format != scan.FormatBulbank {
		t.Fatalf("format = %s", result.Format)
	}
	if result.RowsImported != 2 {
		t.Fatalf("imported = %d, want 2", result.RowsImported)
	}
	if repo.files != 1 {
		t.Fatalf("file records = %d, want 1", repo.files)
	}
	if repo.finishedStatus != "succeeded" {
		t.Fatalf("job status = %q", repo.finishedStatus)
	}
}

func TestImportFile_Empty(t *testing.T) {
	svc := newTestService(&fakeImportRepo{}, nil)

	_, err := svc.ImportFile(context.Background(), uuid.New(), "empty.txt", nil)
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

// fakeImportRepo records repository calls in memory.
type fakeImportRepo struct {
	mu             sync.Mutex
	bulkInserts    []int
	inserted       []statement.TransactionDraft
	existingKeys   map[string]struct{}
	files          int
	finishedStatus string
}

func (f *fakeImportRepo) GetMappingByFingerprint(ctx context.Context, fingerprint string, userID *uuid.UUID) (*repository.BankMapping, error) {
	return nil, nil
}

func (f *fakeImportRepo) CreateMapping(ctx context.Context, mapping *repository.BankMapping) error {
	return nil
}

func (f *fakeImportRepo) CreateStatementFile(ctx context.Context, file *repository.StatementFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	f.files++
	return nil
}

func (f *fakeImportRepo) GetStatementFileByID(ctx context.Context, id uuid.UUID) (*repository.StatementFile, error) {
	return nil, nil
}

func (f *fakeImportRepo) CreateImportJob(ctx context.Context, job *repository.ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return nil
}

func (f *fakeImportRepo) GetImportJobByID(ctx context.Context, id uuid.UUID) (*repository.ImportJob, error) {
	return nil, nil
}

func (f *fakeImportRepo) FinishImportJob(ctx context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishedStatus = status
	return nil
}

func (f *fakeImportRepo) BulkInsertTransactions(ctx context.Context, userID uuid.UUID, fileID uuid.UUID, drafts []statement.TransactionDraft) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkInserts = append(f.bulkInserts, len(drafts))
	f.inserted = append(f.inserted, drafts...)
	return len(drafts), nil
}

func (f *fakeImportRepo) ExistingKeys(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	if f.existingKeys == nil {
		return map[string]struct{}{}, nil
	}
	return f.existingKeys, nil
}

func (f *fakeImportRepo) bulkSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.bulkInserts))
	copy(sizes, f.bulkInserts)
	return sizes
}

type fakeDraftParser struct {
	drafts []statement.TransactionDraft
	err    error
}

func (f *fakeDraftParser) ParseText(ctx context.Context, text string) ([]statement.TransactionDraft, error) {
	return f.drafts, f.err
}
