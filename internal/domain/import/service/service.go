// Package service orchestrates statement parsing and transaction imports:
// format detection, the scanner or tabular path, the AI fallback, both
// deduplication passes and batched persistence. Category classification
// happens downstream of this pipeline; drafts leave it uncategorized.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/common"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/dedup"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/normalizer"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/repository"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/sniffer"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/tabular"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/money"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement/scan"
	"github.com/SvetoslavVachkov/Diploma-sub000/pkg/observability"
)

const importBatchSize = 500

// DraftParser is the AI fallback; nil disables it.
type DraftParser interface {
	ParseText(ctx context.Context, text string) ([]statement.TransactionDraft, error)
}

// ParseOutcome is the result of parsing one document's text.
type ParseOutcome struct {
	Format scan.Format
	Drafts []statement.TransactionDraft
	UsedAI bool
}

// ImportResult contains the result of an import operation
type ImportResult struct {
	JobID        uuid.UUID
	Format       scan.Format
	RowsTotal    int
	RowsImported int
	RowsFailed   int
	Duplicates   int
}

// AnalyzeResult contains the result of analyzing an uploaded tabular file
type AnalyzeResult struct {
	FileConfig        *sniffer.FileConfig
	ColumnSuggestions *sniffer.ColumnSuggestions
	MappingFound      bool
	Mapping           *repository.BankMapping
}

// ImportService orchestrates parsing and import operations
type ImportService struct {
	repo   repository.ImportRepository
	ai     DraftParser
	logger *slog.Logger
}

// NewImportService creates a new import service. The AI parser may be nil;
// documents no scanner recognizes then fail instead of falling back.
func NewImportService(repo repository.ImportRepository, ai DraftParser, logger *slog.Logger) *ImportService {
	return &ImportService{
		repo:   repo,
		ai:     ai,
		logger: logger,
	}
}

// ParseDocument turns extracted statement text into deduplicated drafts.
// Parsing the same text twice yields the same drafts.
func (s *ImportService) ParseDocument(ctx context.Context, text string) (*ParseOutcome, error) {
	start := time.Now()
	format := scan.Detect(text)

	ctx, span := observability.StartSpan(ctx, "statement.parse",
		attribute.String("statement.format", string(format)))

	outcome, err := s.parseByFormat(ctx, format, text)
	observability.EndSpan(span, err)
	if err != nil {
		observability.ObserveParse(string(format), "error", 0, start)
		return nil, err
	}

	before := len(outcome.Drafts)
	outcome.Drafts = dedup.Collapse(outcome.Drafts)
	if dropped := before - len(outcome.Drafts); dropped > 0 {
		observability.DuplicatesDropped.WithLabelValues("pass").Add(float64(dropped))
	}

	observability.ObserveParse(string(format), "ok", len(outcome.Drafts), start)
	s.logger.Info("parsed statement document",
		"format", format, "drafts", len(outcome.Drafts), "used_ai", outcome.UsedAI)
	return outcome, nil
}

func (s *ImportService) parseByFormat(ctx context.Context, format scan.Format, text string) (*ParseOutcome, error) {
	if scanner, ok := scan.ForFormat(format); ok {
		drafts, err := scanner.Scan(text)
		if err == nil {
			return &ParseOutcome{Format: format, Drafts: drafts}, nil
		}
		if errors.Is(err, statement.ErrTextTooShort) {
			return nil, err
		}
		// A bank-labeled document a scanner cannot read goes to the fallback.
		return s.parseWithAI(ctx, format, text, err)
	}

	res, err := tabular.Parse([]byte(text), money.DeriveContext(text))
	if err != nil || res.ParsedRows == 0 {
		if err == nil {
			err = statement.ErrNoTransactionsFound
		}
		return s.parseWithAI(ctx, format, text, err)
	}
	if res.SkippedRows > 0 {
		observability.RowsSkipped.WithLabelValues(string(format)).Add(float64(res.SkippedRows))
	}
	return &ParseOutcome{Format: format, Drafts: res.Drafts}, nil
}

func (s *ImportService) parseWithAI(ctx context.Context, format scan.Format, text string, cause error) (*ParseOutcome, error) {
	if s.ai == nil {
		return nil, cause
	}
	s.logger.Warn("falling back to model-assisted parsing", "format", format, "cause", cause)

	drafts, err := s.ai.ParseText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ai fallback after %w: %v", cause, err)
	}
	return &ParseOutcome{Format: format, Drafts: drafts, UsedAI: true}, nil
}

// ImportRows normalizes already-tabular rows and persists them for the user.
// Rows are normalized concurrently; order of the surviving drafts follows the
// input order.
func (s *ImportService) ImportRows(ctx context.Context, userID uuid.UUID, rows []normalizer.Row) (*ImportResult, error) {
	ex := statement.NewExchangeContext()

	drafts := make([]statement.TransactionDraft, len(rows))
	ok := make([]bool, len(rows))

	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 1 {
		workerCount = 1
	}
	jobs := make(chan int, workerCount*4)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				drafts[i], ok[i] = normalizer.NormalizeRow(rows[i], ex)
			}
		}()
	}
	for i := range rows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	kept := make([]statement.TransactionDraft, 0, len(rows))
	failed := 0
	for i := range rows {
		if ok[i] {
			kept = append(kept, drafts[i])
		} else {
			failed++
		}
	}

	return s.persist(ctx, userID, uuid.Nil, scan.FormatTabularCSV, kept, failed)
}

// ImportFile parses a whole uploaded document and persists the result under
// an import job.
func (s *ImportService) ImportFile(ctx context.Context, userID uuid.UUID, fileName string, data []byte) (*ImportResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrBadRequest)
	}

	outcome, err := s.ParseDocument(ctx, string(data))
	if err != nil {
		return nil, err
	}

	checksum := sha256.Sum256(data)
	checksumHex := hex.EncodeToString(checksum[:])
	file := &repository.StatementFile{
		UserID:         userID,
		Format:         string(outcome.Format),
		MimeType:       "text/plain",
		FileName:       fileName,
		SizeBytes:      int64(len(data)),
		ChecksumSHA256: &checksumHex,
	}
	if err := s.repo.CreateStatementFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	return s.persist(ctx, userID, file.ID, outcome.Format, outcome.Drafts, 0)
}

// persist runs the history dedup pass and writes the survivors in batches.
func (s *ImportService) persist(ctx context.Context, userID, fileID uuid.UUID, format scan.Format, drafts []statement.TransactionDraft, rowsFailed int) (*ImportResult, error) {
	ctx, span := observability.StartSpan(ctx, "statement.persist")
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	job := &repository.ImportJob{
		UserID:    userID,
		FileID:    fileID,
		Format:    string(format),
		Status:    "running",
		RowsTotal: len(drafts) + rowsFailed,
	}
	if err := s.repo.CreateImportJob(ctx, job); err != nil {
		spanErr = err
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	drafts = dedup.Collapse(drafts)

	existing, err := s.repo.ExistingKeys(ctx, userID)
	if err != nil {
		spanErr = err
		return nil, fmt.Errorf("failed to load existing keys: %w", err)
	}
	before := len(drafts)
	drafts = dedup.AgainstHistory(drafts, existing)
	duplicates := before - len(drafts)
	if duplicates > 0 {
		observability.DuplicatesDropped.WithLabelValues("history").Add(float64(duplicates))
	}

	rowsImported := 0
	for start := 0; start < len(drafts); start += importBatchSize {
		end := start + importBatchSize
		if end > len(drafts) {
			end = len(drafts)
		}
		n, err := s.repo.BulkInsertTransactions(ctx, userID, fileID, drafts[start:end])
		if err != nil {
			spanErr = err
			errMsg := err.Error()
			if finishErr := s.repo.FinishImportJob(ctx, job.ID, "failed", rowsImported, rowsFailed, &errMsg); finishErr != nil {
				s.logger.Warn("failed to finish import job", "error", finishErr)
			}
			return nil, fmt.Errorf("failed to insert transactions: %w", err)
		}
		rowsImported += n
	}

	if err := s.repo.FinishImportJob(ctx, job.ID, "succeeded", rowsImported, rowsFailed, nil); err != nil {
		s.logger.Warn("failed to finish import job", "error", err)
	}

	s.logger.Info("import finished",
		"job_id", job.ID, "imported", rowsImported, "failed", rowsFailed, "duplicates", duplicates)

	return &ImportResult{
		JobID:        job.ID,
		Format:       format,
		RowsTotal:    len(drafts) + rowsFailed + duplicates,
		RowsImported: rowsImported,
		RowsFailed:   rowsFailed,
		Duplicates:   duplicates,
	}, nil
}

// AnalyzeFile inspects an uploaded CSV/TSV file and looks for a learned
// column mapping matching its header fingerprint.
func (s *ImportService) AnalyzeFile(ctx context.Context, userID uuid.UUID, fileData []byte) (*AnalyzeResult, error) {
	config, err := sniffer.DetectConfig(fileData)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}

	suggestions := sniffer.SuggestColumns(config.Headers)

	mapping, err := s.repo.GetMappingByFingerprint(ctx, config.Fingerprint, &userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup mapping: %w", err)
	}

	return &AnalyzeResult{
		FileConfig:        config,
		ColumnSuggestions: suggestions,
		MappingFound:      mapping != nil,
		Mapping:           mapping,
	}, nil
}

// SaveMapping stores a confirmed column layout so future uploads with the
// same fingerprint skip detection.
func (s *ImportService) SaveMapping(ctx context.Context, userID uuid.UUID, config *sniffer.FileConfig, cols *sniffer.ColumnSuggestions, bankName string) error {
	bankNamePtr := &bankName
	if bankName == "" {
		bankNamePtr = nil
	}

	optional := func(v int) *int {
		if v < 0 {
			return nil
		}
		return &v
	}

	m := &repository.BankMapping{
		UserID:      &userID,
		Fingerprint: config.Fingerprint,
		BankName:    bankNamePtr,
		Delimiter:   string(config.Delimiter),
		SkipLines:   config.SkipLines,
		DateFormat:  normalizer.DetectDateFormat(dateSamples(config, cols)),
		DateCol:     cols.DateCol,
		DescCol:     cols.DescCol,
		AmountCol:   optional(cols.AmountCol),
		DebitCol:    optional(cols.DebitCol),
		CreditCol:   optional(cols.CreditCol),
		TypeCol:     optional(cols.TypeCol),
	}

	return s.repo.CreateMapping(ctx, m)
}

func dateSamples(config *sniffer.FileConfig, cols *sniffer.ColumnSuggestions) []string {
	if cols.DateCol < 0 {
		return nil
	}
	var samples []string
	for _, row := range config.SampleRows {
		if cols.DateCol < len(row) {
			samples = append(samples, row[cols.DateCol])
		}
	}
	return samples
}
