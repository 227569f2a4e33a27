// Package repository provides data access for import-related entities.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// BankMapping represents a learned CSV/TSV layout configuration, keyed by
// the header fingerprint so re-uploads of the same bank's export skip the
// column-detection step.
type BankMapping struct {
	ID          uuid.UUID  `db:"id"`
	UserID      *uuid.UUID `db:"user_id"` // NULL = global template
	Fingerprint string     `db:"fingerprint"`
	BankName    *string    `db:"bank_name"`
	Delimiter   string     `db:"delimiter"`
	SkipLines   int        `db:"skip_lines"`
	DateFormat  string     `db:"date_format"`
	DateCol     int        `db:"date_col"`
	DescCol     int        `db:"desc_col"`
	AmountCol   *int       `db:"amount_col"`
	DebitCol    *int       `db:"debit_col"`
	CreditCol   *int       `db:"credit_col"`
	TypeCol     *int       `db:"type_col"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// StatementFile represents an uploaded statement document
type StatementFile struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	Format         string    `db:"format"` // "tabular-csv", "revolut", "bulbank", "ai"
	MimeType       string    `db:"mime_type"`
	FileName       string    `db:"file_name"`
	SizeBytes      int64     `db:"size_bytes"`
	ChecksumSHA256 *string   `db:"checksum_sha256"`
	CreatedAt      time.Time `db:"created_at"`
}

// ImportJob tracks the status of one statement import
type ImportJob struct {
	ID           uuid.UUID  `db:"id"`
	UserID       uuid.UUID  `db:"user_id"`
	FileID       uuid.UUID  `db:"file_id"`
	Format       string     `db:"format"`
	Status       string     `db:"status"` // "pending", "running", "succeeded", "failed"
	ErrorMessage *string    `db:"error_message"`
	RowsTotal    int        `db:"rows_total"`
	RowsImported int        `db:"rows_imported"`
	RowsFailed   int        `db:"rows_failed"`
	RequestedAt  time.Time  `db:"requested_at"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

// ImportRepository defines data access operations for imports
type ImportRepository interface {
	// Bank Mappings
	GetMappingByFingerprint(ctx context.Context, fingerprint string, userID *uuid.UUID) (*BankMapping, error)
	CreateMapping(ctx context.Context, mapping *BankMapping) error

	// Statement Files
	CreateStatementFile(ctx context.Context, file *StatementFile) error
	GetStatementFileByID(ctx context.Context, id uuid.UUID) (*StatementFile, error)

	// Import Jobs
	CreateImportJob(ctx context.Context, job *ImportJob) error
	GetImportJobByID(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	FinishImportJob(ctx context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error

	// Transactions
	BulkInsertTransactions(ctx context.Context, userID uuid.UUID, fileID uuid.UUID, drafts []statement.TransactionDraft) (int, error)
	ExistingKeys(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
}
