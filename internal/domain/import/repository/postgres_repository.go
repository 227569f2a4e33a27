package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/common"
	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

// DB is the slice of pgxpool.Pool the repository uses; pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL-backed import repository
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// GetMappingByFingerprint looks up a bank mapping by its fingerprint
// First checks user-specific mappings, then falls back to global templates
func (r *PostgresImportRepository) GetMappingByFingerprint(ctx context.Context, fingerprint string, userID *uuid.UUID) (*BankMapping, error) {
	query := `
		SELECT id, user_id, fingerprint, bank_name, delimiter, skip_lines, date_format,
		       date_col, desc_col, amount_col, debit_col, credit_col, type_col,
		       created_at, updated_at
		FROM bank_mappings
		WHERE fingerprint = $1 AND (user_id = $2 OR user_id IS NULL)
		ORDER BY user_id NULLS LAST
		LIMIT 1
	`

	var mapping BankMapping
	err := r.db.QueryRow(ctx, query, fingerprint, userID).Scan(
		&mapping.ID, &mapping.UserID, &mapping.Fingerprint, &mapping.BankName,
		&mapping.Delimiter, &mapping.SkipLines, &mapping.DateFormat,
		&mapping.DateCol, &mapping.DescCol, &mapping.AmountCol,
		&mapping.DebitCol, &mapping.CreditCol, &mapping.TypeCol,
		&mapping.CreatedAt, &mapping.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping by fingerprint: %w", err)
	}

	return &mapping, nil
}

// CreateMapping inserts a new bank mapping
func (r *PostgresImportRepository) CreateMapping(ctx context.Context, mapping *BankMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}

	query := `
		INSERT INTO bank_mappings (
			id, user_id, fingerprint, bank_name, delimiter, skip_lines, date_format,
			date_col, desc_col, amount_col, debit_col, credit_col, type_col
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		mapping.ID, mapping.UserID, mapping.Fingerprint, mapping.BankName,
		mapping.Delimiter, mapping.SkipLines, mapping.DateFormat,
		mapping.DateCol, mapping.DescCol, mapping.AmountCol,
		mapping.DebitCol, mapping.CreditCol, mapping.TypeCol,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("mapping for fingerprint %s: %w", mapping.Fingerprint, common.ErrConflict)
		}
		return fmt.Errorf("failed to create bank mapping: %w", err)
	}

	return nil
}

// CreateStatementFile inserts a new statement file record
func (r *PostgresImportRepository) CreateStatementFile(ctx context.Context, file *StatementFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}

	query := `
		INSERT INTO statement_files (id, user_id, format, mime_type, file_name, size_bytes, checksum_sha256)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		file.ID, file.UserID, file.Format, file.MimeType, file.FileName,
		file.SizeBytes, file.ChecksumSHA256,
	)
	if err != nil {
		return fmt.Errorf("failed to create statement file: %w", err)
	}

	return nil
}

// GetStatementFileByID retrieves a statement file by ID
func (r *PostgresImportRepository) GetStatementFileByID(ctx context.Context, id uuid.UUID) (*StatementFile, error) {
	query := `
		SELECT id, user_id, format, mime_type, file_name, size_bytes, checksum_sha256, created_at
		FROM statement_files WHERE id = $1
	`

	var file StatementFile
	err := r.db.QueryRow(ctx, query, id).Scan(
		&file.ID, &file.UserID, &file.Format, &file.MimeType, &file.FileName,
		&file.SizeBytes, &file.ChecksumSHA256, &file.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("statement file %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement file: %w", err)
	}

	return &file, nil
}

// CreateImportJob creates a new import job
func (r *PostgresImportRepository) CreateImportJob(ctx context.Context, job *ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	query := `
		INSERT INTO import_jobs (id, user_id, file_id, format, status, rows_total)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.UserID, job.FileID, job.Format, job.Status, job.RowsTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}

	return nil
}

// GetImportJobByID retrieves an import job by ID
func (r *PostgresImportRepository) GetImportJobByID(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	query := `
		SELECT id, user_id, file_id, format, status, error_message,
		       rows_total, rows_imported, rows_failed,
		       requested_at, started_at, finished_at
		FROM import_jobs WHERE id = $1
	`

	var job ImportJob
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.FileID, &job.Format, &job.Status,
		&job.ErrorMessage, &job.RowsTotal, &job.RowsImported, &job.RowsFailed,
		&job.RequestedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}

	return &job, nil
}

// FinishImportJob marks an import job as complete
func (r *PostgresImportRepository) FinishImportJob(ctx context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error {
	query := `
		UPDATE import_jobs SET
			status = $2, rows_imported = $3, rows_failed = $4,
			error_message = $5, finished_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id, status, rowsImported, rowsFailed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to finish import job: %w", err)
	}
	return nil
}

// BulkInsertTransactions inserts drafts efficiently via COPY. Amounts are
// stored signed: negative for expenses, positive for income.
func (r *PostgresImportRepository) BulkInsertTransactions(ctx context.Context, userID uuid.UUID, fileID uuid.UUID, drafts []statement.TransactionDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	columns := []string{"id", "user_id", "file_id", "posted_at", "description", "amount_minor", "currency_code", "direction", "external_id"}

	copyCount, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"transactions"},
		columns,
		pgx.CopyFromSlice(len(drafts), func(i int) ([]any, error) {
			d := drafts[i]
			return []any{
				uuid.New(),
				userID,
				fileID,
				d.Date,
				d.Description,
				d.SignedCents(),
				"EUR",
				string(d.Direction),
				externalID(d),
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert transactions: %w", err)
	}

	return int(copyCount), nil
}

// ExistingKeys returns the composite dedup keys of every transaction already
// imported for the user.
func (r *PostgresImportRepository) ExistingKeys(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	query := `
		SELECT posted_at, description, amount_minor, direction
		FROM transactions WHERE user_id = $1
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing transactions: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var d statement.TransactionDraft
		var minor int64
		var dir string
		if err := rows.Scan(&d.Date, &d.Description, &minor, &dir); err != nil {
			return nil, fmt.Errorf("failed to scan existing transaction: %w", err)
		}
		if minor < 0 {
			minor = -minor
		}
		d.AmountCents = minor
		d.Direction = statement.Direction(dir)
		keys[d.Key()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read existing transactions: %w", err)
	}

	return keys, nil
}

// externalID derives a stable identifier from the draft's dedup key.
func externalID(d statement.TransactionDraft) string {
	hash := sha256.Sum256([]byte(d.Key()))
	return hex.EncodeToString(hash[:16])
}
