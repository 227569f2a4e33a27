package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

func TestPostgresImportRepository_CreateImportJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	job := &ImportJob{
		UserID: uuid.New(),
		FileID: uuid.New(),
		Format: "bulbank",
		Status: "pending",
	}

	mock.ExpectExec("INSERT INTO import_jobs").
		WithArgs(pgxmock.AnyArg(), job.UserID, job.FileID, "bulbank", "pending", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPostgresImportRepository(mock)
	if err := repo.CreateImportJob(context.Background(), job); err != nil {
		t.Fatalf("CreateImportJob: %v", err)
	}
	if job.ID == uuid.Nil {
		t.Fatal("expected generated job id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_GetImportJobByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "file_id", "format", "status", "error_message",
		"rows_total", "rows_imported", "rows_failed",
		"requested_at", "started_at", "finished_at",
	})
	mock.ExpectQuery("SELECT id, user_id, file_id, format").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(rows)

	repo := NewPostgresImportRepository(mock)
	job, err := repo.GetImportJobByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetImportJobByID: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_FinishImportJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	jobID := uuid.New()
	mock.ExpectExec("UPDATE import_jobs SET").
		WithArgs(jobID, "succeeded", 12, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewPostgresImportRepository(mock)
	if err := repo.FinishImportJob(context.Background(), jobID, "succeeded", 12, 1, nil); err != nil {
		t.Fatalf("FinishImportJob: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_ExistingKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	userID := uuid.New()
	posted := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"posted_at", "description", "amount_minor", "direction"}).
		AddRow(posted, "KAUFLAND SOFIA", int64(-980), "expense").
		AddRow(posted, "Transfer from Jane Doe", int64(12000), "income")
	mock.ExpectQuery("SELECT posted_at, description, amount_minor, direction").
		WithArgs(userID).
		WillReturnRows(rows)

	repo := NewPostgresImportRepository(mock)
	keys, err := repo.ExistingKeys(context.Background(), userID)
	if err != nil {
		t.Fatalf("ExistingKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}

	want := statement.TransactionDraft{
		Date:        posted,
		Description: "KAUFLAND SOFIA",
		AmountCents: 980,
		Direction:   statement.DirectionExpense,
	}
	if _, ok := keys[want.Key()]; !ok {
		t.Errorf("missing key %q in %v", want.Key(), keys)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_GetMappingByFingerprint_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "user_id", "fingerprint", "bank_name", "delimiter", "skip_lines", "date_format",
		"date_col", "desc_col", "amount_col", "debit_col", "credit_col", "type_col",
		"created_at", "updated_at",
	})
	mock.ExpectQuery("SELECT id, user_id, fingerprint").
		WithArgs("deadbeef", pgxmock.AnyArg()).
		WillReturnRows(rows)

	repo := NewPostgresImportRepository(mock)
	mapping, err := repo.GetMappingByFingerprint(context.Background(), "deadbeef", nil)
	if err != nil {
		t.Fatalf("GetMappingByFingerprint: %v", err)
	}
	if mapping != nil {
		t.Fatalf("expected nil mapping, got %+v", mapping)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
