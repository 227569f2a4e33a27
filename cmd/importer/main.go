// The importer command parses a bank statement file into transaction drafts.
// Without -save it prints the drafts as JSON; with -save it persists them for
// the given user, running both deduplication passes against the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/aiparse"
	importrepo "github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/repository"
	importservice "github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/import/service"
	"github.com/SvetoslavVachkov/Diploma-sub000/pkg/config"
	"github.com/SvetoslavVachkov/Diploma-sub000/pkg/db"
)

func main() {
	var (
		filePath = flag.String("file", "", "statement file to parse")
		userFlag = flag.String("user", "", "user id (required with -save)")
		save     = flag.Bool("save", false, "persist parsed transactions to the database")
		useAI    = flag.Bool("ai", false, "enable model-assisted fallback parsing")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -file <statement> [-save -user <uuid>] [-ai]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *filePath, *userFlag, *save, *useAI); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, filePath, userFlag string, save, useAI bool) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read statement file: %w", err)
	}

	var ai importservice.DraftParser
	if useAI {
		parser, err := aiparse.New(ctx, cfg.Gemini.Model)
		if err != nil {
			return fmt.Errorf("init ai parser: %w", err)
		}
		ai = parser
	}

	if !save {
		svc := importservice.NewImportService(nil, ai, logger)
		outcome, err := svc.ParseDocument(ctx, string(data))
		if err != nil {
			return err
		}
		return printJSON(outcome)
	}

	userID, err := uuid.Parse(userFlag)
	if err != nil {
		return fmt.Errorf("invalid -user: %w", err)
	}

	database, err := db.New(db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return err
	}

	repo := importrepo.NewPostgresImportRepository(database.Pool)
	svc := importservice.NewImportService(repo, ai, logger)

	result, err := svc.ImportFile(ctx, userID, filepath.Base(filePath), data)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
