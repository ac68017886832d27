// Command seed loads a JSON array of games into the catalogue database.
//
//	go run ./cmd/seed -file games.json
//
// DB_PATH (or the -db flag) selects the database; migrations run first, so
// seeding an empty path creates a fresh catalogue.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sakif/tabletop/internal/config"
	sqliteRepo "github.com/sakif/tabletop/internal/repository/sqlite"
	"github.com/sakif/tabletop/internal/service"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("reading .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defaultDB := os.Getenv("DB_PATH")
	if defaultDB == "" {
		defaultDB = config.DefaultDBPath
	}
	file := flag.String("file", "games.json", "JSON array of games to load")
	dbPath := flag.String("db", defaultDB, "SQLite database path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *file, *dbPath, logger); err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, file, dbPath string, logger *slog.Logger) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return err
	}
	db, err := sqliteRepo.New(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	catalog := service.NewCatalogService(db, db, db, logger)
	rep, err := seed(ctx, f, catalog, logger)
	logger.Info("seeding finished",
		slog.String("file", file),
		slog.Int("created", rep.Created),
		slog.Int("skipped", rep.Skipped),
	)
	return err
}
