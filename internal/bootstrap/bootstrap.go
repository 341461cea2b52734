// Package bootstrap assembles the ledger's runtime dependencies from config.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"opledger/internal/audit"
	"opledger/internal/config"
	"opledger/internal/database"
	"opledger/internal/database/migration"
	"opledger/internal/repository"
	"opledger/internal/repository/postgres"
	"opledger/internal/repository/sqlite"
	"opledger/internal/service"
	"opledger/internal/storage"
)

// Deps are the long-lived collaborators shared by the API server and the CLI.
type Deps struct {
	DB      *sql.DB
	Repo    repository.OperationRepository
	Store   storage.Storage
	Service service.OperationService
	Sink    audit.Sink
}

// Options toggles optional startup steps.
type Options struct {
	// SkipMigrate leaves the schema untouched.
	SkipMigrate bool
}

// NewRepository returns the repository implementation for driver.
func NewRepository(db *sql.DB, driver string) (repository.OperationRepository, error) {
	switch driver {
	case config.DriverPostgres, "":
		return postgres.NewOperationPostgres(db), nil
	case config.DriverSQLite:
		return sqlite.NewOperationSQLite(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Open connects to the database, applies migrations, connects object storage
// when configured and builds the operation service.
func Open(ctx context.Context, cfg *config.AppConfig, sink audit.Sink, opts Options) (*Deps, error) {
	sink = audit.OrNop(sink)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if !opts.SkipMigrate {
		if err := migration.EnsureMigrated(ctx, db, cfg.Database.Driver, sink, cfg.Database.Host); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	repo, err := NewRepository(db, cfg.Database.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	var store storage.Storage
	if cfg.MinIO.Enabled() {
		store, err = storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize object storage: %w", err)
		}
	} else {
		sink.Record(ctx, audit.LevelInfo, "archive_disabled", map[string]any{"reason": "MINIO_ENDPOINT not set"})
	}

	svc := service.NewOperationService(repo, store, service.Config{
		Sink:              sink,
		DefaultMaxRetries: cfg.Ledger.DefaultMaxRetries,
		ArchiveExpiry:     cfg.Ledger.ArchiveExpiry,
	})

	return &Deps{DB: db, Repo: repo, Store: store, Service: svc, Sink: sink}, nil
}

// Close releases the database pool.
func (d *Deps) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
