package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opledger/internal/audit"
	"opledger/internal/config"
)

type migrationStep struct {
	Name string
	SQL  string
}

var postgresSteps = []migrationStep{
	{
		Name: "create_table_operation_logs",
		SQL: `CREATE TABLE IF NOT EXISTS operation_logs (
  id               UUID        PRIMARY KEY,
  operation_type   TEXT        NOT NULL,
  operation_id     TEXT        NOT NULL,
  endpoint         TEXT        NOT NULL DEFAULT '',
  method           TEXT        NOT NULL DEFAULT '',
  request_payload  JSONB,
  response_payload JSONB,
  response_code    INTEGER,
  status           TEXT        NOT NULL CHECK (status IN ('pending', 'success', 'failed', 'retrying')),
  retry_count      INTEGER     NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
  max_retries      INTEGER     NOT NULL CHECK (max_retries > 0),
  next_retry_at    TIMESTAMPTZ,
  error_message    TEXT,
  metadata         JSONB,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  completed_at     TIMESTAMPTZ,
  version          BIGINT      NOT NULL DEFAULT 1,
  CHECK (retry_count <= max_retries),
  CHECK ((status = 'retrying') = (next_retry_at IS NOT NULL)),
  CHECK ((status IN ('success', 'failed')) = (completed_at IS NOT NULL))
);`,
	},
	{
		Name: "create_index_operation_logs_status_next_retry",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_operation_logs_status_next_retry ON operation_logs (status, next_retry_at);`,
	},
	{
		Name: "create_index_operation_logs_correlation",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_operation_logs_correlation ON operation_logs (operation_type, operation_id);`,
	},
	{
		Name: "create_index_operation_logs_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_operation_logs_created_at ON operation_logs (created_at);`,
	},
}

// SQLite keeps timestamps as unix nanoseconds so range predicates compare numerically.
var sqliteSteps = []migrationStep{
	{
		Name: "create_table_operation_logs",
		SQL: `CREATE TABLE IF NOT EXISTS operation_logs (
  id               TEXT    PRIMARY KEY,
  operation_type   TEXT    NOT NULL,
  operation_id     TEXT    NOT NULL,
  endpoint         TEXT    NOT NULL DEFAULT '',
  method           TEXT    NOT NULL DEFAULT '',
  request_payload  TEXT,
  response_payload TEXT,
  response_code    INTEGER,
  status           TEXT    NOT NULL CHECK (status IN ('pending', 'success', 'failed', 'retrying')),
  retry_count      INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
  max_retries      INTEGER NOT NULL CHECK (max_retries > 0),
  next_retry_at    INTEGER,
  error_message    TEXT,
  metadata         TEXT,
  created_at       INTEGER NOT NULL,
  updated_at       INTEGER NOT NULL,
  completed_at     INTEGER,
  version          INTEGER NOT NULL DEFAULT 1,
  CHECK (retry_count <= max_retries)
);`,
	},
	{
		Name: "create_index_operation_logs_status_next_retry",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_operation_logs_status_next_retry ON operation_logs (status, next_retry_at);`,
	},
	{
		Name: "create_index_operation_logs_correlation",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_operation_logs_correlation ON operation_logs (operation_type, operation_id);`,
	},
	{
		Name: "create_index_operation_logs_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_operation_logs_created_at ON operation_logs (created_at);`,
	},
}

var sentinelQueries = map[string]string{
	config.DriverPostgres: "SELECT to_regclass('public.operation_logs') IS NOT NULL",
	config.DriverSQLite:   "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'operation_logs'",
}

func stepsFor(driver string) ([]migrationStep, string, error) {
	if driver == "" {
		driver = config.DriverPostgres
	}
	q, ok := sentinelQueries[driver]
	if !ok {
		return nil, "", fmt.Errorf("no migrations for driver %q", driver)
	}
	if driver == config.DriverSQLite {
		return sqliteSteps, q, nil
	}
	return postgresSteps, q, nil
}

// EnsureMigrated checks if the 'operation_logs' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, driver string, sink audit.Sink, dbHost string) error {
	sink = audit.OrNop(sink)
	start := time.Now()

	steps, sentinel, err := stepsFor(driver)
	if err != nil {
		return err
	}

	sink.Record(ctx, audit.LevelInfo, "db_migration_check", map[string]any{
		"component": "database",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	if err := db.QueryRowContext(ctx, sentinel).Scan(&exists); err != nil {
		sink.Record(ctx, audit.LevelError, "db_migration_failed", map[string]any{
			"component":     "database",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		sink.Record(ctx, audit.LevelInfo, "db_migration_skip", map[string]any{
			"component":   "database",
			"status":      "success",
			"detail":      "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			sink.Record(ctx, audit.LevelError, "db_migration_failed", map[string]any{
				"component":        "database",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		sink.Record(ctx, audit.LevelInfo, "db_migration_step", map[string]any{
			"component":        "database",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	sink.Record(ctx, audit.LevelInfo, "db_migration_success", map[string]any{
		"component":   "database",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
