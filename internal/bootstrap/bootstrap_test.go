package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opledger/internal/audit"
	"opledger/internal/config"
	"opledger/internal/model"
	"opledger/internal/repository/postgres"
	"opledger/internal/repository/sqlite"
	"opledger/internal/service"
)

func TestNewRepository(t *testing.T) {
	repo, err := NewRepository(nil, config.DriverPostgres)
	require.NoError(t, err)
	assert.IsType(t, &postgres.OperationPostgres{}, repo)

	repo, err = NewRepository(nil, "")
	require.NoError(t, err)
	assert.IsType(t, &postgres.OperationPostgres{}, repo)

	repo, err = NewRepository(nil, config.DriverSQLite)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.OperationSQLite{}, repo)

	_, err = NewRepository(nil, "mysql")
	assert.EqualError(t, err, "unsupported database driver: mysql")
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.AppConfig{
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "nested", "ledger.db"),
		},
		Ledger: config.LedgerConfig{DefaultMaxRetries: 2, ArchiveExpiry: time.Minute},
	}

	deps, err := Open(ctx, cfg, audit.Nop{}, Options{})
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.Store)

	op, err := deps.Service.Begin(ctx, service.BeginInput{OperationType: "crm.contact.sync", OperationID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, op.MaxRetries)
	assert.Equal(t, model.StatusPending, op.Status)

	_, err = deps.Service.Archive(ctx, op.ID, "")
	assert.ErrorIs(t, err, service.ErrArchiveDisabled)
}

func TestDeps_CloseNil(t *testing.T) {
	var d *Deps
	assert.NoError(t, d.Close())
}
