package worker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"opledger/internal/config"
	"opledger/internal/database/migration"
	"opledger/internal/model"
	"opledger/internal/repository/sqlite"
	"opledger/internal/service"
)

type unavailableExecutor struct{ calls int }

func (e *unavailableExecutor) Execute(context.Context, *model.Operation) (*Result, error) {
	e.calls++
	return nil, &CallError{Retryable: true, StatusCode: 503, Body: model.Payload{"error": "maintenance"}}
}

func newSQLiteService(t *testing.T) service.OperationService {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.EnsureMigrated(context.Background(), db, config.DriverSQLite, nil, "test"))

	return service.NewOperationService(sqlite.NewOperationSQLite(db), nil, service.Config{
		Now:               func() time.Time { return pollNow },
		DefaultMaxRetries: 3,
	})
}

func TestPoller_SharedSnapshotCountsOneRetry(t *testing.T) {
	ctx := context.Background()
	svc := newSQLiteService(t)

	op, err := svc.Begin(ctx, service.BeginInput{
		OperationType: "zoho.invoice.create",
		OperationID:   "inv-77",
		Endpoint:      "https://api.example.test/invoices",
		Method:        "POST",
	})
	require.NoError(t, err)
	immediately := time.Duration(0)
	_, scheduled, err := svc.ScheduleRetry(ctx, op.ID, service.RetryInput{Delay: &immediately, Reason: "first attempt timed out"})
	require.NoError(t, err)
	require.True(t, scheduled)

	due, err := svc.ListReadyForRetry(ctx, pollNow, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 1, due[0].RetryCount)

	exec := &unavailableExecutor{}
	first := NewPoller(svc, exec, Config{Now: func() time.Time { return pollNow }})
	second := NewPoller(svc, exec, Config{Now: func() time.Time { return pollNow }})

	snapA, snapB := due[0], due[0]
	assert.Equal(t, OutcomeRetry, first.process(ctx, &snapA))
	assert.Equal(t, OutcomeSkipped, second.process(ctx, &snapB))

	stored, err := svc.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRetrying, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	assert.Equal(t, pollNow.Add(2*time.Minute), *stored.NextRetryAt)
	assert.Equal(t, 2, exec.calls)
}
