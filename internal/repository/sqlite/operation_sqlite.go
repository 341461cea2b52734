package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opledger/internal/model"
	"opledger/internal/repository"
	"opledger/internal/repository/codec"
)

// OperationSQLite stores operation records in SQLite. Timestamps are kept as
// UTC unix nanoseconds.
type OperationSQLite struct {
	db *sql.DB
}

// NewOperationSQLite creates a new OperationSQLite repository.
func NewOperationSQLite(db *sql.DB) *OperationSQLite {
	return &OperationSQLite{db: db}
}

var _ repository.OperationRepository = (*OperationSQLite)(nil)

const selectColumns = `id, operation_type, operation_id, endpoint, method,
		       request_payload, response_payload, response_code, status,
		       retry_count, max_retries, next_retry_at, error_message, metadata,
		       created_at, updated_at, completed_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toUnix(*t)
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func scanOperation(row rowScanner) (*model.Operation, error) {
	var (
		op           model.Operation
		reqRaw       sql.NullString
		respRaw      sql.NullString
		metaRaw      sql.NullString
		respCode     sql.NullInt64
		status       string
		nextRetryAt  sql.NullInt64
		errorMessage sql.NullString
		createdAt    int64
		updatedAt    int64
		completedAt  sql.NullInt64
	)
	if err := row.Scan(
		&op.ID,
		&op.OperationType,
		&op.OperationID,
		&op.Endpoint,
		&op.Method,
		&reqRaw,
		&respRaw,
		&respCode,
		&status,
		&op.RetryCount,
		&op.MaxRetries,
		&nextRetryAt,
		&errorMessage,
		&metaRaw,
		&createdAt,
		&updatedAt,
		&completedAt,
		&op.Version,
	); err != nil {
		return nil, err
	}

	var err error
	if op.RequestPayload, err = codec.DecodePayload([]byte(reqRaw.String)); err != nil {
		return nil, err
	}
	if op.ResponsePayload, err = codec.DecodePayload([]byte(respRaw.String)); err != nil {
		return nil, err
	}
	if op.Metadata, err = codec.DecodePayload([]byte(metaRaw.String)); err != nil {
		return nil, err
	}
	op.Status = model.Status(status)
	op.ResponseCode = codec.NullInt(respCode)
	op.ErrorMessage = codec.NullString(errorMessage)
	op.NextRetryAt = fromNullUnix(nextRetryAt)
	op.CreatedAt = fromUnix(createdAt)
	op.UpdatedAt = fromUnix(updatedAt)
	op.CompletedAt = fromNullUnix(completedAt)
	return &op, nil
}

// Create inserts a new operation row and returns the stored record.
func (r *OperationSQLite) Create(ctx context.Context, op *model.Operation) (*model.Operation, error) {
	req, err := codec.EncodePayload(op.RequestPayload)
	if err != nil {
		return nil, err
	}
	resp, err := codec.EncodePayload(op.ResponsePayload)
	if err != nil {
		return nil, err
	}
	meta, err := codec.EncodePayload(op.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO operation_logs (
		       id, operation_type, operation_id, endpoint, method,
		       request_payload, response_payload, response_code, status,
		       retry_count, max_retries, next_retry_at, error_message, metadata,
		       created_at, updated_at, completed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	if _, err := r.db.ExecContext(ctx, q,
		op.ID,
		op.OperationType,
		op.OperationID,
		op.Endpoint,
		op.Method,
		req,
		resp,
		codec.IntArg(op.ResponseCode),
		string(op.Status),
		op.RetryCount,
		op.MaxRetries,
		nullableUnix(op.NextRetryAt),
		codec.StringArg(op.ErrorMessage),
		meta,
		toUnix(op.CreatedAt),
		toUnix(op.UpdatedAt),
		nullableUnix(op.CompletedAt),
	); err != nil {
		return nil, fmt.Errorf("insert operation %s: %w", op.ID, err)
	}
	return r.FindByID(ctx, op.ID)
}

// FindByID fetches a single operation by its ID.
func (r *OperationSQLite) FindByID(ctx context.Context, id string) (*model.Operation, error) {
	q := `SELECT ` + selectColumns + ` FROM operation_logs WHERE id = ?`
	return scanOperation(r.db.QueryRowContext(ctx, q, id))
}

// FindByCorrelation fetches the newest operation for an external key.
func (r *OperationSQLite) FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error) {
	q := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE operation_type = ? AND operation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	return scanOperation(r.db.QueryRowContext(ctx, q, operationType, operationID))
}

// Update performs a compare-and-swap on version.
func (r *OperationSQLite) Update(ctx context.Context, op *model.Operation) error {
	resp, err := codec.EncodePayload(op.ResponsePayload)
	if err != nil {
		return err
	}
	meta, err := codec.EncodePayload(op.Metadata)
	if err != nil {
		return err
	}

	const q = `
		UPDATE operation_logs
		SET response_payload = ?,
		    response_code    = ?,
		    status           = ?,
		    retry_count      = ?,
		    next_retry_at    = ?,
		    error_message    = ?,
		    metadata         = ?,
		    updated_at       = ?,
		    completed_at     = ?,
		    version          = version + 1
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q,
		resp,
		codec.IntArg(op.ResponseCode),
		string(op.Status),
		op.RetryCount,
		nullableUnix(op.NextRetryAt),
		codec.StringArg(op.ErrorMessage),
		meta,
		toUnix(op.UpdatedAt),
		nullableUnix(op.CompletedAt),
		op.ID,
		op.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("update operation %s at version %d: %w", op.ID, op.Version, repository.ErrVersionConflict)
	}
	op.Version++
	return nil
}

// ListByStatus returns records in a status using LIMIT/OFFSET pagination and a total count.
func (r *OperationSQLite) ListByStatus(ctx context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Operation], error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM operation_logs WHERE status = ?`, string(status),
	).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, string(status), pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := collect(rows)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Operation]{Items: items, Total: total}, nil
}

// ListReadyForRetry returns retrying records that are due at now.
func (r *OperationSQLite) ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error) {
	q := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE status = 'retrying' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		ORDER BY next_retry_at ASC, id ASC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, toUnix(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// CountByStatus groups records by status.
func (r *OperationSQLite) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM operation_logs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := repository.EmptyCounts()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.Status(status)] = n
	}
	return out, rows.Err()
}

func collect(rows *sql.Rows) ([]model.Operation, error) {
	items := make([]model.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
