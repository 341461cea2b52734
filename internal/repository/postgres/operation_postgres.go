package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opledger/internal/model"
	"opledger/internal/repository"
	"opledger/internal/repository/codec"
)

// OperationPostgres is a PostgreSQL implementation of repository.OperationRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type OperationPostgres struct {
	db *sql.DB
}

// NewOperationPostgres creates a new OperationPostgres repository.
func NewOperationPostgres(db *sql.DB) *OperationPostgres {
	return &OperationPostgres{db: db}
}

var _ repository.OperationRepository = (*OperationPostgres)(nil)

const selectColumns = `id, operation_type, operation_id, endpoint, method,
		       request_payload, response_payload, response_code, status,
		       retry_count, max_retries, next_retry_at, error_message, metadata,
		       created_at, updated_at, completed_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*model.Operation, error) {
	var (
		op           model.Operation
		reqRaw       []byte
		respRaw      []byte
		metaRaw      []byte
		respCode     sql.NullInt64
		status       string
		nextRetryAt  sql.NullTime
		errorMessage sql.NullString
		completedAt  sql.NullTime
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
		&op.CreatedAt,
		&op.UpdatedAt,
		&completedAt,
		&op.Version,
	); err != nil {
		return nil, err
	}

	var err error
	if op.RequestPayload, err = codec.DecodePayload(reqRaw); err != nil {
		return nil, err
	}
	if op.ResponsePayload, err = codec.DecodePayload(respRaw); err != nil {
		return nil, err
	}
	if op.Metadata, err = codec.DecodePayload(metaRaw); err != nil {
		return nil, err
	}
	op.Status = model.Status(status)
	op.ResponseCode = codec.NullInt(respCode)
	op.ErrorMessage = codec.NullString(errorMessage)
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		op.NextRetryAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	return &op, nil
}

func encodePayloads(op *model.Operation) (req, resp, meta any, err error) {
	if req, err = codec.EncodePayload(op.RequestPayload); err != nil {
		return nil, nil, nil, err
	}
	if resp, err = codec.EncodePayload(op.ResponsePayload); err != nil {
		return nil, nil, nil, err
	}
	if meta, err = codec.EncodePayload(op.Metadata); err != nil {
		return nil, nil, nil, err
	}
	return req, resp, meta, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// Create inserts a new operation row and returns the stored record.
func (r *OperationPostgres) Create(ctx context.Context, op *model.Operation) (*model.Operation, error) {
	req, resp, meta, err := encodePayloads(op)
	if err != nil {
		return nil, err
	}
	q := `
		INSERT INTO operation_logs (
		       id, operation_type, operation_id, endpoint, method,
		       request_payload, response_payload, response_code, status,
		       retry_count, max_retries, next_retry_at, error_message, metadata,
		       created_at, updated_at, completed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)
		RETURNING ` + selectColumns
	row := r.db.QueryRowContext(ctx, q,
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
		nullableTime(op.NextRetryAt),
		codec.StringArg(op.ErrorMessage),
		meta,
		op.CreatedAt,
		op.UpdatedAt,
		nullableTime(op.CompletedAt),
	)
	return scanOperation(row)
}

// FindByID fetches a single operation by its ID.
func (r *OperationPostgres) FindByID(ctx context.Context, id string) (*model.Operation, error) {
	q := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE id = $1`
	return scanOperation(r.db.QueryRowContext(ctx, q, id))
}

// FindByCorrelation fetches the newest operation for an external key.
func (r *OperationPostgres) FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error) {
	q := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE operation_type = $1 AND operation_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	return scanOperation(r.db.QueryRowContext(ctx, q, operationType, operationID))
}

// Update performs a compare-and-swap on version.
func (r *OperationPostgres) Update(ctx context.Context, op *model.Operation) error {
	_, resp, meta, err := encodePayloads(op)
	if err != nil {
		return err
	}
	const q = `
		UPDATE operation_logs
		SET response_payload = $1,
		    response_code    = $2,
		    status           = $3,
		    retry_count      = $4,
		    next_retry_at    = $5,
		    error_message    = $6,
		    metadata         = $7,
		    updated_at       = $8,
		    completed_at     = $9,
		    version          = version + 1
		WHERE id = $10 AND version = $11
	`
	res, err := r.db.ExecContext(ctx, q,
		resp,
		codec.IntArg(op.ResponseCode),
		string(op.Status),
		op.RetryCount,
		nullableTime(op.NextRetryAt),
		codec.StringArg(op.ErrorMessage),
		meta,
		op.UpdatedAt,
		nullableTime(op.CompletedAt),
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
func (r *OperationPostgres) ListByStatus(ctx context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Operation], error) {
	const qCount = `SELECT COUNT(*) FROM operation_logs WHERE status = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, string(status)).Scan(&total); err != nil {
		return nil, err
	}

	qList := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, qList, string(status), pq.Limit, pq.Offset)
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
func (r *OperationPostgres) ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error) {
	q := `SELECT ` + selectColumns + `
		FROM operation_logs
		WHERE status = 'retrying' AND next_retry_at <= $1
		ORDER BY next_retry_at ASC, id ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// CountByStatus groups records by status.
func (r *OperationPostgres) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
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
