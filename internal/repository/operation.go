package repository

import (
	"context"
	"errors"
	"time"

	"opledger/internal/model"
)

// ErrVersionConflict is returned by Update when the stored record has moved
// past the version the caller read.
var ErrVersionConflict = errors.New("operation version conflict")

// OperationRepository defines data access for operation records using SQL queries only.
// No business logic here — strictly persistence operations.
type OperationRepository interface {
	// Create inserts a new record with Version 1 and returns the stored row.
	Create(ctx context.Context, op *model.Operation) (*model.Operation, error)

	// FindByID returns a record by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Operation, error)

	// FindByCorrelation returns the most recent record for an external
	// correlation key, or sql.ErrNoRows.
	FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error)

	// Update writes op if the stored version still equals op.Version, then
	// increments op.Version. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, op *model.Operation) error

	// ListByStatus returns a page of records in the given status, oldest first.
	ListByStatus(ctx context.Context, status model.Status, pq PageQuery) (*PageResult[model.Operation], error)

	// ListReadyForRetry returns retrying records whose next_retry_at <= now,
	// earliest due first.
	ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error)

	// CountByStatus returns the number of records per status. Every known
	// status is present in the result.
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}

// EmptyCounts returns a zeroed count for every known status.
func EmptyCounts() map[model.Status]int {
	return map[model.Status]int{
		model.StatusPending:  0,
		model.StatusSuccess:  0,
		model.StatusFailed:   0,
		model.StatusRetrying: 0,
	}
}
