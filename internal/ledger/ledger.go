// Package ledger holds the transition rules for operation records.
// All functions are pure: the caller supplies the current time and persists the result.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"opledger/internal/model"
)

// MaxRetriesExceededMessage is stored on records that ran out of retries.
const MaxRetriesExceededMessage = "Maximum retries exceeded"

// maxBackoffExponent keeps 2^n minutes inside time.Duration.
const maxBackoffExponent = 27

var (
	ErrTerminal          = errors.New("operation is in a terminal state")
	ErrInvalidMaxRetries = errors.New("max retries must be positive")
	ErrTypeRequired      = errors.New("operation type is required")
	ErrOperationIDNeeded = errors.New("operation id is required")
	ErrNegativeDelay     = errors.New("retry delay must not be negative")
)

// NewOperation describes a first attempt at an external call.
type NewOperation struct {
	ID             string
	OperationType  string
	OperationID    string
	Endpoint       string
	Method         string
	RequestPayload model.Payload
	MaxRetries     int
	Metadata       model.Payload
}

// New returns a pending record for in, created at now.
func New(in NewOperation, now time.Time) (*model.Operation, error) {
	if strings.TrimSpace(in.OperationType) == "" {
		return nil, ErrTypeRequired
	}
	if strings.TrimSpace(in.OperationID) == "" {
		return nil, ErrOperationIDNeeded
	}
	if in.MaxRetries <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxRetries, in.MaxRetries)
	}
	return &model.Operation{
		ID:             in.ID,
		OperationType:  in.OperationType,
		OperationID:    in.OperationID,
		Endpoint:       in.Endpoint,
		Method:         strings.ToUpper(in.Method),
		RequestPayload: in.RequestPayload,
		Metadata:       in.Metadata,
		Status:         model.StatusPending,
		MaxRetries:     in.MaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanRetry reports whether op still has retry budget.
func CanRetry(op *model.Operation) bool {
	return op.RetryCount < op.MaxRetries
}

// BackoffDelay is 2^retryCount minutes: 1, 2, 4, 8, ...
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > maxBackoffExponent {
		retryCount = maxBackoffExponent
	}
	return time.Duration(1<<uint(retryCount)) * time.Minute
}

// RecordSuccess marks op as successfully completed.
func RecordSuccess(op *model.Operation, response model.Payload, statusCode *int, now time.Time) error {
	if op.Status.IsTerminal() {
		return fmt.Errorf("record success on %s operation %s: %w", op.Status, op.ID, ErrTerminal)
	}
	op.Status = model.StatusSuccess
	op.ResponsePayload = response
	op.ResponseCode = statusCode
	op.NextRetryAt = nil
	op.UpdatedAt = now
	op.CompletedAt = &now
	return nil
}

// RecordFailure marks op as permanently failed, regardless of remaining retries.
// The response of the failing attempt replaces any earlier one, nil included.
func RecordFailure(op *model.Operation, message string, response model.Payload, statusCode *int, now time.Time) error {
	if op.Status.IsTerminal() {
		return fmt.Errorf("record failure on %s operation %s: %w", op.Status, op.ID, ErrTerminal)
	}
	op.Status = model.StatusFailed
	op.ErrorMessage = &message
	op.ResponsePayload = response
	op.ResponseCode = statusCode
	op.NextRetryAt = nil
	op.UpdatedAt = now
	op.CompletedAt = &now
	return nil
}

// ScheduleRetry moves op to retrying and computes its next eligible time.
// The delay is delayOverride when given, else BackoffDelay evaluated before
// the retry counter is incremented. When the budget is spent the record is
// failed with MaxRetriesExceededMessage and false is returned.
func ScheduleRetry(op *model.Operation, delayOverride *time.Duration, now time.Time) (bool, error) {
	if op.Status.IsTerminal() {
		return false, fmt.Errorf("schedule retry on %s operation %s: %w", op.Status, op.ID, ErrTerminal)
	}
	if !CanRetry(op) {
		if err := RecordFailure(op, MaxRetriesExceededMessage, nil, nil, now); err != nil {
			return false, err
		}
		return false, nil
	}

	delay := BackoffDelay(op.RetryCount)
	if delayOverride != nil {
		if *delayOverride < 0 {
			return false, ErrNegativeDelay
		}
		delay = *delayOverride
	}

	next := now.Add(delay)
	op.Status = model.StatusRetrying
	op.RetryCount++
	op.NextRetryAt = &next
	op.UpdatedAt = now
	return true, nil
}

// ReadyForRetry reports whether op is due for another attempt at now.
func ReadyForRetry(op *model.Operation, now time.Time) bool {
	return op.Status == model.StatusRetrying && op.NextRetryAt != nil && !op.NextRetryAt.After(now)
}
