package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"opledger/internal/audit"
	"opledger/internal/ledger"
	"opledger/internal/model"
	"opledger/internal/repository"
	"opledger/internal/storage"
)

var (
	ErrIDRequired      = errors.New("id is required")
	ErrNotFound        = errors.New("operation not found")
	ErrConflict        = errors.New("operation was modified concurrently")
	ErrArchiveDisabled = errors.New("archive storage is not configured")
	ErrNotTerminal     = errors.New("operation is not in a terminal state")
	ErrNotArchived     = errors.New("operation has not been archived")
	ErrInvalidStatus   = errors.New("invalid status")
)

const (
	defaultPageLimit    = 10
	defaultReadyLimit   = 50
	maxConflictAttempts = 3

	metaArchiveKey = "archive_key"
	metaArchivedAt = "archived_at"
)

var tracer = otel.Tracer("opledger/internal/service")

// OperationListResult is the service-level DTO for paginated operations.
type OperationListResult struct {
	Items []model.Operation `json:"data"`
	Total int               `json:"total"`
}

// BeginInput describes the first attempt at an external call.
type BeginInput struct {
	OperationType  string        `json:"operation_type"`
	OperationID    string        `json:"operation_id"`
	Endpoint       string        `json:"endpoint"`
	Method         string        `json:"method"`
	RequestPayload model.Payload `json:"request_payload"`
	Metadata       model.Payload `json:"metadata"`
	MaxRetries     int           `json:"max_retries"`
	ActorID        string        `json:"-"`
}

// SuccessInput carries the outcome of a successful call.
// A non-zero ExpectedVersion pins the write to the record version the caller
// acted on; any other stored version yields ErrConflict.
type SuccessInput struct {
	Response        model.Payload
	StatusCode      *int
	ActorID         string
	ExpectedVersion int64
}

// FailureInput carries the outcome of a permanently failed call.
type FailureInput struct {
	Message         string
	Response        model.Payload
	StatusCode      *int
	ActorID         string
	ExpectedVersion int64
}

// RetryInput asks for another attempt. Delay overrides the exponential backoff.
// Reason, Response and StatusCode describe the attempt that just failed.
type RetryInput struct {
	Delay           *time.Duration
	Reason          string
	Response        model.Payload
	StatusCode      *int
	ActorID         string
	ExpectedVersion int64
}

// ArchiveResult points at an archived snapshot.
type ArchiveResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OperationService defines the use cases of the retryable operation ledger.
type OperationService interface {
	// Begin records a pending operation for a first attempt.
	Begin(ctx context.Context, in BeginInput) (*model.Operation, error)

	// Get returns a single operation by its ID.
	Get(ctx context.Context, id string) (*model.Operation, error)

	// FindByCorrelation returns the latest operation for an external correlation key.
	FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error)

	// RecordSuccess marks the operation successful.
	RecordSuccess(ctx context.Context, id string, in SuccessInput) (*model.Operation, error)

	// RecordFailure marks the operation permanently failed.
	RecordFailure(ctx context.Context, id string, in FailureInput) (*model.Operation, error)

	// ScheduleRetry moves the operation to retrying. The bool is false when the
	// retry budget was exhausted and the operation was failed instead.
	ScheduleRetry(ctx context.Context, id string, in RetryInput) (*model.Operation, bool, error)

	// ListByStatus returns operations in one status using limit/offset.
	ListByStatus(ctx context.Context, status model.Status, limit, offset int) (*OperationListResult, error)

	// ListPending returns pending operations.
	ListPending(ctx context.Context, limit, offset int) (*OperationListResult, error)

	// ListFailed returns failed operations.
	ListFailed(ctx context.Context, limit, offset int) (*OperationListResult, error)

	// ListReadyForRetry returns retrying operations due at now.
	ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error)

	// Stats returns the number of operations per status.
	Stats(ctx context.Context) (map[model.Status]int, error)

	// Archive writes a snapshot of a terminal operation to object storage.
	Archive(ctx context.Context, id, actorID string) (*ArchiveResult, error)

	// ReadArchive loads the archived snapshot of an operation.
	ReadArchive(ctx context.Context, id string) (*model.Operation, error)
}

// Config carries the collaborators and defaults of the operation service.
type Config struct {
	Sink              audit.Sink
	Now               func() time.Time
	DefaultMaxRetries int
	ArchiveExpiry     time.Duration
}

// operationService is a concrete implementation of OperationService.
type operationService struct {
	repo  repository.OperationRepository
	store storage.Storage
	sink  audit.Sink
	now   func() time.Time

	defaultMaxRetries int
	archiveExpiry     time.Duration
}

// NewOperationService constructs a new OperationService. store may be nil, in
// which case archiving is disabled.
func NewOperationService(repo repository.OperationRepository, store storage.Storage, cfg Config) OperationService {
	s := &operationService{
		repo:              repo,
		store:             store,
		sink:              audit.OrNop(cfg.Sink),
		now:               cfg.Now,
		defaultMaxRetries: cfg.DefaultMaxRetries,
		archiveExpiry:     cfg.ArchiveExpiry,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.defaultMaxRetries <= 0 {
		s.defaultMaxRetries = 3
	}
	if s.archiveExpiry <= 0 {
		s.archiveExpiry = 15 * time.Minute
	}
	return s
}

func (s *operationService) Begin(ctx context.Context, in BeginInput) (*model.Operation, error) {
	ctx, span := tracer.Start(ctx, "OperationService.Begin", trace.WithAttributes(
		attribute.String("operation.type", in.OperationType),
		attribute.String("operation.correlation_id", in.OperationID),
	))
	defer span.End()

	maxRetries := in.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.defaultMaxRetries
	}
	op, err := ledger.New(ledger.NewOperation{
		ID:             uuid.NewString(),
		OperationType:  in.OperationType,
		OperationID:    in.OperationID,
		Endpoint:       in.Endpoint,
		Method:         in.Method,
		RequestPayload: in.RequestPayload,
		MaxRetries:     maxRetries,
		Metadata:       in.Metadata,
	}, s.now())
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.Create(ctx, op)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("create operation: %w", err)
	}
	s.audit(ctx, audit.LevelInfo, "operation_started", stored, in.ActorID, nil)
	return stored, nil
}

func (s *operationService) Get(ctx context.Context, id string) (*model.Operation, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	return s.find(ctx, id)
}

func (s *operationService) FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error) {
	if operationType == "" || operationID == "" {
		return nil, ErrIDRequired
	}
	op, err := s.repo.FindByCorrelation(ctx, operationType, operationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

func (s *operationService) RecordSuccess(ctx context.Context, id string, in SuccessInput) (*model.Operation, error) {
	ctx, span := tracer.Start(ctx, "OperationService.RecordSuccess", trace.WithAttributes(attribute.String("operation.id", id)))
	defer span.End()

	op, err := s.mutate(ctx, id, in.ExpectedVersion, func(op *model.Operation, now time.Time) error {
		return ledger.RecordSuccess(op, in.Response, in.StatusCode, now)
	})
	if err != nil {
		fail(span, err)
		return nil, err
	}
	s.audit(ctx, audit.LevelInfo, "operation_succeeded", op, in.ActorID, nil)
	return op, nil
}

func (s *operationService) RecordFailure(ctx context.Context, id string, in FailureInput) (*model.Operation, error) {
	ctx, span := tracer.Start(ctx, "OperationService.RecordFailure", trace.WithAttributes(attribute.String("operation.id", id)))
	defer span.End()

	op, err := s.mutate(ctx, id, in.ExpectedVersion, func(op *model.Operation, now time.Time) error {
		return ledger.RecordFailure(op, in.Message, in.Response, in.StatusCode, now)
	})
	if err != nil {
		fail(span, err)
		return nil, err
	}
	s.audit(ctx, audit.LevelWarn, "operation_failed", op, in.ActorID, map[string]any{"error_message": in.Message})
	return op, nil
}

func (s *operationService) ScheduleRetry(ctx context.Context, id string, in RetryInput) (*model.Operation, bool, error) {
	ctx, span := tracer.Start(ctx, "OperationService.ScheduleRetry", trace.WithAttributes(attribute.String("operation.id", id)))
	defer span.End()

	var scheduled bool
	op, err := s.mutate(ctx, id, in.ExpectedVersion, func(op *model.Operation, now time.Time) error {
		ok, err := ledger.ScheduleRetry(op, in.Delay, now)
		if err != nil {
			return err
		}
		scheduled = ok
		// An exhausted record keeps "Maximum retries exceeded" as its message
		// but still stores the response of the attempt that used up the budget.
		if ok && in.Reason != "" {
			reason := in.Reason
			op.ErrorMessage = &reason
		}
		if in.Response != nil {
			op.ResponsePayload = in.Response
		}
		if in.StatusCode != nil {
			op.ResponseCode = in.StatusCode
		}
		return nil
	})
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("retry.scheduled", scheduled), attribute.Int("retry.count", op.RetryCount))

	if scheduled {
		s.audit(ctx, audit.LevelInfo, "operation_retry_scheduled", op, in.ActorID, map[string]any{"reason": in.Reason})
	} else {
		s.audit(ctx, audit.LevelWarn, "operation_retries_exhausted", op, in.ActorID, map[string]any{"reason": in.Reason})
	}
	return op, scheduled, nil
}

func (s *operationService) ListByStatus(ctx context.Context, status model.Status, limit, offset int) (*OperationListResult, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.ListByStatus(ctx, status, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &OperationListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *operationService) ListPending(ctx context.Context, limit, offset int) (*OperationListResult, error) {
	return s.ListByStatus(ctx, model.StatusPending, limit, offset)
}

func (s *operationService) ListFailed(ctx context.Context, limit, offset int) (*OperationListResult, error) {
	return s.ListByStatus(ctx, model.StatusFailed, limit, offset)
}

func (s *operationService) ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error) {
	if limit <= 0 {
		limit = defaultReadyLimit
	}
	ops, err := s.repo.ListReadyForRetry(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	ready := ops[:0]
	for i := range ops {
		if ledger.ReadyForRetry(&ops[i], now) {
			ready = append(ready, ops[i])
		}
	}
	return ready, nil
}

func (s *operationService) Stats(ctx context.Context) (map[model.Status]int, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *operationService) Archive(ctx context.Context, id, actorID string) (*ArchiveResult, error) {
	ctx, span := tracer.Start(ctx, "OperationService.Archive", trace.WithAttributes(attribute.String("operation.id", id)))
	defer span.End()

	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	op, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !op.Status.IsTerminal() {
		return nil, ErrNotTerminal
	}

	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	key := storage.SnapshotKey(op.OperationType, op.ID)
	if _, err := s.store.Put(ctx, key, bytes.NewReader(body), storage.PutObjectOptions{
		Size:        int64(len(body)),
		ContentType: storage.SnapshotContentType,
		Metadata: map[string]string{
			"operation-id": op.OperationID,
			"status":       op.Status.String(),
		},
	}); err != nil {
		fail(span, err)
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	archived, err := s.mutate(ctx, id, 0, func(op *model.Operation, now time.Time) error {
		meta := make(model.Payload, len(op.Metadata)+2)
		for k, v := range op.Metadata {
			meta[k] = v
		}
		meta[metaArchiveKey] = key
		meta[metaArchivedAt] = now.Format(time.RFC3339Nano)
		op.Metadata = meta
		op.UpdatedAt = now
		return nil
	})
	if err != nil {
		fail(span, err)
		// Rollback: remove the snapshot nobody can find.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	url, err := s.store.PresignGet(ctx, key, s.archiveExpiry)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("presign archive: %w", err)
	}
	s.audit(ctx, audit.LevelInfo, "operation_archived", archived, actorID, map[string]any{"archive_key": key})
	return &ArchiveResult{Key: key, URL: url, ExpiresAt: s.now().Add(s.archiveExpiry)}, nil
}

func (s *operationService) ReadArchive(ctx context.Context, id string) (*model.Operation, error) {
	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	op, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	key, _ := op.Metadata[metaArchiveKey].(string)
	if key == "" {
		return nil, ErrNotArchived
	}

	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	defer rc.Close()

	var snapshot model.Operation
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return &snapshot, nil
}

func (s *operationService) find(ctx context.Context, id string) (*model.Operation, error) {
	op, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

// mutate runs a read-modify-write cycle against the stored version, re-reading
// and re-applying fn when another writer got there first. With a non-zero
// expected version the stored record must still be at that version; fn is
// never re-applied to a record someone else has already moved on.
func (s *operationService) mutate(ctx context.Context, id string, expected int64, fn func(op *model.Operation, now time.Time) error) (*model.Operation, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	for attempt := 0; attempt < maxConflictAttempts; attempt++ {
		op, err := s.find(ctx, id)
		if err != nil {
			return nil, err
		}
		if expected != 0 && op.Version != expected {
			return nil, fmt.Errorf("%w: operation %s is at version %d, expected %d", ErrConflict, id, op.Version, expected)
		}
		if err := fn(op, s.now()); err != nil {
			return nil, err
		}
		err = s.repo.Update(ctx, op)
		if err == nil {
			return op, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("update operation: %w", err)
		}
	}
	return nil, ErrConflict
}

func (s *operationService) audit(ctx context.Context, level audit.Level, msg string, op *model.Operation, actorID string, extra map[string]any) {
	fields := map[string]any{
		"component":      "ledger",
		"id":             op.ID,
		"operation_type": op.OperationType,
		"operation_id":   op.OperationID,
		"status":         op.Status.String(),
		"retry_count":    op.RetryCount,
		"max_retries":    op.MaxRetries,
		"actor_id":       actorID,
	}
	if op.NextRetryAt != nil {
		fields["next_retry_at"] = op.NextRetryAt.Format(time.RFC3339)
	}
	for k, v := range extra {
		fields[k] = v
	}
	s.sink.Record(ctx, level, msg, fields)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
