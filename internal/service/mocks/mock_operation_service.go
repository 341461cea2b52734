package mocks

import (
	"context"
	"time"

	"opledger/internal/model"
	"opledger/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockOperationService struct {
	mock.Mock
}

func (m *MockOperationService) Begin(ctx context.Context, in service.BeginInput) (*model.Operation, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationService) Get(ctx context.Context, id string) (*model.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationService) FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error) {
	args := m.Called(ctx, operationType, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationService) RecordSuccess(ctx context.Context, id string, in service.SuccessInput) (*model.Operation, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationService) RecordFailure(ctx context.Context, id string, in service.FailureInput) (*model.Operation, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationService) ScheduleRetry(ctx context.Context, id string, in service.RetryInput) (*model.Operation, bool, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Operation), args.Bool(1), args.Error(2)
}

func (m *MockOperationService) ListByStatus(ctx context.Context, status model.Status, limit, offset int) (*service.OperationListResult, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OperationListResult), args.Error(1)
}

func (m *MockOperationService) ListPending(ctx context.Context, limit, offset int) (*service.OperationListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OperationListResult), args.Error(1)
}

func (m *MockOperationService) ListFailed(ctx context.Context, limit, offset int) (*service.OperationListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OperationListResult), args.Error(1)
}

func (m *MockOperationService) ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Operation), args.Error(1)
}

func (m *MockOperationService) Stats(ctx context.Context) (map[model.Status]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.Status]int), args.Error(1)
}

func (m *MockOperationService) Archive(ctx context.Context, id, actorID string) (*service.ArchiveResult, error) {
	args := m.Called(ctx, id, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ArchiveResult), args.Error(1)
}

func (m *MockOperationService) ReadArchive(ctx context.Context, id string) (*model.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}
