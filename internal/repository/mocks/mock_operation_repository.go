package mocks

import (
	"context"
	"time"

	"opledger/internal/model"
	"opledger/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) Create(ctx context.Context, op *model.Operation) (*model.Operation, error) {
	args := m.Called(ctx, op)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationRepository) FindByID(ctx context.Context, id string) (*model.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationRepository) FindByCorrelation(ctx context.Context, operationType, operationID string) (*model.Operation, error) {
	args := m.Called(ctx, operationType, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOperationRepository) Update(ctx context.Context, op *model.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockOperationRepository) ListByStatus(ctx context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Operation], error) {
	args := m.Called(ctx, status, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Operation]), args.Error(1)
}

func (m *MockOperationRepository) ListReadyForRetry(ctx context.Context, now time.Time, limit int) ([]model.Operation, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Operation), args.Error(1)
}

func (m *MockOperationRepository) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.Status]int), args.Error(1)
}
