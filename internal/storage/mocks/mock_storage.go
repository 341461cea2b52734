package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"opledger/internal/storage"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

// NewMockStorage returns a mock whose expectations are asserted at test cleanup.
func NewMockStorage(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStorage {
	m := &MockStorage{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockStorage) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	ret := m.Called(ctx, key, r, opt)
	info, _ := ret.Get(0).(storage.ObjectInfo)
	return info, ret.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	ret := m.Called(ctx, key)
	rc, _ := ret.Get(0).(io.ReadCloser)
	info, _ := ret.Get(1).(storage.ObjectInfo)
	return rc, info, ret.Error(2)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	ret := m.Called(ctx, key, expiry)
	return ret.String(0), ret.Error(1)
}
