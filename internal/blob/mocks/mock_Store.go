// Package mocks provides test doubles for the blob store.
package mocks

import (
	"context"
	"time"

	blob "github.com/sells-group/statement-flow/internal/blob"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// PutObject provides a mock function with given fields: ctx, data, key
func (_m *MockStore) PutObject(ctx context.Context, data []byte, key string) (string, error) {
	ret := _m.Called(ctx, data, key)

	if len(ret) == 0 {
		panic("no return value specified for PutObject")
	}

	if rf, ok := ret.Get(0).(func(context.Context, []byte, string) (string, error)); ok {
		return rf(ctx, data, key)
	}
	return ret.String(0), ret.Error(1)
}

// GetObject provides a mock function with given fields: ctx, path
func (_m *MockStore) GetObject(ctx context.Context, path string) ([]byte, error) {
	ret := _m.Called(ctx, path)

	if len(ret) == 0 {
		panic("no return value specified for GetObject")
	}

	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Error(1)
}

// DeleteObject provides a mock function with given fields: ctx, path
func (_m *MockStore) DeleteObject(ctx context.Context, path string) error {
	ret := _m.Called(ctx, path)

	if len(ret) == 0 {
		panic("no return value specified for DeleteObject")
	}

	return ret.Error(0)
}

// GetSignedURL provides a mock function with given fields: ctx, path, ttl
func (_m *MockStore) GetSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	ret := _m.Called(ctx, path, ttl)

	if len(ret) == 0 {
		panic("no return value specified for GetSignedURL")
	}

	return ret.String(0), ret.Error(1)
}

// NewMockStore creates a new instance of MockStore. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ blob.Store = (*MockStore)(nil)
