// Package mocks provides test doubles for the run store.
package mocks

import (
	"context"

	model "github.com/sells-group/statement-flow/internal/model"
	store "github.com/sells-group/statement-flow/internal/store"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// CreateRun provides a mock function with given fields: ctx, status
func (_m *MockStore) CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error) {
	ret := _m.Called(ctx, status)

	if len(ret) == 0 {
		panic("no return value specified for CreateRun")
	}

	var r0 *model.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.RunStatus) (*model.Run, error)); ok {
		return rf(ctx, status)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Run)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// UpdateRunStatus provides a mock function with given fields: ctx, runID, update
func (_m *MockStore) UpdateRunStatus(ctx context.Context, runID string, update store.RunUpdate) error {
	ret := _m.Called(ctx, runID, update)

	if len(ret) == 0 {
		panic("no return value specified for UpdateRunStatus")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, store.RunUpdate) error); ok {
		return rf(ctx, runID, update)
	}
	return ret.Error(0)
}

// GetRun provides a mock function with given fields: ctx, runID
func (_m *MockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for GetRun")
	}

	var r0 *model.Run
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Run)
	}
	return r0, ret.Error(1)
}

// ListRuns provides a mock function with given fields: ctx, filter
func (_m *MockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	ret := _m.Called(ctx, filter)

	if len(ret) == 0 {
		panic("no return value specified for ListRuns")
	}

	var r0 []model.Run
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Run)
	}
	return r0, ret.Error(1)
}

// DeleteRun provides a mock function with given fields: ctx, runID
func (_m *MockStore) DeleteRun(ctx context.Context, runID string) error {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for DeleteRun")
	}

	return ret.Error(0)
}

// InsertFlows provides a mock function with given fields: ctx, runID, flows
func (_m *MockStore) InsertFlows(ctx context.Context, runID string, flows []model.Flow) error {
	ret := _m.Called(ctx, runID, flows)

	if len(ret) == 0 {
		panic("no return value specified for InsertFlows")
	}

	return ret.Error(0)
}

// ListFlows provides a mock function with given fields: ctx, runID
func (_m *MockStore) ListFlows(ctx context.Context, runID string) ([]model.Flow, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for ListFlows")
	}

	var r0 []model.Flow
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Flow)
	}
	return r0, ret.Error(1)
}

// InsertVerification provides a mock function with given fields: ctx, rec
func (_m *MockStore) InsertVerification(ctx context.Context, rec model.VerificationRecord) (*model.VerificationRecord, error) {
	ret := _m.Called(ctx, rec)

	if len(ret) == 0 {
		panic("no return value specified for InsertVerification")
	}

	var r0 *model.VerificationRecord
	if rf, ok := ret.Get(0).(func(context.Context, model.VerificationRecord) (*model.VerificationRecord, error)); ok {
		return rf(ctx, rec)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.VerificationRecord)
	}
	return r0, ret.Error(1)
}

// GetLatestVerification provides a mock function with given fields: ctx, runID
func (_m *MockStore) GetLatestVerification(ctx context.Context, runID string) (*model.VerificationRecord, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for GetLatestVerification")
	}

	var r0 *model.VerificationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.VerificationRecord)
	}
	return r0, ret.Error(1)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	return ret.Error(0)
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

var _ store.Store = (*MockStore)(nil)
