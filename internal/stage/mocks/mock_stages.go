// Package mocks provides test doubles for the stage adapters.
package mocks

import (
	"context"

	model "github.com/sells-group/statement-flow/internal/model"
	stage "github.com/sells-group/statement-flow/internal/stage"
	mock "github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockExtractor is a mock type for the Extractor interface.
type MockExtractor struct {
	mock.Mock
}

// Extract provides a mock function with given fields: ctx, req, opts
func (_m *MockExtractor) Extract(ctx context.Context, req stage.ExtractionRequest, opts stage.Options) (*model.AnalysisOutput, error) {
	ret := _m.Called(ctx, req, opts)

	if len(ret) == 0 {
		panic("no return value specified for Extract")
	}

	var r0 *model.AnalysisOutput
	if rf, ok := ret.Get(0).(func(context.Context, stage.ExtractionRequest, stage.Options) (*model.AnalysisOutput, error)); ok {
		return rf(ctx, req, opts)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.AnalysisOutput)
	}
	return r0, ret.Error(1)
}

// NewMockExtractor creates a new instance of MockExtractor with expectations
// asserted on cleanup.
func NewMockExtractor(t testingT) *MockExtractor {
	m := &MockExtractor{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockGenerator is a mock type for the Generator interface.
type MockGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req, opts
func (_m *MockGenerator) Generate(ctx context.Context, req stage.GenerationRequest, opts stage.Options) (*stage.Diagram, error) {
	ret := _m.Called(ctx, req, opts)

	if len(ret) == 0 {
		panic("no return value specified for Generate")
	}

	var r0 *stage.Diagram
	if rf, ok := ret.Get(0).(func(context.Context, stage.GenerationRequest, stage.Options) (*stage.Diagram, error)); ok {
		return rf(ctx, req, opts)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*stage.Diagram)
	}
	return r0, ret.Error(1)
}

// NewMockGenerator creates a new instance of MockGenerator with expectations
// asserted on cleanup.
func NewMockGenerator(t testingT) *MockGenerator {
	m := &MockGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockVerifier is a mock type for the Verifier interface.
type MockVerifier struct {
	mock.Mock
}

// Verify provides a mock function with given fields: ctx, req, opts
func (_m *MockVerifier) Verify(ctx context.Context, req stage.VerificationRequest, opts stage.Options) (*model.VerificationReport, error) {
	ret := _m.Called(ctx, req, opts)

	if len(ret) == 0 {
		panic("no return value specified for Verify")
	}

	var r0 *model.VerificationReport
	if rf, ok := ret.Get(0).(func(context.Context, stage.VerificationRequest, stage.Options) (*model.VerificationReport, error)); ok {
		return rf(ctx, req, opts)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.VerificationReport)
	}
	return r0, ret.Error(1)
}

// NewMockVerifier creates a new instance of MockVerifier with expectations
// asserted on cleanup.
func NewMockVerifier(t testingT) *MockVerifier {
	m := &MockVerifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ stage.Extractor = (*MockExtractor)(nil)
	_ stage.Generator = (*MockGenerator)(nil)
	_ stage.Verifier  = (*MockVerifier)(nil)
)
