package mocks

import (
	"context"

	"github.com/prediction-market/callindexor/pkg/rpc"
	"github.com/stretchr/testify/mock"
)

// SorobanClient is a mock type for the SorobanClient type
type SorobanClient struct {
	mock.Mock
}

// GetLatestLedger provides a mock function with given fields: ctx
func (_m *SorobanClient) GetLatestLedger(ctx context.Context) (uint32, error) {
	ret := _m.Called(ctx)

	var r0 uint32
	if rf, ok := ret.Get(0).(func(context.Context) uint32); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Get(0).(uint32)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetEvents provides a mock function with given fields: ctx, req
func (_m *SorobanClient) GetEvents(ctx context.Context, req rpc.GetEventsRequest) (*rpc.GetEventsResponse, error) {
	ret := _m.Called(ctx, req)

	var r0 *rpc.GetEventsResponse
	if rf, ok := ret.Get(0).(func(context.Context, rpc.GetEventsRequest) *rpc.GetEventsResponse); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*rpc.GetEventsResponse)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, rpc.GetEventsRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewSorobanClient creates a new instance of SorobanClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewSorobanClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *SorobanClient {
	mock := &SorobanClient{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
