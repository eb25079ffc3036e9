package mocks

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// EthClient is a mock type for the EthClient type
type EthClient struct {
	mock.Mock
}

// Close provides a mock function with no fields
func (_m *EthClient) Close() {
	_m.Called()
}

// GetLogs provides a mock function with given fields: ctx, query
func (_m *EthClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	ret := _m.Called(ctx, query)

	var r0 []types.Log
	if rf, ok := ret.Get(0).(func(context.Context, ethereum.FilterQuery) []types.Log); ok {
		r0 = rf(ctx, query)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]types.Log)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, ethereum.FilterQuery) error); ok {
		r1 = rf(ctx, query)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetLatestBlockHeader provides a mock function with given fields: ctx
func (_m *EthClient) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return _m.header(ctx, _m.Called(ctx))
}

// GetFinalizedBlockHeader provides a mock function with given fields: ctx
func (_m *EthClient) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return _m.header(ctx, _m.Called(ctx))
}

// GetSafeBlockHeader provides a mock function with given fields: ctx
func (_m *EthClient) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return _m.header(ctx, _m.Called(ctx))
}

func (_m *EthClient) header(ctx context.Context, ret mock.Arguments) (*types.Header, error) {
	var r0 *types.Header
	if rf, ok := ret.Get(0).(func(context.Context) *types.Header); ok {
		r0 = rf(ctx)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*types.Header)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewEthClient creates a new instance of EthClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewEthClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *EthClient {
	mock := &EthClient{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
