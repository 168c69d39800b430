// Package mocks provides testify mocks of the netconf client interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/damianoneill/netdeploy/netconf/common"
)

// Session is a mock of client.Session.
type Session struct {
	mock.Mock
}

// Execute provides a mock function with given fields: ctx, req
func (m *Session) Execute(ctx context.Context, req common.Request) (*common.RPCReply, error) {
	ret := m.Called(req)

	var r0 *common.RPCReply
	if rf, ok := ret.Get(0).(func(common.Request) *common.RPCReply); ok {
		r0 = rf(req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*common.RPCReply)
	}
	return r0, ret.Error(1)
}

// Close provides a mock function with given fields:
func (m *Session) Close() error {
	ret := m.Called()
	if len(ret) == 0 {
		return nil
	}
	return ret.Error(0)
}

// ID provides a mock function with given fields:
func (m *Session) ID() uint64 {
	ret := m.Called()
	return ret.Get(0).(uint64)
}

// ServerCapabilities provides a mock function with given fields:
func (m *Session) ServerCapabilities() []string {
	ret := m.Called()
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).([]string)
}
