package client

import (
	"context"
	"time"

	"github.com/imdario/mergo"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/log"
	"github.com/damianoneill/netdeploy/netconf/common"
)

// unique type to prevent assignment.
type clientEventContextKey struct{}

// ContextClientTrace returns the Trace associated with the
// provided context. If none, it returns NoOpLoggingHooks.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		return NoOpLoggingHooks
	}
	resolved := *trace
	_ = mergo.Merge(&resolved, NoOpLoggingHooks)
	return &resolved
}

// WithClientTrace returns a new context based on the provided parent
// ctx. Netconf client requests made with the returned context will use
// the provided trace hooks.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientEventContextKey{}, trace)
}

// ClientTrace defines a structure for handling trace events
//nolint: golint
type ClientTrace struct {
	// ConnectStart is called when starting to create a netconf connection to a remote server.
	ConnectStart func(clientConfig *ssh.ClientConfig, target string)

	// ConnectDone is called when the transport connection attempt completes, with err indicating
	// whether it was successful.
	ConnectDone func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration)

	// HelloDone is called when the hello message has been received from the server.
	HelloDone func(msg *common.HelloMessage)

	// ConnectionClosed is called after a transport connection has been closed, with
	// err indicating any error condition.
	ConnectionClosed func(target string, err error)

	// ReadDone is called after a read from the underlying transport.
	ReadDone func(p []byte, c int, err error, d time.Duration)

	// WriteDone is called after a write to the underlying transport.
	WriteDone func(p []byte, c int, err error, d time.Duration)

	// Error is called after an error condition has been detected.
	Error func(context, target string, err error)

	// ExecuteStart is called before the execution of an rpc request.
	ExecuteStart func(req common.Request)

	// ExecuteDone is called after the execution of an rpc request.
	ExecuteDone func(req common.Request, res *common.RPCReply, err error, d time.Duration)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context, target string, err error) {
		log.Warningf("NETCONF-Error context:%s target:%s err:%v", context, target, err)
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks.
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(clientConfig *ssh.ClientConfig, target string) {
		log.Debugf("NETCONF-ConnectStart target:%s user:%s", target, clientConfig.User)
	},
	ConnectDone: func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration) {
		log.Debugf("NETCONF-ConnectDone target:%s err:%v took:%dms", target, err, d.Milliseconds())
	},
	HelloDone: func(msg *common.HelloMessage) {
		log.Debugf("NETCONF-HelloDone session-id:%d capabilities:%d", msg.SessionID, len(msg.Capabilities))
	},
	ConnectionClosed: func(target string, err error) {
		log.Debugf("NETCONF-ConnectionClosed target:%s err:%v", target, err)
	},
	ReadDone: func(p []byte, c int, err error, d time.Duration) {
		log.Debugf("NETCONF-ReadDone len:%d err:%v took:%dms", c, err, d.Milliseconds())
	},
	WriteDone: func(p []byte, c int, err error, d time.Duration) {
		log.Debugf("NETCONF-WriteDone len:%d err:%v took:%dms", c, err, d.Milliseconds())
	},
	Error: DefaultLoggingHooks.Error,
	ExecuteStart: func(req common.Request) {
		log.Debugf("NETCONF-ExecuteStart req:%v", req)
	},
	ExecuteDone: func(req common.Request, res *common.RPCReply, err error, d time.Duration) {
		log.Debugf("NETCONF-ExecuteDone err:%v took:%dms", err, d.Milliseconds())
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:     func(clientConfig *ssh.ClientConfig, target string) {},
	ConnectDone:      func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration) {},
	HelloDone:        func(msg *common.HelloMessage) {},
	ConnectionClosed: func(target string, err error) {},
	ReadDone:         func(p []byte, c int, err error, d time.Duration) {},
	WriteDone:        func(p []byte, c int, err error, d time.Duration) {},
	Error:            func(context, target string, err error) {},
	ExecuteStart:     func(req common.Request) {},
	ExecuteDone:      func(req common.Request, res *common.RPCReply, err error, d time.Duration) {},
}
