package snmp

import (
	"encoding/hex"
	"time"

	"github.com/damianoneill/netdeploy/log"
)

// SessionTrace defines a structure for handling trace events
type SessionTrace struct {
	// ConnectStart is called before establishing a network connection to an agent.
	ConnectStart func(config *SessionConfig)

	// ConnectDone is called when the network connection attempt completes, with err indicating
	// whether it was successful.
	ConnectDone func(config *SessionConfig, err error, d time.Duration)

	// Error is called after an error condition has been detected.
	Error func(location string, config *SessionConfig, err error)

	// WriteComplete is called after a packet has been written
	WriteComplete func(config *SessionConfig, output []byte, err error)

	// ReadComplete is called after a read has completed
	ReadComplete func(config *SessionConfig, input []byte, err error)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &SessionTrace{
	Error: func(location string, config *SessionConfig, err error) {
		log.Debugf("SNMP error context:%s target:%s err:%v", location, config.address, err)
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &SessionTrace{
	ConnectStart: func(config *SessionConfig) {
		log.Debugf("SNMP ConnectStart target:%s", config.address)
	},
	ConnectDone: func(config *SessionConfig, err error, d time.Duration) {
		log.Debugf("SNMP ConnectDone target:%s err:%v took:%v", config.address, err, d)
	},
	Error: func(location string, config *SessionConfig, err error) {
		log.Debugf("SNMP error context:%s target:%s err:%v", location, config.address, err)
	},
	WriteComplete: func(config *SessionConfig, output []byte, err error) {
		log.Debugf("SNMP WriteComplete target:%s err:%v data:%s", config.address, err, hex.EncodeToString(output))
	},
	ReadComplete: func(config *SessionConfig, input []byte, err error) {
		log.Debugf("SNMP ReadComplete target:%s err:%v data:%s", config.address, err, hex.EncodeToString(input))
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &SessionTrace{
	ConnectStart:  func(config *SessionConfig) {},
	ConnectDone:   func(config *SessionConfig, err error, d time.Duration) {},
	Error:         func(location string, config *SessionConfig, err error) {},
	WriteComplete: func(config *SessionConfig, output []byte, err error) {},
	ReadComplete:  func(config *SessionConfig, input []byte, err error) {},
}
