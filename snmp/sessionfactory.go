package snmp

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/imdario/mergo"
)

// Version is the value carried in the version field of every packet.
type Version int

const (
	SNMPV1  Version = 0
	SNMPV2C Version = 1
)

// SessionConfig holds the settings a session is created with. It is handed to the trace hooks.
type SessionConfig struct {
	network   string
	address   string
	version   Version
	community string
	// per attempt deadline
	timeout time.Duration
	// extra attempts made after a timeout
	retries int
	trace   *SessionTrace
}

var defaultConfig = SessionConfig{
	network:   "udp",
	community: "public",
	version:   SNMPV2C,
	timeout:   time.Second,
	retries:   2,
	trace:     DefaultLoggingHooks,
}

// SessionOption adjusts a SessionConfig before the session is created.
type SessionOption func(*SessionConfig)

// Timeout bounds the wait for each response. Defaults to one second.
func Timeout(d time.Duration) SessionOption {
	return func(c *SessionConfig) { c.timeout = d }
}

// Retries sets how many times a timed out request is sent again. Defaults to 2.
func Retries(n int) SessionOption {
	return func(c *SessionConfig) { c.retries = n }
}

// Community sets the v2c community string. Defaults to public.
func Community(community string) SessionOption {
	return func(c *SessionConfig) { c.community = community }
}

// LoggingHooks replaces DefaultLoggingHooks. Hooks left nil do nothing.
func LoggingHooks(trace *SessionTrace) SessionOption {
	return func(c *SessionConfig) { c.trace = trace }
}

// SessionFactory creates sessions bound to a single agent.
type SessionFactory interface {
	NewSession(ctx context.Context, target string, opts ...SessionOption) (Session, error)
}

type factory struct{}

// NewFactory returns the UDP backed SessionFactory.
func NewFactory() SessionFactory {
	return factory{}
}

func (factory) NewSession(ctx context.Context, target string, opts ...SessionOption) (Session, error) {
	cfg := defaultConfig
	cfg.address = target
	for _, opt := range opts {
		opt(&cfg)
	}

	// copy before filling the gaps so the caller's hooks are left untouched
	trace := *cfg.trace
	_ = mergo.Merge(&trace, NoOpLoggingHooks)
	cfg.trace = &trace

	conn, err := dial(ctx, &cfg)
	if err != nil {
		cfg.trace.Error("dial", &cfg, err)
		return nil, err
	}
	return &sessionImpl{config: &cfg, conn: conn, nextRequestID: rand.Int31()}, nil //nolint: gosec
}

func dial(ctx context.Context, cfg *SessionConfig) (conn net.Conn, err error) {
	cfg.trace.ConnectStart(cfg)
	defer func(start time.Time) {
		cfg.trace.ConnectDone(cfg, err, time.Since(start))
	}(time.Now())

	var d net.Dialer
	return d.DialContext(ctx, cfg.network, cfg.address)
}
