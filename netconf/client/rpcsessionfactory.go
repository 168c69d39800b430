package client

import (
	"context"

	"github.com/imdario/mergo"
	"golang.org/x/crypto/ssh"
)

// NewRPCSession dials the netconf subsystem on target and completes the hello exchange using
// DefaultConfig.
func NewRPCSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (Session, error) {
	return NewRPCSessionWithConfig(ctx, sshcfg, target, DefaultConfig)
}

// NewRPCSessionWithConfig is NewRPCSession with caller supplied settings. Fields left at their
// zero value take the DefaultConfig value. The transport is closed if the hello exchange fails.
func NewRPCSessionWithConfig(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *Config) (Session, error) {
	merged := *cfg
	_ = mergo.Merge(&merged, DefaultConfig)

	t, err := NewSSHTransport(ctx, sshcfg, target, "netconf")
	if err != nil {
		return nil, err
	}

	s, err := NewSession(ctx, t, &merged)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return s, nil
}
