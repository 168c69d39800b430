package ops

import (
	"context"

	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/netconf/client"
)

// NewSession opens a netconf session to target with client.DefaultConfig.
func NewSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (OpSession, error) {
	return NewSessionWithConfig(ctx, sshcfg, target, client.DefaultConfig)
}

// NewSessionWithConfig opens a netconf session to target with cfg.
func NewSessionWithConfig(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *client.Config) (OpSession, error) {
	cs, err := client.NewRPCSessionWithConfig(ctx, sshcfg, target, cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(cs), nil
}

// Wrap adds the base operations to an established client session.
func Wrap(cs client.Session) OpSession {
	return &sImpl{Session: cs}
}
