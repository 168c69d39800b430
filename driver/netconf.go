package driver

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/netconf/client"
	"github.com/damianoneill/netdeploy/netconf/ops"
)

// Netconf holds the NETCONF session shared by NETCONF based drivers.
type Netconf struct {
	Host    *inventory.Host
	Options Options

	session ops.OpSession
}

// Open establishes the NETCONF session.
func (n *Netconf) Open(ctx context.Context) error {
	if n.session != nil {
		return nil
	}
	sshcfg, err := ClientConfig(n.Host, n.Options)
	if err != nil {
		return err
	}
	cfg := &client.Config{SetupTimeout: client.DefaultConfig.SetupTimeout}
	if n.Options.SSH.Timeout > 0 {
		cfg.SetupTimeout = n.Options.SSH.Timeout
	}
	s, err := ops.NewSessionWithConfig(ctx, sshcfg, NetconfAddress(n.Host, n.Options), cfg)
	if err != nil {
		return errors.Wrapf(err, "open netconf to %s failed", n.Host.Name)
	}
	n.session = s
	return nil
}

// Close ends the NETCONF session.
func (n *Netconf) Close() error {
	if n.session == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.commandTimeout())
	defer cancel()
	cerr := n.session.CloseSession(ctx)
	err := n.session.Close()
	n.session = nil
	if cerr == nil {
		// the server ends the transport once close-session is acknowledged
		return nil
	}
	return err
}

// Session delivers the open NETCONF session.
func (n *Netconf) Session() (ops.OpSession, error) {
	if n.session == nil {
		return nil, ErrNotOpen
	}
	return n.session, nil
}

// RPC executes req, bounded by the command timeout, and delivers the content of the reply.
func (n *Netconf) RPC(ctx context.Context, req interface{}) (string, error) {
	s, err := n.Session()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, n.commandTimeout())
	defer cancel()
	reply, err := s.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	return reply.Data, nil
}

func (n *Netconf) commandTimeout() time.Duration {
	if n.Options.CommandTimeout > 0 {
		return n.Options.CommandTimeout
	}
	return DefaultOptions.CommandTimeout
}
