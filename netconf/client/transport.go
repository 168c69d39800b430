package client

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/sshutil"
)

// Transport carries framed netconf messages to and from a server.
type Transport interface {
	io.ReadWriteCloser
	// Target is the address of the server.
	Target() string
}

type sshTransport struct {
	ch     *sshutil.Channel
	trace  *ClientTrace
	target string
}

// NewSSHTransport dials target and starts subsystem on a new session. The connection is reported
// to the ClientTrace held by ctx.
func NewSSHTransport(ctx context.Context, clientConfig *ssh.ClientConfig, target, subsystem string) (Transport, error) {
	trace := ContextClientTrace(ctx)
	trace.ConnectStart(clientConfig, target)
	start := time.Now()

	ch, err := sshutil.OpenChannel(ctx, clientConfig, target)
	if err == nil {
		if err = ch.Session.RequestSubsystem(subsystem); err != nil {
			_ = ch.Close()
			err = errors.Wrapf(err, "request subsystem %s failed", subsystem)
		}
	}
	trace.ConnectDone(clientConfig, target, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &sshTransport{ch: ch, trace: trace, target: target}, nil
}

func (t *sshTransport) Target() string {
	return t.target
}

func (t *sshTransport) Read(p []byte) (int, error) {
	start := time.Now()
	n, err := t.ch.Stdout.Read(p)
	t.trace.ReadDone(p, n, err, time.Since(start))
	return n, err
}

func (t *sshTransport) Write(p []byte) (int, error) {
	start := time.Now()
	n, err := t.ch.Stdin.Write(p)
	t.trace.WriteDone(p, n, err, time.Since(start))
	return n, err
}

func (t *sshTransport) Close() error {
	err := t.ch.Close()
	t.trace.ConnectionClosed(t.target, err)
	return err
}
