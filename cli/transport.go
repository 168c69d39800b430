package cli

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/sshutil"
)

// Transport is the byte stream of an interactive shell.
type Transport interface {
	io.WriteCloser
	io.Reader
	// Client is the connection the shell runs on, for opening further channels such as a file copy.
	Client() *ssh.Client
}

type shellTransport struct {
	*sshutil.Channel
}

// Width of the pty. Long enough that devices do not wrap configuration lines.
const (
	ptyRows = 80
	ptyCols = 511
)

// NewSSHTransport connects to target and starts a shell on a dumb, non echoing pty.
func NewSSHTransport(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (Transport, error) {
	ch, err := sshutil.OpenChannel(ctx, sshcfg, target)
	if err != nil {
		return nil, err
	}

	if err = ch.Session.RequestPty("dumb", ptyRows, ptyCols, ssh.TerminalModes{ssh.ECHO: 0}); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "request pty failed")
	}
	if err = ch.Session.Shell(); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "login shell failed")
	}
	return &shellTransport{Channel: ch}, nil
}

func (t *shellTransport) Read(p []byte) (int, error) {
	return t.Stdout.Read(p)
}

func (t *shellTransport) Write(p []byte) (int, error) {
	return t.Stdin.Write(p)
}

func (t *shellTransport) Client() *ssh.Client {
	return t.Channel.Client
}
