package sshutil

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Channel is a single ssh session on its own connection, with its stdin and stdout exposed.
type Channel struct {
	Client  *ssh.Client
	Session *ssh.Session
	Stdout  io.Reader
	Stdin   io.WriteCloser
}

// OpenChannel dials target and opens a session on the new connection. Starting the remote side
// (a subsystem or a shell) is left to the caller. On error everything opened so far is closed.
func OpenChannel(ctx context.Context, cfg *ssh.ClientConfig, target string) (ch *Channel, err error) {
	ch = &Channel{}
	defer func() {
		if err != nil {
			_ = ch.Close()
			ch = nil
		}
	}()

	if ch.Client, err = Dial(ctx, cfg, target); err != nil {
		return ch, errors.Wrap(err, "ssh dial failed")
	}
	if ch.Session, err = ch.Client.NewSession(); err != nil {
		return ch, errors.Wrap(err, "new ssh session failed")
	}
	if ch.Stdout, err = ch.Session.StdoutPipe(); err != nil {
		return ch, err
	}
	if ch.Stdin, err = ch.Session.StdinPipe(); err != nil {
		return ch, err
	}
	return ch, nil
}

// Close releases stdin, the session and the connection in that order. The first failure wins;
// io.EOF from a session the peer already closed is ignored.
func (ch *Channel) Close() error {
	var errs [3]error
	if ch.Stdin != nil {
		errs[0] = ch.Stdin.Close()
	}
	if ch.Session != nil {
		if err := ch.Session.Close(); err != io.EOF {
			errs[1] = err
		}
	}
	if ch.Client != nil {
		errs[2] = ch.Client.Close()
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
