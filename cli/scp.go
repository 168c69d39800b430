package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// CopyFile copies content to the file target on the remote device, using the scp sink protocol
// on a new channel of client.
func CopyFile(ctx context.Context, client *ssh.Client, content []byte, target string) (err error) {
	session, err := client.NewSession()
	if err != nil {
		return errors.Wrap(err, "new ssh session failed")
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return err
	}
	r := bufio.NewReader(stdout)

	if err = session.Start("scp -t " + target); err != nil {
		return errors.Wrap(err, "start scp failed")
	}

	done := make(chan error, 1)
	go func() {
		done <- sendFile(r, stdin, content, path.Base(target))
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Close()
		return ctx.Err()
	}
	if err != nil {
		return errors.Wrapf(err, "scp to %s failed", target)
	}
	return errors.Wrap(session.Wait(), "scp exit")
}

func sendFile(r *bufio.Reader, w io.WriteCloser, content []byte, name string) error {
	if err := readAck(r); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "C0644 %d %s\n", len(content), name); err != nil {
		return err
	}
	if err := readAck(r); err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	if err := readAck(r); err != nil {
		return err
	}
	return w.Close()
}

// readAck reads a response of the scp protocol: 0 for success, 1 or 2 followed by a message
// for a warning or an error.
func readAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b == 0 {
		return nil
	}
	msg, _ := r.ReadString('\n')
	return errors.Errorf("remote: %s", bytes.TrimSpace([]byte(msg)))
}
