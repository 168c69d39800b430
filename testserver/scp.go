package testserver

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// scpSink implements the receiving side of a single file scp copy to target.
func (d *CLIDevice) scpSink(ch ssh.Channel, target string) uint32 {
	r := bufio.NewReader(ch)
	ack := func() error {
		_, err := ch.Write([]byte{0})
		return err
	}
	fail := func(msg string) uint32 {
		_, _ = fmt.Fprintf(ch, "\x02%s\n", msg)
		return 1
	}

	if ack() != nil {
		return 1
	}
	header, err := r.ReadString('\n')
	if err != nil {
		return 1
	}
	// C<mode> <size> <name>
	parts := strings.SplitN(strings.TrimSuffix(header, "\n"), " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "C") {
		return fail("scp: protocol error: unexpected header")
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return fail("scp: protocol error: bad size")
	}
	if ack() != nil {
		return 1
	}

	content := make([]byte, size)
	if _, err = io.ReadFull(r, content); err != nil {
		return 1
	}
	if b, err := r.ReadByte(); err != nil || b != 0 {
		return fail("scp: protocol error: missing end of file")
	}

	name := target
	if strings.HasSuffix(target, "/") || strings.HasSuffix(target, ":") {
		name = target + path.Base(parts[2])
	}
	d.SetFile(name, content)
	if ack() != nil {
		return 1
	}
	return 0
}
