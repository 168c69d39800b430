package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/testserver"
)

func validSSHConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            testserver.TestUserName,
		Auth:            []ssh.AuthMethod{ssh.Password(testserver.TestPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: gosec
		Timeout:         2 * time.Second,
	}
}

func dummyDevice(t *testing.T) *testserver.CLIDevice {
	return testserver.NewCLIDevice(t, "r1", func(s *testserver.ShellSession, cmd string) string {
		switch strings.TrimSpace(cmd) {
		case "enable":
			s.SetPrompt("Password: ")
			return ""
		case "EPASS":
			s.SetPrompt("r1(enable)#")
			return ""
		case "configure":
			s.SetPrompt("r1(config)#")
			return ""
		case "sleep":
			time.Sleep(time.Second)
		case "quit":
			s.Exit()
			return "bye"
		}
		return "GOT:" + cmd
	})
}

func newSession(t *testing.T, d *testserver.CLIDevice, opts ...SessionOption) Session {
	s, err := NewSessionFactory(nil).NewSession(context.Background(), validSSHConfig(), d.Address(), opts...)
	assert.NoError(t, err)
	assert.NotNil(t, s, "Session should not be nil")
	return s
}

func TestSessionSendDefault(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithTimeout(200*time.Millisecond))
	defer session.Close()

	resp, err := session.Send(context.Background(), "Command")
	assert.NoError(t, err)
	assert.Equal(t, "GOT:Command", resp)

	resp, err = session.Send(context.Background(), "Command2")
	assert.NoError(t, err)
	assert.Equal(t, "GOT:Command2", resp)
	assert.Equal(t, []string{"Command", "Command2"}, d.Commands())
}

func TestSessionSendAndWait(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithTimeout(200*time.Millisecond))
	defer session.Close()

	resp, err := session.Send(context.Background(), "enable", WaitFor("Password: $"))
	assert.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = session.Send(context.Background(), "EPASS", ResetPrompt())
	assert.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = session.Send(context.Background(), "Command")
	assert.NoError(t, err)
	assert.Equal(t, "GOT:Command", resp)

	resp, err = session.Send(context.Background(), "enable", WaitFor("BadRegex)"))
	assert.Contains(t, err.Error(), "invalid WaitFor value")
	assert.Empty(t, resp)
}

func TestSessionPromptPattern(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithPrompt(DefaultPromptPattern), WithCommands("terminal length 0", "terminal width 511"))
	defer session.Close()
	assert.Equal(t, []string{"terminal length 0", "terminal width 511"}, d.Commands())

	resp, err := session.Send(context.Background(), "configure")
	assert.NoError(t, err)
	assert.Empty(t, resp)

	// The configuration prompt also matches the pattern.
	resp, err = session.Send(context.Background(), "interface Ethernet1")
	assert.NoError(t, err)
	assert.Equal(t, "GOT:interface Ethernet1", resp)
}

func TestSessionMultilineOutput(t *testing.T) {
	d := dummyDevice(t)
	d.SetOutput("show running-config", "hostname r1\ninterface Ethernet1\n   description uplink\n")
	defer d.Close()

	session := newSession(t, d, WithPrompt(DefaultPromptPattern))
	defer session.Close()

	resp, err := session.Send(context.Background(), "show running-config")
	assert.NoError(t, err)
	assert.Equal(t, "hostname r1\ninterface Ethernet1\n   description uplink", resp)
}

func TestSessionSendOptions(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithPrompt(DefaultPromptPattern))
	defer session.Close()

	_, err := session.Send(context.Background(), "Command ", NoNewline(), NoWait())
	assert.NoError(t, err)
	resp, err := session.Send(context.Background(), "Param")
	assert.NoError(t, err)
	assert.Equal(t, "GOT:Command Param", resp)
}

func TestSessionCommandTimeout(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithPrompt(DefaultPromptPattern), WithCommandTimeout(100*time.Millisecond))
	defer session.Close()

	_, err := session.Send(context.Background(), "sleep")
	assert.Equal(t, ErrTimeout, errors.Cause(err))
}

func TestSessionContextCancelled(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithPrompt(DefaultPromptPattern))
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := session.Send(ctx, "sleep")
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestSessionClosedByServer(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	session := newSession(t, d, WithPrompt(DefaultPromptPattern))
	defer session.Close()

	_, err := session.Send(context.Background(), "quit")
	assert.Error(t, err)
}

func TestSessionInvalidPrompt(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	_, err := NewSessionFactory(nil).NewSession(context.Background(), validSSHConfig(), d.Address(), WithPrompt("bad("))
	assert.Contains(t, err.Error(), "invalid prompt pattern")
}

func TestSessionDialFailure(t *testing.T) {
	d := dummyDevice(t)
	defer d.Close()

	cfg := validSSHConfig()
	cfg.Auth = []ssh.AuthMethod{ssh.Password("wrong")}
	_, err := NewSessionFactory(nil).NewSession(context.Background(), cfg, d.Address())
	assert.Contains(t, err.Error(), "ssh dial failed")
}

func TestStripEcho(t *testing.T) {
	assert.Equal(t, "output", stripEcho("show version\noutput", "show version"))
	assert.Equal(t, "output", stripEcho("\noutput", "show version"))
	assert.Equal(t, "a\nb", stripEcho("a\nb", "show version"))
	assert.Equal(t, "", stripEcho("show version", "show version"))
}
