package testserver

import (
	"context"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/cli"
)

const running = "hostname leaf1\ninterface Ethernet1\n   description uplink\n"

func shell(t *testing.T, d *CLIDevice) cli.Session {
	cfg := &ssh.ClientConfig{
		User:            TestUserName,
		Auth:            []ssh.AuthMethod{ssh.Password(TestPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: gosec
		Timeout:         2 * time.Second,
	}
	s, err := cli.NewSessionFactory(nil).NewSession(context.Background(), cfg, d.Address(), cli.WithPrompt(cli.DefaultPromptPattern))
	assert.NoError(t, err)
	return s
}

func send(t *testing.T, s cli.Session, cmds ...string) string {
	var out string
	for _, c := range cmds {
		var err error
		out, err = s.Send(context.Background(), c)
		assert.NoError(t, err)
	}
	return out
}

func TestEOSSessionCommit(t *testing.T) {
	d := NewEOSDevice(t, "leaf1", running)
	defer d.Close()
	s := shell(t, d.CLIDevice)
	defer s.Close()

	assert.Equal(t, "hostname leaf1\ninterface Ethernet1\n   description uplink", send(t, s, "show running-config"))

	send(t, s, "configure session s1", "rollback clean-config", "hostname leaf1", "interface Ethernet1",
		"   description core", "   exit", "ntp server 192.0.2.1", "end")
	assert.Equal(t, []string{"s1"}, d.PendingSessions())

	diff := send(t, s, "show session-config named s1 diffs")
	assert.Contains(t, diff, "-   description uplink")
	assert.Contains(t, diff, "+   description core")
	assert.Contains(t, diff, "+ntp server 192.0.2.1")

	assert.Contains(t, send(t, s, "show session-config named s1"), "ntp server 192.0.2.1")
	send(t, s, "configure session s1 commit")
	assert.Equal(t, running, d.Startup())
	send(t, s, "write memory")
	assert.Equal(t, d.Running(), d.Startup())
	assert.Equal(t, "hostname leaf1\ninterface Ethernet1\n   description core\nntp server 192.0.2.1\n", d.Running())
	assert.Empty(t, d.PendingSessions())
}

func TestEOSSessionAbortAndErrors(t *testing.T) {
	d := NewEOSDevice(t, "leaf1", running)
	defer d.Close()
	s := shell(t, d.CLIDevice)
	defer s.Close()

	send(t, s, "configure session s2")
	assert.Contains(t, send(t, s, "bogus command"), "% Invalid input")
	send(t, s, "ntp server 192.0.2.1")
	assert.Contains(t, send(t, s, "show session-config diffs"), "+ntp server 192.0.2.1")
	send(t, s, "abort")

	assert.Equal(t, running, d.Running())
	assert.Empty(t, d.PendingSessions())
	assert.Contains(t, send(t, s, "configure session nope commit"), "does not exist")
	assert.Contains(t, send(t, s, "show version"), "% Invalid input")
}

func TestNXOSCheckpointRollback(t *testing.T) {
	d := NewNXOSDevice(t, "leaf2", running)
	defer d.Close()
	s := shell(t, d.CLIDevice)
	defer s.Close()

	assert.Equal(t, "Done", send(t, s, "checkpoint file bootflash:backup.cfg"))
	assert.Contains(t, send(t, s, "show file bootflash:backup.cfg"), "description uplink")

	send(t, s, "configure terminal", "ntp server 192.0.2.1", "end")
	assert.Contains(t, d.Running(), "ntp server 192.0.2.1")

	assert.Equal(t, "Rollback completed successfully.", send(t, s, "rollback running-config file bootflash:backup.cfg"))
	assert.Equal(t, running, d.Running())

	send(t, s, "configure terminal", "ntp server 192.0.2.2", "end", "copy running-config startup-config")
	assert.Equal(t, d.Running(), d.Startup())
	assert.Equal(t, d.Startup(), send(t, s, "show startup-config")+"\n")

	send(t, s, "delete bootflash:backup.cfg no-prompt")
	_, ok := d.File("bootflash:backup.cfg")
	assert.False(t, ok)
	assert.Contains(t, send(t, s, "rollback running-config file bootflash:backup.cfg"), "ERROR")
	assert.Equal(t, "No such file or directory", send(t, s, "show file bootflash:missing"))
}
