package testserver

import (
	"strings"
	"sync"

	assert "github.com/stretchr/testify/require"
)

// NXOSDevice simulates the checkpoint and rollback behaviour of a Cisco NX-OS CLI.
type NXOSDevice struct {
	*CLIDevice

	mu      sync.Mutex
	running string
	startup string
}

// NewNXOSDevice starts an NX-OS simulator with the given running configuration.
func NewNXOSDevice(t assert.TestingT, hostname, running string) *NXOSDevice {
	n := &NXOSDevice{running: running, startup: running}
	n.CLIDevice = NewCLIDevice(t, hostname, n.handle)
	return n
}

// Running delivers the running configuration.
func (n *NXOSDevice) Running() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Startup delivers the startup configuration.
func (n *NXOSDevice) Startup() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.startup
}

func (n *NXOSDevice) handle(s *ShellSession, cmd string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	trimmed := strings.TrimSpace(cmd)
	fields := strings.Fields(trimmed)

	if s.Mode == "config" {
		switch {
		case trimmed == "end":
			s.Mode = ""
			s.SetPrompt(n.hostname + "#")
		case trimmed == "exit", trimmed == "!":
		case strings.Contains(trimmed, "bogus"):
			return "% Invalid command at '^' marker."
		default:
			n.running = joinLines(append(splitLines(n.running), strings.TrimRight(cmd, " ")))
		}
		return ""
	}

	switch {
	case strings.HasPrefix(trimmed, "terminal "):
		return ""
	case trimmed == "show running-config":
		return n.running
	case trimmed == "show startup-config":
		return n.startup
	case trimmed == "configure terminal":
		s.Mode = "config"
		s.SetPrompt(n.hostname + "(config)#")
		return ""
	case len(fields) == 3 && fields[0] == "checkpoint" && fields[1] == "file":
		n.SetFile(fields[2], []byte(n.running))
		return "Done"
	case len(fields) == 3 && fields[0] == "show" && fields[1] == "file":
		b, ok := n.File(fields[2])
		if !ok {
			return "No such file or directory"
		}
		return string(b)
	case len(fields) >= 2 && fields[0] == "delete":
		n.DeleteFile(fields[1])
		return ""
	case len(fields) == 4 && strings.HasPrefix(trimmed, "rollback running-config file "):
		b, ok := n.File(fields[3])
		if !ok {
			return "ERROR: Rollback Patch is Empty or file " + fields[3] + " does not exist"
		}
		n.running = string(b)
		return "Rollback completed successfully."
	case trimmed == "copy running-config startup-config":
		n.startup = n.running
		return "[########################################] 100%\nCopy complete."
	}
	return "% Invalid command at '^' marker."
}

