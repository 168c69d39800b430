package testserver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	assert "github.com/stretchr/testify/require"
)

// EOSDevice simulates the configuration session behaviour of an Arista EOS CLI.
type EOSDevice struct {
	*CLIDevice

	mu       sync.Mutex
	running  string
	startup  string
	sessions map[string]*eosSession
}

type eosSession struct {
	clean bool
	lines []string
}

// NewEOSDevice starts an EOS simulator with the given running configuration.
func NewEOSDevice(t assert.TestingT, hostname, running string) *EOSDevice {
	e := &EOSDevice{running: running, startup: running, sessions: map[string]*eosSession{}}
	e.CLIDevice = NewCLIDevice(t, hostname, e.handle)
	return e
}

// Running delivers the running configuration.
func (e *EOSDevice) Running() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Startup delivers the startup configuration.
func (e *EOSDevice) Startup() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startup
}

// PendingSessions delivers the names of configuration sessions neither committed nor aborted.
func (e *EOSDevice) PendingSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for n := range e.sessions {
		names = append(names, n)
	}
	return names
}

func (e *EOSDevice) handle(s *ShellSession, cmd string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	trimmed := strings.TrimSpace(cmd)
	fields := strings.Fields(trimmed)

	if s.Mode != "" {
		return e.handleSessionLine(s, cmd, trimmed)
	}

	switch {
	case strings.HasPrefix(trimmed, "terminal "):
		return ""
	case trimmed == "show running-config":
		return e.running
	case trimmed == "show startup-config":
		return e.startup
	case trimmed == "copy running-config startup-config", trimmed == "write memory":
		e.startup = e.running
		return "Copy completed successfully."
	case len(fields) == 4 && strings.HasPrefix(trimmed, "show session-config named "):
		candidate, ok := e.candidate(fields[3])
		if !ok {
			return "% Session " + fields[3] + " does not exist"
		}
		return candidate
	case len(fields) == 3 && fields[0] == "configure" && fields[1] == "session":
		if _, ok := e.sessions[fields[2]]; !ok {
			e.sessions[fields[2]] = &eosSession{}
		}
		e.enterSession(s, fields[2])
		return ""
	case len(fields) == 4 && fields[0] == "configure" && fields[1] == "session" && fields[3] == "commit":
		return e.commit(fields[2])
	case len(fields) == 4 && fields[0] == "configure" && fields[1] == "session" && fields[3] == "abort":
		delete(e.sessions, fields[2])
		return ""
	case len(fields) == 5 && strings.HasPrefix(trimmed, "show session-config named ") && fields[4] == "diffs":
		return e.diff(fields[3])
	}
	return invalidInput(trimmed)
}

func (e *EOSDevice) enterSession(s *ShellSession, name string) {
	s.Mode = name
	label := name
	if len(label) > 6 {
		label = label[:6]
	}
	s.SetPrompt(fmt.Sprintf("%s(config-s-%s)#", e.hostname, label))
}

func (e *EOSDevice) leaveSession(s *ShellSession) {
	s.Mode = ""
	s.SetPrompt(e.hostname + "#")
}

func (e *EOSDevice) handleSessionLine(s *ShellSession, cmd, trimmed string) string {
	sess := e.sessions[s.Mode]
	switch {
	case trimmed == "end":
		e.leaveSession(s)
	case trimmed == "abort":
		delete(e.sessions, s.Mode)
		e.leaveSession(s)
	case trimmed == "commit":
		out := e.commit(s.Mode)
		e.leaveSession(s)
		return out
	case trimmed == "rollback clean-config":
		sess.clean = true
		sess.lines = nil
	case trimmed == "show session-config diffs":
		return e.diff(s.Mode)
	case trimmed == "exit", trimmed == "!", trimmed == "":
	case strings.Contains(trimmed, "bogus"):
		return invalidInput(trimmed)
	default:
		sess.lines = append(sess.lines, strings.TrimRight(cmd, " "))
	}
	return ""
}

func (e *EOSDevice) candidate(name string) (string, bool) {
	sess, ok := e.sessions[name]
	if !ok {
		return "", false
	}
	var lines []string
	if !sess.clean {
		lines = splitLines(e.running)
	}
	lines = append(lines, sess.lines...)
	return joinLines(lines), true
}

func (e *EOSDevice) commit(name string) string {
	candidate, ok := e.candidate(name)
	if !ok {
		return "% Session " + name + " does not exist"
	}
	e.running = candidate
	delete(e.sessions, name)
	return ""
}

func (e *EOSDevice) diff(name string) string {
	candidate, ok := e.candidate(name)
	if !ok {
		return "% Session " + name + " does not exist"
	}
	return unifiedDiff(e.running, candidate, "system:/running-config", "session:/"+name+"-session-config")
}

func invalidInput(cmd string) string {
	return fmt.Sprintf("%% Invalid input (at token 0: '%s')", strings.SplitN(cmd+" ", " ", 2)[0])
}

func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimRight(l, " \r"))
		}
	}
	return lines
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func unifiedDiff(a, b, fromFile, toFile string) string {
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
	return out
}
