package testserver

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// CommandHandler produces the output of a command entered on a simulated CLI.
type CommandHandler func(s *ShellSession, cmd string) string

// CLIDevice simulates the interactive CLI of a network device.
type CLIDevice struct {
	*SSHServer

	hostname string
	handler  CommandHandler

	mu       sync.Mutex
	commands []string
	outputs  map[string]string
	files    map[string][]byte
}

// ShellSession is the state of one interactive shell on a CLIDevice.
type ShellSession struct {
	Device *CLIDevice
	prompt string
	closed bool
	// Mode holds handler defined state, such as a configuration session name.
	Mode string
}

// SetPrompt changes the prompt displayed after the current command.
func (s *ShellSession) SetPrompt(p string) {
	s.prompt = p
}

// Prompt delivers the current prompt.
func (s *ShellSession) Prompt() string {
	return s.prompt
}

// Exit ends the session after the current command.
func (s *ShellSession) Exit() {
	s.closed = true
}

// NewCLIDevice starts a device whose commands are served by handler. Commands with a canned
// output (see SetOutput) are answered without consulting handler.
func NewCLIDevice(t assert.TestingT, hostname string, handler CommandHandler) *CLIDevice {
	d := &CLIDevice{
		hostname: hostname,
		handler:  handler,
		outputs:  map[string]string{},
		files:    map[string][]byte{},
	}
	d.SSHServer = NewSSHServerHandler(t, TestUserName, TestPassword, Handlers{
		Shell: d.shell,
		Exec:  d.exec,
	})
	return d
}

// Hostname delivers the device hostname.
func (d *CLIDevice) Hostname() string {
	return d.hostname
}

// SetOutput defines the canned output of cmd.
func (d *CLIDevice) SetOutput(cmd, output string) *CLIDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[cmd] = output
	return d
}

// Commands delivers every line entered on the device so far.
func (d *CLIDevice) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// File delivers the content of a file held by the device.
func (d *CLIDevice) File(name string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[name]
	return b, ok
}

// SetFile stores a file on the device.
func (d *CLIDevice) SetFile(name string, content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = content
}

// DeleteFile removes a file from the device, reporting whether it existed.
func (d *CLIDevice) DeleteFile(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[name]
	delete(d.files, name)
	return ok
}

func (d *CLIDevice) shell(ch ssh.Channel) uint32 {
	s := &ShellSession{Device: d, prompt: d.hostname + "#"}
	if _, err := fmt.Fprintf(ch, "\r\nWelcome to %s\r\n%s", d.hostname, s.prompt); err != nil {
		return 1
	}

	r := bufio.NewReader(ch)
	for !s.closed {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0
		}
		cmd := strings.TrimRight(line, "\r\n")

		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		out, canned := d.outputs[strings.TrimSpace(cmd)]
		d.mu.Unlock()

		if !canned && strings.TrimSpace(cmd) != "" {
			out = d.handler(s, cmd)
		}
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out = strings.ReplaceAll(out, "\n", "\r\n")
		if s.closed {
			_, _ = io.WriteString(ch, out)
			return 0
		}
		if _, err = io.WriteString(ch, out+s.prompt); err != nil {
			return 1
		}
	}
	return 0
}

func (d *CLIDevice) exec(cmd string) SSHHandler {
	fields := strings.Fields(cmd)
	if len(fields) == 3 && fields[0] == "scp" && fields[1] == "-t" {
		return func(ch ssh.Channel) uint32 {
			return d.scpSink(ch, fields[2])
		}
	}
	return nil
}
