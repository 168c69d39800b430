// Package testserver provides in-process SSH servers simulating network devices: a NETCONF
// subsystem, a scripted interactive CLI and an SCP sink. It is used to exercise device drivers
// and transports without real hardware.
package testserver

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"net"
	"strconv"
	"sync"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Defines credentials used for test sessions.
const (
	TestUserName = "testUser"
	TestPassword = "testPassword"
)

// SSHHandler handles i/o on an SSH channel once a shell, subsystem or exec request has been
// accepted. The returned value is reported to the client as the exit status.
type SSHHandler func(ch ssh.Channel) uint32

// Handlers defines how the server services channel requests.
type Handlers struct {
	// Shell handles "shell" requests.
	Shell SSHHandler
	// Subsystems handles "subsystem" requests, keyed by subsystem name.
	Subsystems map[string]SSHHandler
	// Exec handles "exec" requests.
	Exec func(cmd string) SSHHandler
}

// SSHServer represents a test SSH Server.
type SSHServer struct {
	t        assert.TestingT
	listener net.Listener
	handlers Handlers

	mu    sync.Mutex
	conns []net.Conn
}

// NewSSHServer delivers a new test SSH Server that echoes each line received on a subsystem
// channel prefixed by "GOT:".
// The server implements password authentication with the given credentials.
func NewSSHServer(t assert.TestingT, uname, password string) *SSHServer {
	return NewSSHServerHandler(t, uname, password, Handlers{Subsystems: map[string]SSHHandler{
		"netconf": EchoHandler,
	}})
}

// NewSSHServerHandler delivers a new test SSH Server, with custom channel handlers.
// The server implements password authentication with the given credentials.
func NewSSHServerHandler(t assert.TestingT, uname, password string, handlers Handlers) *SSHServer {
	listener, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err, "Listen failed")

	s := &SSHServer{t: t, listener: listener, handlers: handlers}
	go s.acceptConnections(newSSHServerConfig(t, uname, password))
	return s
}

// EchoHandler echoes input lines prefixed by "GOT:".
func EchoHandler(ch ssh.Channel) uint32 {
	r := bufio.NewReader(ch)
	for {
		input, err := r.ReadString('\n')
		if err != nil {
			return 0
		}
		if _, err = fmt.Fprintf(ch, "GOT:%s", input); err != nil {
			return 1
		}
	}
}

// Port delivers the tcp port number on which the server is listening.
func (s *SSHServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Address delivers the host:port on which the server is listening.
func (s *SSHServer) Address() string {
	return net.JoinHostPort("localhost", strconv.Itoa(s.Port()))
}

// Close closes the listener and any open connections.
func (s *SSHServer) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *SSHServer) acceptConnections(config *ssh.ServerConfig) {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, nConn)
		s.mu.Unlock()

		go s.serveConnection(nConn, config)
	}
}

func (s *SSHServer) serveConnection(nConn net.Conn, config *ssh.ServerConfig) {
	_, chch, reqch, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqch)

	for newChannel := range chch {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.serveChannel(ch, requests)
	}
}

func (s *SSHServer) serveChannel(ch ssh.Channel, requests <-chan *ssh.Request) {
	started := false
	for req := range requests {
		var h SSHHandler
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
			continue
		case "shell":
			h = s.handlers.Shell
		case "subsystem":
			h = s.handlers.Subsystems[parseString(req.Payload)]
		case "exec":
			if s.handlers.Exec != nil {
				h = s.handlers.Exec(parseString(req.Payload))
			}
		}
		if h == nil || started {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)
		started = true
		go func() {
			status := h(ch)
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			_ = ch.Close()
		}()
	}
}

// parseString decodes an SSH wire format string.
func parseString(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload)
	if int(n) > len(payload)-4 {
		return ""
	}
	return string(payload[4 : 4+n])
}

func newSSHServerConfig(t assert.TestingT, uname, password string) *ssh.ServerConfig {
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == uname && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(hostKey(t))
	return config
}

var (
	hostKeyOnce   sync.Once
	hostKeySigner ssh.Signer
	hostKeyErr    error
)

// hostKey delivers an RSA host key, generated once per process.
func hostKey(t assert.TestingT) ssh.Signer {
	hostKeyOnce.Do(func() {
		var key *rsa.PrivateKey
		if key, hostKeyErr = rsa.GenerateKey(rand.Reader, 2048); hostKeyErr != nil {
			return
		}
		hostKeySigner, hostKeyErr = ssh.ParsePrivateKey(encodePrivateKeyToPEM(key))
	})
	assert.NoError(t, hostKeyErr, "Failed to generate host key")
	return hostKeySigner
}

func encodePrivateKeyToPEM(privateKey *rsa.PrivateKey) []byte {
	privBlock := pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	return pem.EncodeToMemory(&privBlock)
}

// HostPublicKey delivers the public key the servers present.
func HostPublicKey(t assert.TestingT) ssh.PublicKey {
	return hostKey(t).PublicKey()
}
