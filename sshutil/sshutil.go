// Package sshutil builds SSH client configurations for device connections and dials them with
// context support.
package sshutil

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Options define how a client authenticates and verifies the device it connects to.
type Options struct {
	// Timeout bounds the tcp connect and the ssh handshake.
	Timeout time.Duration
	// PrivateKeyFile, if set, adds public key authentication.
	PrivateKeyFile string
	// KnownHostsFile, if set, is used to verify host keys.
	KnownHostsFile string
	// Insecure disables host key verification when no known hosts file is defined.
	Insecure bool
	// LegacyAlgorithms enables the older key exchanges and ciphers some devices still require.
	LegacyAlgorithms bool
}

// DefaultOptions holds the values applied to any option left unset.
var DefaultOptions = Options{
	Timeout: 10 * time.Second,
}

// ErrNoHostKeyCallback is returned when neither a known hosts file nor insecure mode is configured.
var ErrNoHostKeyCallback = errors.New("no known hosts file defined and insecure mode not enabled")

var legacyKeyExchanges = []string{
	"curve25519-sha256@libssh.org", "ecdh-sha2-nistp256", "ecdh-sha2-nistp384",
	"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1",
}

var legacyCiphers = []string{
	"aes128-gcm@openssh.com", "chacha20-poly1305@openssh.com",
	"aes128-ctr", "aes192-ctr", "aes256-ctr", "aes128-cbc", "3des-cbc",
}

// NewClientConfig delivers a client configuration authenticating user with password, through both
// the password and keyboard-interactive methods.
func NewClientConfig(user, password string, opts Options) (*ssh.ClientConfig, error) {
	_ = mergo.Merge(&opts, DefaultOptions)

	cfg := &ssh.ClientConfig{
		User:    user,
		Timeout: opts.Timeout,
	}

	if opts.PrivateKeyFile != "" {
		signer, err := loadSigner(opts.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
	}
	cfg.Auth = append(cfg.Auth,
		ssh.Password(password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	)

	switch {
	case opts.KnownHostsFile != "":
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, errors.Wrap(err, "load known hosts failed")
		}
		cfg.HostKeyCallback = cb
	case opts.Insecure:
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint: gosec
	default:
		return nil, ErrNoHostKeyCallback
	}

	if opts.LegacyAlgorithms {
		cfg.KeyExchanges = legacyKeyExchanges
		cfg.Ciphers = legacyCiphers
	}
	return cfg, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	b, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrap(err, "read private key failed")
	}
	signer, err := ssh.ParsePrivateKey(b)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key failed")
	}
	return signer, nil
}

// Dial connects to target, honouring ctx for the tcp connection and the client config timeout
// for the ssh handshake.
func Dial(ctx context.Context, clientConfig *ssh.ClientConfig, target string) (*ssh.Client, error) {
	d := net.Dialer{Timeout: clientConfig.Timeout}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	if clientConfig.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(clientConfig.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, target, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}
