package cli

import (
	"context"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultPromptPattern matches the exec and configuration prompts of common network operating
// systems, such as "leaf1#", "leaf1>" and "leaf1(config-s-a1b2)#".
const DefaultPromptPattern = `^[\w.\-@/:]+(\([\w.\-@/:+ ]*\))?[#>$]\s?$`

// SessionFactory creates cli sessions.
type SessionFactory interface {
	NewSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string, opts ...SessionOption) (s Session, err error)
}

// SessionOption implements options for configuring session behaviour.
type SessionOption func(*SessionConfig)

// WithCommands defines initialisation commands to be executed after a session has been established.
func WithCommands(cmds ...string) SessionOption {
	return func(c *SessionConfig) {
		c.initCmds = cmds
	}
}

// WithPrompt overrides the automatic prompt detection that a new client session applies to determine the cli prompt
// that is used to detect the end of a server response. The pattern is matched against the last
// line of output.
func WithPrompt(pattern string) SessionOption {
	return func(c *SessionConfig) {
		c.pattern = pattern
	}
}

// WithTimeout defines the length of time to wait without receiving any input that is used to determine
// that the server has completed a response, when auto-detecting the cli prompt.
func WithTimeout(timeout time.Duration) SessionOption {
	return func(c *SessionConfig) {
		c.readTimeout = timeout
	}
}

// WithCommandTimeout defines the longest time a Send will wait for the end of a response.
func WithCommandTimeout(timeout time.Duration) SessionOption {
	return func(c *SessionConfig) {
		c.commandTimeout = timeout
	}
}

// SessionConfig defines properties controlling session behaviour.
type SessionConfig struct {
	// Any commands that should be executed after establishing a new session.
	initCmds []string
	// If not empty, defines a regular expression that should be used to identify the cli prompt.
	// Otherwise the prompt is auto-detected at session startup.
	pattern string
	// See WithTimeout above.
	readTimeout time.Duration
	// See WithCommandTimeout above.
	commandTimeout time.Duration
}

// DefaultConfig holds the values applied to any property left unset.
var DefaultConfig = SessionConfig{
	readTimeout:    time.Second,
	commandTimeout: 60 * time.Second,
}

type factoryImpl struct {
	cfg *SessionConfig
}

func (f *factoryImpl) NewSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string,
	opts ...SessionOption) (s Session, err error) {
	config := *f.cfg
	for _, opt := range opts {
		opt(&config)
	}

	t, err := NewSSHTransport(ctx, sshcfg, target)
	if err != nil {
		return nil, err
	}

	if s, err = NewCliSession(ctx, t, &config); err != nil {
		_ = t.Close()
		return nil, err
	}
	return s, nil
}

// NewSessionFactory delivers a factory creating sessions with cfg, or DefaultConfig if nil.
func NewSessionFactory(cfg *SessionConfig) SessionFactory {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	resolved := cfg.withDefaults()
	return &factoryImpl{cfg: &resolved}
}

// withDefaults applies DefaultConfig to unset properties. The fields are unexported, so mergo
// cannot reach them.
func (c SessionConfig) withDefaults() SessionConfig {
	if c.readTimeout == 0 {
		c.readTimeout = DefaultConfig.readTimeout
	}
	if c.commandTimeout == 0 {
		c.commandTimeout = DefaultConfig.commandTimeout
	}
	return c
}
