package driver

import (
	"context"
	"regexp"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/cli"
	"github.com/damianoneill/netdeploy/inventory"
)

// ErrCommandFailed is returned when a device rejects a cli command.
var ErrCommandFailed = errors.New("command failed")

var commandErrorPattern = regexp.MustCompile(`(?m)^\s*(% ?(Invalid|Incomplete|Ambiguous|Error|Unrecognized)|ERROR:|Syntax error)`)

// CLI holds the interactive session shared by cli based drivers.
type CLI struct {
	Host    *inventory.Host
	Options Options
	// InitCommands are sent once the session is established, such as disabling paging.
	InitCommands []string
	// Factory creates the cli session. Defaults to cli.NewSessionFactory(nil).
	Factory cli.SessionFactory

	session cli.Session
}

// Open establishes the cli session.
func (c *CLI) Open(ctx context.Context) error {
	if c.session != nil {
		return nil
	}
	sshcfg, err := ClientConfig(c.Host, c.Options)
	if err != nil {
		return err
	}
	f := c.Factory
	if f == nil {
		f = cli.NewSessionFactory(nil)
	}
	opts := []cli.SessionOption{cli.WithPrompt(cli.DefaultPromptPattern), cli.WithCommands(c.InitCommands...)}
	if c.Options.CommandTimeout > 0 {
		opts = append(opts, cli.WithCommandTimeout(c.Options.CommandTimeout))
	}
	s, err := f.NewSession(ctx, sshcfg, CLIAddress(c.Host), opts...)
	if err != nil {
		return errors.Wrapf(err, "open cli to %s failed", c.Host.Name)
	}
	c.session = s
	return nil
}

// Close closes the cli session.
func (c *CLI) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// Session delivers the open cli session.
func (c *CLI) Session() (cli.Session, error) {
	if c.session == nil {
		return nil, ErrNotOpen
	}
	return c.session, nil
}

// Send runs cmd, failing with ErrCommandFailed if the device reports an error.
func (c *CLI) Send(ctx context.Context, cmd string) (string, error) {
	s, err := c.Session()
	if err != nil {
		return "", err
	}
	out, err := s.Send(ctx, cmd)
	if err != nil {
		return "", errors.Wrapf(err, "send %q failed", cmd)
	}
	if commandErrorPattern.MatchString(out) {
		return out, errors.Wrapf(ErrCommandFailed, "%s: %s", cmd, firstLine(out))
	}
	return out, nil
}

// SendAll runs each command in turn, stopping at the first failure.
func (c *CLI) SendAll(ctx context.Context, cmds ...string) error {
	for _, cmd := range cmds {
		if _, err := c.Send(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
