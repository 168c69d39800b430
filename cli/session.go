// Package cli drives the interactive command line of a network device over an SSH shell.
package cli

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Session defines the API exposed by an SSH client.
type Session interface {
	// Send writes the supplied value to the server and returns the response, excluding the
	// trailing prompt and any echo of the value.
	// The behaviour can be modified by opts - see SendOption variants below.
	Send(ctx context.Context, value string, opts ...SendOption) (string, error)
	// Client delivers the ssh client carrying the session.
	Client() *ssh.Client
	io.Closer
}

// ErrTimeout is returned when the end of a response is not seen within the command timeout.
var ErrTimeout = errors.New("timed out waiting for cli response")

// SendOption implements options for configuring Send behaviour.
type SendOption func(*SendConfig)

// WaitFor defines the regular expression that indicates the end of the response to the send.
// Defaults to the current prompt.
func WaitFor(sentinel string) SendOption {
	return func(c *SendConfig) {
		c.responseSentinel = sentinel
	}
}

// NoNewline suppresses the newline that is by default appended to the Send string.
func NoNewline() SendOption {
	return func(c *SendConfig) {
		c.suppressNewline = true
	}
}

// ResetPrompt resets the current session prompt to the last unterminated line of response.
func ResetPrompt() SendOption {
	return func(c *SendConfig) {
		c.resetPrompt = true
	}
}

// NoWait indicates the Send should not wait for a response.
func NoWait() SendOption {
	return func(c *SendConfig) {
		c.noResponse = true
	}
}

// SendConfig defines properties controlling Send behaviour.
type SendConfig struct {
	suppressNewline  bool
	resetPrompt      bool
	noResponse       bool
	responseSentinel string
}

type sessionImpl struct {
	cfg   *SessionConfig
	tport Transport
	// promptPattern defines the regex used to determine the end of a response.
	promptPattern *regexp.Regexp
	// Used to queue the inputs received from the server.
	inputs chan []byte
	// Input read beyond the end of the previous response.
	pending []byte
}

// NewCliSession establishes a client connection to a cli session running on the server associated with the supplied
// transport.
func NewCliSession(ctx context.Context, tport Transport, cfg *SessionConfig) (Session, error) {
	resolvedConfig := cfg.withDefaults()

	var pattern *regexp.Regexp
	var err error
	if resolvedConfig.pattern != "" {
		pattern, err = regexp.Compile(resolvedConfig.pattern)
		if err != nil {
			return nil, errors.Wrap(err, "invalid prompt pattern")
		}
	}

	sess := &sessionImpl{cfg: &resolvedConfig, tport: tport, inputs: make(chan []byte), promptPattern: pattern}

	// Launch the reader to capture input from the server.
	sess.launchReader()

	// Capture the cli prompt from the new session.
	if pattern == nil {
		err = sess.capturePrompt(ctx)
	} else {
		// Swallow the banner and first prompt.
		_, err = sess.readUntilValue(ctx, pattern)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to capture cli prompt")
	}

	// Execute any initial commands, ignoring any response values.
	for _, cmd := range sess.cfg.initCmds {
		if _, err = sess.Send(ctx, cmd); err != nil {
			return nil, errors.Wrap(err, "failed to execute initial command "+cmd)
		}
	}

	return sess, nil
}

// Captures the cli prompt.
// We keep reading until a read times out.
// Then we use the content after the last newline.
func (s *sessionImpl) capturePrompt(ctx context.Context) error {
	b, err := s.readUntilTimeout(ctx)
	if err != nil {
		return err
	}
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	pbytes := bytes.TrimSpace(b[bytes.LastIndex(b, []byte("\n"))+1:])
	if len(pbytes) == 0 {
		return errors.New("no prompt received")
	}
	s.promptPattern = regexp.MustCompile(regexp.QuoteMeta(string(pbytes)) + `\s?$`)
	return nil
}

// Keep reading input from the server, until a read times out.
func (s *sessionImpl) readUntilTimeout(ctx context.Context) ([]byte, error) {
	output := bytes.NewBuffer(s.pending)
	s.pending = nil
	for {
		select {
		case rd := <-s.inputs:
			if rd == nil {
				return nil, io.EOF
			}
			_, _ = output.Write(rd)
		case <-time.After(s.cfg.readTimeout):
			return output.Bytes(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *sessionImpl) Send(ctx context.Context, output string, opts ...SendOption) (string, error) {
	config := &SendConfig{}
	for _, opt := range opts {
		opt(config)
	}

	// If the caller has specified a "WaitFor" value - check it's a valid regex.
	sentinel := s.promptPattern
	if config.responseSentinel != "" {
		var err error
		if sentinel, err = regexp.Compile(config.responseSentinel); err != nil {
			return "", errors.Wrap(err, "invalid WaitFor value")
		}
	}

	// Write any output to the server.
	if len(output) > 0 {
		line := output
		if !config.suppressNewline {
			line += "\n"
		}
		if _, err := s.tport.Write([]byte(line)); err != nil {
			return "", errors.Wrap(err, "failed to send command")
		}
	}

	if config.noResponse {
		return "", nil
	}

	// If the output is expected to change the prompt value, capture the new prompt.
	if config.resetPrompt {
		return "", s.capturePrompt(ctx)
	}

	resp, err := s.readUntilValue(ctx, sentinel)
	if err != nil {
		return "", err
	}
	return stripEcho(resp, output), nil
}

func (s *sessionImpl) Client() *ssh.Client {
	return s.tport.Client()
}

func (s *sessionImpl) Close() error {
	return s.tport.Close()
}

// readUntilValue reads until the last line of input matches sentinel and returns the data
// preceding that line.
func (s *sessionImpl) readUntilValue(ctx context.Context, sentinel *regexp.Regexp) (string, error) {
	timer := time.NewTimer(s.cfg.commandTimeout)
	defer timer.Stop()

	output := bytes.NewBuffer(s.pending)
	s.pending = nil
	for {
		if output.Len() > 0 {
			tempSlice := bytes.ReplaceAll(output.Bytes(), []byte("\r\n"), []byte("\n"))
			tempSlice = bytes.ReplaceAll(tempSlice, []byte("\r"), []byte("\n"))
			lastNl := bytes.LastIndex(tempSlice, []byte("\n"))
			lastLine := tempSlice[lastNl+1:]
			if sentinel.Match(lastLine) {
				if lastNl < 0 {
					return "", nil
				}
				return string(tempSlice[:lastNl]), nil
			}
		}

		select {
		case b := <-s.inputs:
			if b == nil {
				return "", io.EOF
			}
			output.Write(b)
		case <-timer.C:
			return "", errors.Wrapf(ErrTimeout, "last output %q", tail(output.String()))
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *sessionImpl) launchReader() {
	go func() {
		defer close(s.inputs)
		for {
			const bufLength = 10000
			stdoutBuf := make([]byte, bufLength)
			byteCount, err := s.tport.Read(stdoutBuf)
			if byteCount > 0 {
				s.inputs <- stdoutBuf[:byteCount]
			}
			if err != nil {
				return
			}
		}
	}()
}

// stripEcho removes a leading empty line and the echo of cmd, if the device echoed it.
func stripEcho(resp, cmd string) string {
	resp = strings.TrimPrefix(resp, "\n")
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return resp
	}
	first := resp
	rest := ""
	if i := strings.Index(resp, "\n"); i >= 0 {
		first, rest = resp[:i], resp[i+1:]
	}
	if strings.TrimSpace(first) == cmd {
		return rest
	}
	return resp
}

func tail(s string) string {
	const n = 80
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
