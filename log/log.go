// Package log provides the leveled logger shared by netdeploy commands and libraries.
package log

import (
	"io"
	"os"
	"strings"

	logging "github.com/op/go-logging"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

const module = "netdeploy"

const (
	textFormat    = "%{time:2006-01-02 15:04:05} %{level:-7s} %{message}"
	textFormatTTY = "%{color}%{time:2006-01-02 15:04:05} %{level:-7s}%{color:reset} %{message}"
)

var (
	log     = logging.MustGetLogger(module)
	backend logging.LeveledBackend
	out     io.Writer
	colored bool
)

func init() {
	log.ExtraCalldepth = 1
	Init(os.Stderr, "info", true)
}

// GetTextFormat delivers the log format for w, with colors when w is a terminal.
func GetTextFormat(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return textFormatTTY
	}
	return textFormat
}

// Init directs log output to w at the given level.
// Colors are used only if allowed and w is a terminal.
func Init(w io.Writer, level string, colors bool) {
	setBackend(w, parseLevel(level), colors)
}

// DisableColors keeps the current writer and level but drops colored output.
func DisableColors() {
	setBackend(out, backend.GetLevel(module), false)
}

// Colors reports whether colored output is allowed. It is still suppressed on writers that are not
// terminals.
func Colors() bool {
	return colored
}

func setBackend(w io.Writer, level logging.Level, colors bool) {
	format := textFormat
	if colors {
		format = GetTextFormat(w)
	}
	var b logging.Backend = logging.NewLogBackend(w, "", 0)
	b = logging.NewBackendFormatter(b, logging.MustStringFormatter(format))
	leveled := logging.AddModuleLevel(b)
	leveled.SetLevel(level, module)
	out = w
	colored = colors
	backend = leveled
	log.SetBackend(leveled)
}

// SetLevel changes the level of the current backend.
func SetLevel(level string) error {
	lvl, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	backend.SetLevel(lvl, module)
	return nil
}

// IsDebug reports whether debug output is enabled.
func IsDebug() bool {
	return backend.IsEnabledFor(logging.DEBUG, module)
}

func parseLevel(level string) logging.Level {
	lvl, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		return logging.INFO
	}
	return lvl
}

func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Noticef(format string, args ...interface{}) {
	log.Noticef(format, args...)
}

func Warningf(format string, args ...interface{}) {
	log.Warningf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Warning logs err at warning level.
func Warning(err error) {
	log.Warning(err.Error())
}

// Error logs err at error level.
func Error(err error) {
	log.Error(err.Error())
}
