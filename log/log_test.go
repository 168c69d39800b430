package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	logging "github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LogTestSuite struct {
	suite.Suite
	Buf *bytes.Buffer
}

func (s *LogTestSuite) SetupTest() {
	s.Buf = &bytes.Buffer{}
	var b logging.Backend = logging.NewLogBackend(s.Buf, "", 0)
	b = logging.NewBackendFormatter(b, logging.MustStringFormatter("%{shortfile} %{level} %{message}"))
	backend = logging.AddModuleLevel(b)
	backend.SetLevel(logging.DEBUG, module)
	log.SetBackend(backend)
}

func (s *LogTestSuite) TearDownSuite() {
	Init(os.Stderr, "info", false)
}

func (s *LogTestSuite) TestLogCallDepth() {
	Debugf("test file")
	parts := strings.SplitN(s.Buf.String(), " ", 3)
	assert.True(s.T(), strings.HasPrefix(parts[0], "log_test.go:"), parts[0])
}

func (s *LogTestSuite) TestLogf() {
	t := s.T()

	Debugf("test %s level log", "debug")
	parts := strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "DEBUG", parts[1])
	assert.Equal(t, "test debug level log\n", parts[2])
	s.Buf.Reset()

	Infof("test %s level log", "info")
	parts = strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "INFO", parts[1])
	assert.Equal(t, "test info level log\n", parts[2])
	s.Buf.Reset()

	Noticef("test %s level log", "notice")
	parts = strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "NOTICE", parts[1])
	s.Buf.Reset()

	Warningf("test %s level log", "warning")
	parts = strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "WARNING", parts[1])
	assert.Equal(t, "test warning level log\n", parts[2])
	s.Buf.Reset()

	Errorf("test %s level log", "error")
	parts = strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "ERROR", parts[1])
	assert.Equal(t, "test error level log\n", parts[2])
	s.Buf.Reset()
}

func (s *LogTestSuite) TestLogErr() {
	t := s.T()

	err := errors.New("error to log")

	Warning(err)
	parts := strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "WARNING", parts[1])
	assert.Equal(t, "error to log\n", parts[2])
	s.Buf.Reset()

	Error(err)
	parts = strings.SplitN(s.Buf.String(), " ", 3)
	assert.Equal(t, "ERROR", parts[1])
	assert.Equal(t, "error to log\n", parts[2])
	s.Buf.Reset()
}

func (s *LogTestSuite) TestSetLevel() {
	t := s.T()

	assert.NoError(t, SetLevel("warning"))
	assert.False(t, IsDebug())
	Infof("hidden")
	assert.Empty(t, s.Buf.String())

	assert.NoError(t, SetLevel("debug"))
	assert.True(t, IsDebug())

	assert.Error(t, SetLevel("loud"))
}

func TestLogTestSuite(t *testing.T) {
	suite.Run(t, new(LogTestSuite))
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, logging.INFO, parseLevel("nonsense"))
	assert.Equal(t, logging.ERROR, parseLevel("error"))
}

func TestTextFormatFollowsWriter(t *testing.T) {
	assert.Equal(t, textFormat, GetTextFormat(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "log")
	assert.NoError(t, err)
	defer f.Close()
	assert.Equal(t, textFormat, GetTextFormat(f))
}

func TestDisableColorsKeepsWriterAndLevel(t *testing.T) {
	defer Init(os.Stderr, "info", false)

	buf := &bytes.Buffer{}
	Init(buf, "warning", true)
	assert.True(t, Colors())
	DisableColors()
	assert.False(t, Colors())

	Infof("hidden")
	Warningf("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARNING shown")
	assert.NotContains(t, buf.String(), "\x1b[")
}
