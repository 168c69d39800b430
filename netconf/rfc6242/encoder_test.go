package rfc6242

import (
	"bytes"
	"errors"
	"testing"

	assert "github.com/stretchr/testify/require"
)

const EOM = "]]>]]>"

func encode(e *Encoder, eom bool, parts ...string) {
	for _, p := range parts {
		_, _ = e.Write([]byte(p))
	}
	if eom {
		_ = e.EndOfMessage()
	}
}

func TestEndOfMessageEncoding(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)

	encode(e, false, "<rpc/>", "")
	assert.Equal(t, "<rpc/>", buf.String())
	encode(e, true, "<hello/>")
	assert.Equal(t, "<rpc/><hello/>"+EOM, buf.String())
}

func TestChunkedEncoding(t *testing.T) {
	tests := []struct {
		name    string
		chunksz uint32
		inputs  []string
		expect  string
	}{
		{"SingleChunk", 0, []string{"ABC"}, "\n#3\nABC\n##\n"},
		{"SplitChunks", 5, []string{"ABCDEFGH"}, "\n#5\nABCDE\n#3\nFGH\n##\n"},
		{"ExactChunk", 3, []string{"ABC", "D"}, "\n#3\nABC\n#1\nD\n##\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := NewEncoder(&buf, WithMaximumChunkSize(tt.chunksz))
			SetChunkedFraming(e)
			encode(e, true, tt.inputs...)
			assert.Equal(t, tt.expect, buf.String())
		})
	}
}

type failingWriter struct{ n int }

func (f *failingWriter) Write(b []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("broken pipe")
	}
	f.n--
	return len(b), nil
}

func TestChunkedWriteFailure(t *testing.T) {
	e := NewEncoder(&failingWriter{n: 1}, WithMaximumChunkSize(2))
	SetChunkedFraming(e)

	n, err := e.Write([]byte("ABCD"))
	assert.EqualError(t, err, "broken pipe")
	assert.Equal(t, 2, n)
}

func TestEncoderClose(t *testing.T) {
	assert.NoError(t, NewEncoder(&bytes.Buffer{}).Close())
}
