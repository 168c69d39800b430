// Copyright 2018 Andrew Fort
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package rfc6242

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

var tokenEOM = []byte("]]>]]>")

// ErrMalformedChunk is returned when chunked framing is violated by the peer.
var ErrMalformedChunk = errors.New("malformed chunk")

// Decoder reads RFC6242 framed messages from an input stream.
//
// A new Decoder expects end-of-message framing. Once chunked framing is enabled (see
// SetChunkedFraming) it applies from the next message read.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	r       *bufio.Reader
	chunked bool
	// Maximum size of a decoded message, zero means unlimited.
	maxSize int
}

// NewDecoder creates a new RFC6242 transport framing decoder reading from
// input, configured with any options provided.
func NewDecoder(input io.Reader, options ...DecoderOption) *Decoder {
	d := &Decoder{r: bufio.NewReaderSize(input, defaultReaderBufferSize)}
	for _, option := range options {
		option(d)
	}
	return d
}

// ReadMessage delivers the payload of the next message, without framing.
// io.EOF is returned if the input ends between messages, io.ErrUnexpectedEOF if it ends
// part way through one.
func (d *Decoder) ReadMessage() ([]byte, error) {
	if d.chunked {
		return d.readChunked()
	}
	return d.readEndOfMessage()
}

func (d *Decoder) readEndOfMessage() ([]byte, error) {
	var msg []byte
	for {
		b, err := d.r.ReadBytes(tokenEOM[len(tokenEOM)-1])
		msg = append(msg, b...)
		if bytes.HasSuffix(msg, tokenEOM) {
			return msg[:len(msg)-len(tokenEOM)], nil
		}
		if err != nil {
			return nil, eofError(err, msg)
		}
		if err = d.checkSize(len(msg)); err != nil {
			return nil, err
		}
	}
}

func (d *Decoder) readChunked() ([]byte, error) {
	var msg []byte
	first := true
	for {
		if err := d.readChunkStart(first); err != nil {
			if first && err == io.EOF {
				return nil, io.EOF
			}
			return nil, eofError(err, []byte{0})
		}
		first = false

		c, err := d.r.ReadByte()
		if err != nil {
			return nil, eofError(err, []byte{0})
		}
		if c == '#' {
			// end of chunks
			if c, err = d.r.ReadByte(); err != nil || c != '\n' {
				return nil, chunkError(err, "end of chunks")
			}
			return msg, nil
		}
		if err = d.r.UnreadByte(); err != nil {
			return nil, err
		}

		size, err := d.readChunkSize()
		if err != nil {
			return nil, err
		}
		if err = d.checkSize(len(msg) + size); err != nil {
			return nil, err
		}
		chunk := make([]byte, size)
		if _, err = io.ReadFull(d.r, chunk); err != nil {
			return nil, eofError(err, []byte{0})
		}
		msg = append(msg, chunk...)
	}
}

// readChunkStart consumes the "\n#" that opens a chunk header. Whitespace ahead of the first
// chunk of a message is tolerated.
func (d *Decoder) readChunkStart(first bool) error {
	c, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	if first {
		for c == '\r' || c == ' ' || c == '\t' || (c == '\n' && d.nextIsNewline()) {
			if c, err = d.r.ReadByte(); err != nil {
				return err
			}
		}
	}
	if c != '\n' {
		return chunkError(nil, "chunk start")
	}
	if c, err = d.r.ReadByte(); err != nil || c != '#' {
		return chunkError(err, "chunk start")
	}
	return nil
}

func (d *Decoder) nextIsNewline() bool {
	b, err := d.r.Peek(1)
	return err == nil && b[0] == '\n'
}

func (d *Decoder) readChunkSize() (int, error) {
	line, err := d.r.ReadSlice('\n')
	if err != nil {
		return 0, chunkError(err, "chunk size")
	}
	digits := line[:len(line)-1]
	if len(digits) == 0 || len(digits) > rfc6242maximumAllowedChunkSizeLength || digits[0] == '0' {
		return 0, chunkError(nil, "chunk size")
	}
	size, err := strconv.ParseUint(string(digits), 10, 64)
	if err != nil || size > rfc6242maximumAllowedChunkSize {
		return 0, chunkError(nil, "chunk size")
	}
	return int(size), nil
}

func (d *Decoder) checkSize(n int) error {
	if d.maxSize > 0 && n > d.maxSize {
		return errors.Errorf("message exceeds %d bytes", d.maxSize)
	}
	return nil
}

func eofError(err error, partial []byte) error {
	if err == io.EOF && len(bytes.TrimSpace(partial)) > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

func chunkError(err error, where string) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	if err != nil {
		return errors.Wrap(err, where)
	}
	return errors.Wrap(ErrMalformedChunk, where)
}

const (
	// RFC6242 section 4.2 defines the "maximum allowed chunk-size".
	rfc6242maximumAllowedChunkSize = 4294967295
	// the length of `rfc6242maximumAllowedChunkSize` in bytes on the wire.
	rfc6242maximumAllowedChunkSizeLength = 10
	// defaultReaderBufferSize is the default read buffer capacity size.
	defaultReaderBufferSize = 65536
)
