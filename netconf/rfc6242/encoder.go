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
	"io"
	"strconv"
)

var tokenEndOfChunks = []byte("\n##\n")

// Encoder frames the messages written to an underlying writer. It starts in end-of-message
// framing; SetChunkedFraming switches it to chunked framing once both peers advertised base:1.1.
type Encoder struct {
	w        io.Writer
	chunked  bool
	maxChunk uint32
	frame    []byte
}

// NewEncoder returns an Encoder writing to w, configured by opts.
func NewEncoder(w io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{w: w, maxChunk: rfc6242maximumAllowedChunkSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Write writes b as part of the current message. In chunked mode b is split into chunks of at
// most the maximum chunk size, each written with its header in a single write.
func (e *Encoder) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if !e.chunked {
		return e.w.Write(b)
	}

	n := 0
	for n < len(b) {
		size := len(b) - n
		if e.maxChunk > 0 && uint64(size) > uint64(e.maxChunk) {
			size = int(e.maxChunk)
		}
		e.frame = append(e.frame[:0], '\n', '#')
		e.frame = strconv.AppendInt(e.frame, int64(size), 10)
		e.frame = append(e.frame, '\n')
		e.frame = append(e.frame, b[n:n+size]...)
		if _, err := e.w.Write(e.frame); err != nil {
			return n, err
		}
		n += size
	}
	return n, nil
}

// EndOfMessage terminates the current message, with "]]>]]>" or, in chunked mode, "\n##\n".
func (e *Encoder) EndOfMessage() error {
	token := tokenEOM
	if e.chunked {
		token = tokenEndOfChunks
	}
	_, err := e.w.Write(token)
	return err
}

// Close closes the underlying writer if it is an io.Closer.
func (e *Encoder) Close() error {
	if c, ok := e.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
