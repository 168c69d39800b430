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

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaximumMessageSize bounds the size of a decoded message.
func WithMaximumMessageSize(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxSize = n
	}
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithMaximumChunkSize bounds the size of the chunks written in chunked mode.
// Zero places no ceiling on the chunk size.
func WithMaximumChunkSize(n uint32) EncoderOption {
	return func(e *Encoder) {
		e.maxChunk = n
	}
}

// SetChunkedFraming enables chunked framing mode on any non-nil
// *Decoder and *Encoder objects passed to it.
func SetChunkedFraming(objects ...interface{}) {
	setChunked(true, objects...)
}

// ClearChunkedFraming disables chunked framing mode on any non-nil
// *Decoder and *Encoder objects passed to it.
func ClearChunkedFraming(objects ...interface{}) {
	setChunked(false, objects...)
}

func setChunked(on bool, objects ...interface{}) {
	for _, obj := range objects {
		switch obj := obj.(type) {
		case *Decoder:
			if obj != nil {
				obj.chunked = on
			}
		case *Encoder:
			if obj != nil {
				obj.chunked = on
			}
		}
	}
}
