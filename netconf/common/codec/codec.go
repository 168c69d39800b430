package codec

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/netconf/rfc6242"
)

// Message is a decoded netconf message, identified by the name of its root element.
type Message struct {
	Name xml.Name
	Body []byte
}

// Unmarshal decodes the message body into v.
func (m *Message) Unmarshal(v interface{}) error {
	return xml.Unmarshal(m.Body, v)
}

// Decoder reads netconf messages, wrapping the RFC6242-compliant decoder (for netconf message
// framing).
type Decoder struct {
	ncDecoder *rfc6242.Decoder
}

// Encoder writes netconf messages, wrapping the RFC6242-compliant encoder (for netconf message
// framing).
type Encoder struct {
	ncEncoder *rfc6242.Encoder
}

// NewDecoder delivers a new decoder.
func NewDecoder(t io.Reader) *Decoder {
	return &Decoder{ncDecoder: rfc6242.NewDecoder(t)}
}

// NewEncoder delivers a new encoder.
func NewEncoder(t io.Writer) *Encoder {
	return &Encoder{ncEncoder: rfc6242.NewEncoder(t)}
}

// Decode reads the next message.
func (d *Decoder) Decode() (*Message, error) {
	b, err := d.ncDecoder.ReadMessage()
	if err != nil {
		return nil, err
	}
	name, err := rootName(b)
	if err != nil {
		return nil, errors.Wrap(err, "decode message failed")
	}
	return &Message{Name: name, Body: b}, nil
}

func rootName(b []byte) (xml.Name, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.Name{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name, nil
		}
	}
}

// Encode encodes a netconf message, prefixed by the xml document declaration.
func (e *Encoder) Encode(msg interface{}) error {
	b, err := xml.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message failed")
	}
	if _, err = e.ncEncoder.Write(append([]byte(xml.Header), b...)); err != nil {
		return err
	}
	return e.ncEncoder.EndOfMessage()
}

// EnableChunkedFraming enables chunked framing on the specified decoder and encoder.
func EnableChunkedFraming(d *Decoder, e *Encoder) {
	rfc6242.SetChunkedFraming(d.ncDecoder, e.ncEncoder)
}
