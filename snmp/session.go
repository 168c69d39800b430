// Package snmp provides an SNMPv2c GET client, used to probe device readiness.
package snmp

import (
	"context"
	"encoding/asn1"
	"net"
	"strconv"
	"strings"

	"github.com/geoffgarside/ber"
	"github.com/pkg/errors"
)

//go:generate mockgen -destination=mocks/conn.go -package=mocks net Conn

// Session issues requests to a single agent.
type Session interface {
	// Get fetches the values of oids, following RFC 1905 section 4.2.1. Timed out requests are
	// resent up to the configured number of retries.
	Get(ctx context.Context, oids []string) (*PDU, error)

	Close() error
}

// PDU is a decoded response.
type PDU struct {
	RequestID int32
	// Error is the error-status; non-zero when the agent could not process the request.
	Error int
	// ErrorIndex is the 1-based position of the binding that caused Error.
	ErrorIndex  int
	VarbindList []Varbind
}

type Varbind struct {
	OID        asn1.ObjectIdentifier
	TypedValue *TypedValue
}

// PDU types carried in the context specific tag of the pdu.
const (
	getRequestTag  = 0xA0
	getResponseTag = 0xA2
	sequenceTag    = 0x30
)

// Largest datagram read.
const maxDatagram = 65535

// wirePDU is a pdu with undecoded values.
type wirePDU struct {
	RequestID   int32
	Error       int
	ErrorIndex  int
	VarbindList []wireVarbind
}

type wireVarbind struct {
	OID   asn1.ObjectIdentifier
	Value asn1.RawValue
}

// message is the outer sequence. The pdu is kept raw as its tag names the pdu type rather than
// a sequence.
type message struct {
	Version   Version
	Community []byte
	PDU       asn1.RawValue
}

type sessionImpl struct {
	conn          net.Conn
	config        *SessionConfig
	nextRequestID int32
}

func (m *sessionImpl) Get(ctx context.Context, oids []string) (*PDU, error) {
	req, err := m.encodeGet(oids)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		resp, err := m.roundTrip(ctx, req)
		if err == nil {
			return decodeResponse(resp)
		}
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() || attempt >= m.config.retries || ctx.Err() != nil {
			return nil, err
		}
		m.config.trace.Error("retry", m.config, err)
	}
}

func (m *sessionImpl) Close() error {
	return m.conn.Close()
}

// roundTrip sends req and waits for one datagram, for no longer than the session timeout.
func (m *sessionImpl) roundTrip(ctx context.Context, req []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()
	if err := m.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	n, err := m.conn.Write(req)
	m.config.trace.WriteComplete(m.config, req[:n], err)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, maxDatagram)
	n, err = m.conn.Read(buf)
	m.config.trace.ReadComplete(m.config, buf[:n], err)
	switch {
	case err != nil:
		return nil, err
	case n == maxDatagram:
		return nil, errors.New("overflowing response buffer")
	}
	return buf[:n], nil
}

func (m *sessionImpl) encodeGet(oids []string) ([]byte, error) {
	pdu := wirePDU{RequestID: m.nextRequestID, VarbindList: make([]wireVarbind, len(oids))}
	for i, s := range oids {
		oid, err := ParseOID(s)
		if err != nil {
			return nil, err
		}
		pdu.VarbindList[i] = wireVarbind{OID: oid, Value: asn1.NullRawValue}
	}
	m.nextRequestID++

	b, err := ber.Marshal(pdu)
	if err != nil {
		return nil, err
	}
	b[0] = getRequestTag
	return ber.Marshal(message{
		Version:   m.config.version,
		Community: []byte(m.config.community),
		PDU:       asn1.RawValue{FullBytes: b},
	})
}

// decodeResponse unwraps the message, retags the pdu as a sequence so the BER decoder accepts it,
// then decodes each value by its SNMP type.
func decodeResponse(b []byte) (*PDU, error) {
	var msg message
	if _, err := ber.Unmarshal(b, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal packet failed")
	}
	raw := msg.PDU.FullBytes
	if len(raw) == 0 || raw[0] != getResponseTag {
		return nil, errors.New("unexpected message type")
	}
	raw[0] = sequenceTag

	var wire wirePDU
	if _, err := ber.Unmarshal(raw, &wire); err != nil {
		return nil, errors.Wrap(err, "unmarshal pdu failed")
	}

	pdu := &PDU{
		RequestID:   wire.RequestID,
		Error:       wire.Error,
		ErrorIndex:  wire.ErrorIndex,
		VarbindList: make([]Varbind, len(wire.VarbindList)),
	}
	for i := range wire.VarbindList {
		tv, err := unmarshalVariable(&wire.VarbindList[i].Value)
		if err != nil {
			return nil, err
		}
		pdu.VarbindList[i] = Varbind{OID: wire.VarbindList[i].OID, TypedValue: tv}
	}
	return pdu, nil
}

// ParseOID parses a dotted oid. A leading dot is accepted.
func ParseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(strings.Trim(s, "."), ".")
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, errors.Errorf("invalid oid %q", s)
		}
		oid[i] = n
	}
	return oid, nil
}
