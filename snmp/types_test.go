package snmp

import (
	"encoding/asn1"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestTypedValueString(t *testing.T) {
	tests := []struct {
		tv   TypedValue
		want string
	}{
		{TypedValue{Type: Integer, Value: int64(-5)}, "-5"},
		{TypedValue{Type: OctetString, Value: []byte("eos1")}, "eos1"},
		{TypedValue{Type: OID, Value: asn1.ObjectIdentifier{1, 3, 6}}, "1.3.6"},
		{TypedValue{Type: Time, Value: uint32(150)}, "1.5s"},
		{TypedValue{Type: Counter32, Value: uint32(7)}, "7"},
		{TypedValue{Type: Counter64, Value: uint64(1 << 40)}, "1099511627776"},
		{TypedValue{Type: IPAddress, Value: []byte{192, 0, 2, 1}}, "192.0.2.1"},
		{TypedValue{Type: Opaque, Value: []byte{0xde, 0xad}}, "dead"},
		{TypedValue{Type: NoSuchObject}, "No such Object"},
		{TypedValue{Type: DataType(99)}, "unrecognised data type 99"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tv.String())
	}
}

func TestUnmarshalVariable(t *testing.T) {
	tv, err := unmarshalVariable(&asn1.RawValue{Class: asn1.ClassApplication, Tag: timeTag, FullBytes: []byte{0x43, 0x01, 0x64}})
	assert.NoError(t, err)
	assert.Equal(t, uint32(100), tv.Value)

	tv, err = unmarshalVariable(&asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: endOfMibTag})
	assert.NoError(t, err)
	assert.Equal(t, EndOfMib, tv.Type)

	_, err = unmarshalVariable(&asn1.RawValue{Class: asn1.ClassPrivate, Tag: 1})
	assert.EqualError(t, err, "unsupported class 3 tag 1")
}
