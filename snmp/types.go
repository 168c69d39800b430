package snmp

import (
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/geoffgarside/ber"
)

// DataType is the SNMP type of a value in a variable binding.
type DataType int

const (
	Integer DataType = iota
	OctetString
	OID

	IPAddress
	Time
	Counter32
	Counter64
	Gauge32
	Opaque

	EndOfMib
	NoSuchObject
	NoSuchInstance
)

// Tag numbers of the SNMP application and context types, without the class bits.
const (
	ipTag             = 0
	counter32Tag      = 1
	gauge32Tag        = 2
	timeTag           = 3
	opaqueTag         = 4
	counter64Tag      = 6
	noSuchObjectTag   = 0
	noSuchInstanceTag = 1
	endOfMibTag       = 2
)

// TypedValue is a decoded variable. Value holds an int64 for Integer, a uint32 for Counter32,
// Gauge32 and Time, a uint64 for Counter64, an asn1.ObjectIdentifier for OID, a []byte for the
// string types and nil for the exception types.
type TypedValue struct {
	Type  DataType
	Value interface{}
}

type decoding struct {
	dataType DataType
	// universal tag the value is rewritten to before decoding; zero means no content
	universal int
}

type classTag struct {
	class, tag int
}

var decodings = map[classTag]decoding{
	{asn1.ClassUniversal, asn1.TagInteger}:         {Integer, asn1.TagInteger},
	{asn1.ClassUniversal, asn1.TagOctetString}:     {OctetString, asn1.TagOctetString},
	{asn1.ClassUniversal, asn1.TagOID}:             {OID, asn1.TagOID},
	{asn1.ClassApplication, ipTag}:                 {IPAddress, asn1.TagOctetString},
	{asn1.ClassApplication, counter32Tag}:          {Counter32, asn1.TagInteger},
	{asn1.ClassApplication, gauge32Tag}:            {Gauge32, asn1.TagInteger},
	{asn1.ClassApplication, timeTag}:               {Time, asn1.TagInteger},
	{asn1.ClassApplication, opaqueTag}:             {Opaque, asn1.TagOctetString},
	{asn1.ClassApplication, counter64Tag}:          {Counter64, asn1.TagInteger},
	{asn1.ClassContextSpecific, noSuchObjectTag}:   {NoSuchObject, 0},
	{asn1.ClassContextSpecific, noSuchInstanceTag}: {NoSuchInstance, 0},
	{asn1.ClassContextSpecific, endOfMibTag}:       {EndOfMib, 0},
}

// unmarshalVariable decodes a raw value into its SNMP type. The BER decoder only understands the
// universal types, so application types are retagged as the universal type they are encoded as.
func unmarshalVariable(raw *asn1.RawValue) (*TypedValue, error) {
	dec, ok := decodings[classTag{raw.Class, raw.Tag}]
	if !ok {
		return nil, fmt.Errorf("unsupported class %d tag %d", raw.Class, raw.Tag)
	}
	tv := &TypedValue{Type: dec.dataType}
	if dec.universal == 0 {
		return tv, nil
	}
	raw.FullBytes[0] = byte(dec.universal)

	switch dec.universal {
	case asn1.TagInteger:
		var n int64
		if _, err := ber.Unmarshal(raw.FullBytes, &n); err != nil {
			return nil, err
		}
		switch dec.dataType { //nolint: exhaustive
		case Counter32, Gauge32, Time:
			tv.Value = uint32(n)
		case Counter64:
			tv.Value = uint64(n)
		default:
			tv.Value = n
		}
	case asn1.TagOctetString:
		var b []byte
		if _, err := ber.Unmarshal(raw.FullBytes, &b); err != nil {
			return nil, err
		}
		tv.Value = b
	case asn1.TagOID:
		var v interface{}
		if _, err := ber.Unmarshal(raw.FullBytes, &v); err != nil {
			return nil, err
		}
		ints, ok := v.([]int)
		if !ok {
			return nil, fmt.Errorf("unexpected oid value %T", v)
		}
		tv.Value = asn1.ObjectIdentifier(ints)
	}
	return tv, nil
}

// Duration converts a Time value, counted in hundredths of a second.
func (tv *TypedValue) Duration() (time.Duration, error) {
	if tv.Type != Time {
		return 0, fmt.Errorf("non-time data type %d", tv.Type)
	}
	return time.Duration(tv.Value.(uint32)) * 10 * time.Millisecond, nil
}

func (tv *TypedValue) String() string {
	switch tv.Type {
	case Integer:
		return strconv.FormatInt(tv.Value.(int64), 10)
	case OctetString:
		return string(tv.Value.([]byte))
	case OID:
		return tv.Value.(asn1.ObjectIdentifier).String()
	case Time:
		d, _ := tv.Duration()
		return d.String()
	case Counter32, Gauge32:
		return strconv.FormatUint(uint64(tv.Value.(uint32)), 10)
	case Counter64:
		return strconv.FormatUint(tv.Value.(uint64), 10)
	case IPAddress:
		return net.IP(tv.Value.([]byte)).String()
	case Opaque:
		return hex.EncodeToString(tv.Value.([]byte))
	case EndOfMib:
		return "End of Mib"
	case NoSuchObject:
		return "No such Object"
	case NoSuchInstance:
		return "No such Instance"
	}
	return fmt.Sprintf("unrecognised data type %d", tv.Type)
}
