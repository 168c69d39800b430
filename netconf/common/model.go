package common

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Defines structs representing netconf messages.

// Request represents the body of a Netconf RPC request: either an xml string used verbatim, or a
// struct with xml tags.
type Request interface{}

// HelloMessage defines the message sent/received during session negotiation.
type HelloMessage struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 hello"`
	Capabilities []string `xml:"capabilities>capability"`
	SessionID    uint64   `xml:"session-id,omitempty"`
}

// RPCMessage defines an rpc request message.
type RPCMessage struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc"`
	MessageID string   `xml:"message-id,attr"`
	*Union
}

// RPCReply defines an rpc reply message.
type RPCReply struct {
	XMLName   xml.Name   `xml:"rpc-reply"`
	Errors    []RPCError `xml:"rpc-error,omitempty"`
	Data      string     `xml:",innerxml"`
	Ok        *struct{}  `xml:"ok"`
	MessageID string     `xml:"message-id,attr"`
}

// RPCError defines an error reply to a RPC request.
type RPCError struct {
	Type     string `xml:"error-type"`
	Tag      string `xml:"error-tag"`
	Severity string `xml:"error-severity"`
	Path     string `xml:"error-path"`
	Message  string `xml:"error-message"`
	Info     string `xml:",innerxml"`
}

// Error generates a string representation of the RPC error.
func (re *RPCError) Error() string {
	msg := strings.TrimSpace(re.Message)
	if re.Tag != "" {
		return fmt.Sprintf("netconf rpc [%s] %s '%s'", re.Severity, re.Tag, msg)
	}
	return fmt.Sprintf("netconf rpc [%s] '%s'", re.Severity, msg)
}

// Warnings delivers the messages of any non-fatal errors in the reply.
func (r *RPCReply) Warnings() []string {
	var out []string
	for i := range r.Errors {
		if r.Errors[i].Severity == "warning" {
			out = append(out, strings.TrimSpace(r.Errors[i].Message))
		}
	}
	return out
}

// Union holds a request body that is either a struct or a raw xml string.
type Union struct {
	ValueStr interface{}
	ValueXML string `xml:",innerxml"`
}

// GetUnion wraps a request body.
func GetUnion(s interface{}) *Union {
	switch request := s.(type) {
	case string:
		return &Union{ValueXML: request}
	default:
		return &Union{ValueStr: request}
	}
}

// DefaultCapabilities sets the default capabilities of the client library.
var DefaultCapabilities = []string{
	CapBase10,
	CapBase11,
}

// NoChunkedCodecCapabilities omits the chunked codec capability.
var NoChunkedCodecCapabilities = []string{
	CapBase10,
}

// Define xml names for different netconf messages.
var (
	NameHello    = xml.Name{Space: NetconfNS, Local: "hello"}
	NameRPC      = xml.Name{Space: NetconfNS, Local: "rpc"}
	NameRPCReply = xml.Name{Space: NetconfNS, Local: "rpc-reply"}
)

// Define netconf URNs.
const (
	NetconfNS    = "urn:ietf:params:xml:ns:netconf:base:1.0"
	CapBase10    = "urn:ietf:params:netconf:base:1.0"
	CapBase11    = "urn:ietf:params:netconf:base:1.1"
	CapCandidate = "urn:ietf:params:netconf:capability:candidate:1.0"
	CapRollback  = "urn:ietf:params:netconf:capability:rollback-on-error:1.0"
	CapValidate  = "urn:ietf:params:netconf:capability:validate:1.1"
)

// PeerSupportsChunkedFraming returns true if capability list indicates support for chunked framing.
func PeerSupportsChunkedFraming(caps []string) bool {
	return HasCapability(caps, CapBase11)
}

// HasCapability reports whether caps includes capability, ignoring any query parameters.
func HasCapability(caps []string, capability string) bool {
	for _, c := range caps {
		if i := strings.IndexByte(c, '?'); i >= 0 {
			c = c[:i]
		}
		if strings.TrimSpace(c) == capability {
			return true
		}
	}
	return false
}
