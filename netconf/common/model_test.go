package common

import (
	"encoding/xml"
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestRPCErrorString(t *testing.T) {
	err := &RPCError{Severity: "error", Tag: "lock-denied", Message: " locked by 12\n"}
	assert.Equal(t, "netconf rpc [error] lock-denied 'locked by 12'", err.Error())

	err = &RPCError{Severity: "warning", Message: "statement ignored"}
	assert.Equal(t, "netconf rpc [warning] 'statement ignored'", err.Error())
}

func TestUnmarshalReply(t *testing.T) {
	reply := &RPCReply{}
	err := xml.Unmarshal([]byte(`<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="7">
<rpc-error><error-type>protocol</error-type><error-severity>warning</error-severity><error-message>w1</error-message></rpc-error>
<ok/></rpc-reply>`), reply)
	assert.NoError(t, err)
	assert.Equal(t, "7", reply.MessageID)
	assert.NotNil(t, reply.Ok)
	assert.Equal(t, []string{"w1"}, reply.Warnings())
}

func TestMarshalRPC(t *testing.T) {
	b, err := xml.Marshal(&RPCMessage{MessageID: "1", Union: GetUnion("<get/>")})
	assert.NoError(t, err)
	assert.Equal(t, `<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1"><get/></rpc>`, string(b))
}

func TestCapabilities(t *testing.T) {
	caps := []string{CapBase10, CapCandidate + "?module=x"}
	assert.False(t, PeerSupportsChunkedFraming(caps))
	assert.True(t, PeerSupportsChunkedFraming(DefaultCapabilities))
	assert.True(t, HasCapability(caps, CapCandidate))
	assert.False(t, HasCapability(caps, CapValidate))
}
