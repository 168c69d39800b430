package testserver

import (
	"encoding/xml"
	"sync"
	"time"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/netconf/common"
	"github.com/damianoneill/netdeploy/netconf/common/codec"
)

// TestNCServer represents a Netconf Server that can be used for 'on-board' testing.
// It encapsulates a transport connection to an SSH server, and netconf session handlers that will
// be invoked to handle netconf messages.
type TestNCServer struct {
	*SSHServer
	tctx assert.TestingT

	mu              sync.Mutex
	sessionHandlers map[uint64]*SessionHandler
	reqHandlers     []RequestHandler
	defaultHandler  RequestHandler
	caps            []string
	nextSid         uint64
}

// SessionHandler represents the server side of an active netconf SSH session.
type SessionHandler struct {
	t  assert.TestingT
	ch ssh.Channel

	enc     *codec.Encoder
	dec     *codec.Decoder
	encLock sync.Mutex

	capabilities []string
	sid          uint64

	// The HelloMessage sent by the connecting client.
	ClientHello *common.HelloMessage

	// startwg will be signalled when the session is started (specifically after client
	// capabilities have been received).
	startwg sync.WaitGroup

	mu             sync.Mutex
	reqHandlers    []RequestHandler
	defaultHandler RequestHandler
	reqs           []*RPCRequestMessage
}

// RPCRequestMessage and RPCRequest represent an RPC request from a client, where the element type of the
// request body is unknown.
type RPCRequestMessage struct {
	XMLName   xml.Name
	MessageID string     `xml:"message-id,attr"`
	Request   RPCRequest `xml:",any"`
}

// RPCRequest describes an RPC request.
type RPCRequest struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Body    string     `xml:",innerxml"`
}

// Attr delivers the value of the named request attribute.
func (r *RPCRequest) Attr(name string) string {
	for _, a := range r.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// RPCReplyMessage represents an rpc-reply message that will be sent to a client session. Body is
// written verbatim as the content of the reply.
type RPCReplyMessage struct {
	XMLName   xml.Name          `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-reply"`
	MessageID string            `xml:"message-id,attr"`
	Errors    []common.RPCError `xml:"rpc-error,omitempty"`
	Body      string            `xml:",innerxml"`
}

// RequestHandler is a function type that will be invoked by the session handler to handle an RPC
// request.
type RequestHandler func(h *SessionHandler, req *RPCRequestMessage)

// EchoRequestHandler responds to a request with a reply containing a data element holding
// the body of the request.
var EchoRequestHandler = func(h *SessionHandler, req *RPCRequestMessage) {
	h.Reply(req, "<data>"+req.Request.Body+"</data>")
}

// OkRequestHandler responds to a request with <ok/>.
var OkRequestHandler = func(h *SessionHandler, req *RPCRequestMessage) {
	h.Reply(req, "<ok/>")
}

// FailingRequestHandler replies to a request with an error.
var FailingRequestHandler = func(h *SessionHandler, req *RPCRequestMessage) {
	h.ReplyError(req, common.RPCError{Type: "application", Tag: "operation-failed", Severity: "error", Message: "oops"})
}

// CloseRequestHandler closes the transport channel on request receipt.
var CloseRequestHandler = func(h *SessionHandler, req *RPCRequestMessage) {
	h.Close()
}

// IgnoreRequestHandler does nothing on receipt of a request.
var IgnoreRequestHandler = func(h *SessionHandler, req *RPCRequestMessage) {}

// DataRequestHandler delivers a handler replying with data as the content of a data element.
func DataRequestHandler(data string) RequestHandler {
	return func(h *SessionHandler, req *RPCRequestMessage) {
		h.Reply(req, "<data>"+data+"</data>")
	}
}

// NewTestNetconfServer creates a new TestNCServer that will accept Netconf localhost connections on an ephemeral
// port (available via Port()), with credentials defined by TestUserName and TestPassword.
// The behaviour of the Netconf session handler can be configured using the WithCapabilities and
// WithRequestHandler methods.
func NewTestNetconfServer(tctx assert.TestingT) *TestNCServer {
	ncs := &TestNCServer{tctx: tctx, sessionHandlers: map[uint64]*SessionHandler{}, caps: common.DefaultCapabilities}
	ncs.SSHServer = NewSSHServerHandler(tctx, TestUserName, TestPassword, Handlers{
		Subsystems: map[string]SSHHandler{"netconf": ncs.handle},
	})
	return ncs
}

func (ncs *TestNCServer) handle(ch ssh.Channel) uint32 {
	ncs.mu.Lock()
	ncs.nextSid++
	sh := &SessionHandler{
		t:            ncs.tctx,
		ch:           ch,
		sid:          ncs.nextSid,
		capabilities: ncs.caps,
		reqHandlers:  append([]RequestHandler(nil), ncs.reqHandlers...),
	}
	sh.defaultHandler = ncs.defaultHandler
	if sh.defaultHandler == nil {
		sh.defaultHandler = EchoRequestHandler
	}
	sh.startwg.Add(1)
	ncs.sessionHandlers[sh.sid] = sh
	ncs.mu.Unlock()

	sh.serve()
	return 0
}

// WithRequestHandler adds a request handler to the queue used by new sessions. Each queued
// handler serves one request; once the queue is empty requests are served by the default handler.
func (ncs *TestNCServer) WithRequestHandler(rh RequestHandler) *TestNCServer {
	ncs.mu.Lock()
	defer ncs.mu.Unlock()
	ncs.reqHandlers = append(ncs.reqHandlers, rh)
	return ncs
}

// WithDefaultHandler defines the handler serving requests once the queue is empty. Requests are
// echoed if none is defined.
func (ncs *TestNCServer) WithDefaultHandler(rh RequestHandler) *TestNCServer {
	ncs.mu.Lock()
	defer ncs.mu.Unlock()
	ncs.defaultHandler = rh
	return ncs
}

// WithCapabilities define the capabilities that the server will advertise when a netconf client connects.
func (ncs *TestNCServer) WithCapabilities(caps []string) *TestNCServer {
	ncs.mu.Lock()
	defer ncs.mu.Unlock()
	ncs.caps = caps
	return ncs
}

// SessionHandler delivers the netconf session handler associated with the specified session id.
func (ncs *TestNCServer) SessionHandler(id uint64) *SessionHandler {
	ncs.mu.Lock()
	defer ncs.mu.Unlock()
	sh, ok := ncs.sessionHandlers[id]
	assert.True(ncs.tctx, ok, "Failed to get handler for session %d", id)
	return sh
}

// LastHandler delivers the handler of the most recent session.
func (ncs *TestNCServer) LastHandler() *SessionHandler {
	ncs.mu.Lock()
	defer ncs.mu.Unlock()
	return ncs.sessionHandlers[ncs.nextSid]
}

func (h *SessionHandler) serve() {
	h.dec = codec.NewDecoder(h.ch)
	h.enc = codec.NewEncoder(h.ch)

	// Send server hello to client.
	if err := h.encode(&common.HelloMessage{Capabilities: h.capabilities, SessionID: h.sid}); err != nil {
		h.startwg.Done()
		return
	}

	hello := make(chan bool, 1)
	go func() {
		msg, err := h.dec.Decode()
		if err == nil && msg.Name.Local == common.NameHello.Local {
			ch := &common.HelloMessage{}
			if msg.Unmarshal(ch) == nil {
				h.ClientHello = ch
			}
		}
		hello <- h.ClientHello != nil
	}()

	ok := false
	select {
	case ok = <-hello:
	case <-time.After(5 * time.Second):
	}
	h.startwg.Done()
	if !ok {
		return
	}

	if common.PeerSupportsChunkedFraming(h.ClientHello.Capabilities) && common.PeerSupportsChunkedFraming(h.capabilities) {
		codec.EnableChunkedFraming(h.dec, h.enc)
	}

	for {
		msg, err := h.dec.Decode()
		if err != nil {
			return
		}
		if msg.Name.Local != common.NameRPC.Local {
			continue
		}
		req := &RPCRequestMessage{}
		if err = msg.Unmarshal(req); err != nil {
			return
		}
		h.mu.Lock()
		h.reqs = append(h.reqs, req)
		reqh := h.defaultHandler
		if len(h.reqHandlers) > 0 {
			h.reqHandlers, reqh = h.reqHandlers[1:], h.reqHandlers[0]
		}
		h.mu.Unlock()
		reqh(h, req)
	}
}

// WaitStart waits until the session has received the client hello.
func (h *SessionHandler) WaitStart() {
	h.startwg.Wait()
}

// ID delivers the session id.
func (h *SessionHandler) ID() uint64 {
	return h.sid
}

// Reply sends body as the content of an rpc-reply to req.
func (h *SessionHandler) Reply(req *RPCRequestMessage, body string) {
	err := h.encode(&RPCReplyMessage{MessageID: req.MessageID, Body: body})
	assert.NoError(h.t, err, "Failed to encode response")
}

// ReplyError sends an rpc-reply holding errs to req.
func (h *SessionHandler) ReplyError(req *RPCRequestMessage, errs ...common.RPCError) {
	err := h.encode(&RPCReplyMessage{MessageID: req.MessageID, Errors: errs})
	assert.NoError(h.t, err, "Failed to encode response")
}

// Close initiates session tear-down by closing the underlying transport channel.
func (h *SessionHandler) Close() {
	_ = h.ch.Close()
}

// ReqCount delivers the number of requests received.
func (h *SessionHandler) ReqCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reqs)
}

// LastReq delivers the most recent request, or nil.
func (h *SessionHandler) LastReq() *RPCRequestMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reqs) == 0 {
		return nil
	}
	return h.reqs[len(h.reqs)-1]
}

// Requests delivers the requests received so far.
func (h *SessionHandler) Requests() []*RPCRequestMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*RPCRequestMessage(nil), h.reqs...)
}

// RequestNames delivers the element names of the requests received so far.
func (h *SessionHandler) RequestNames() []string {
	var names []string
	for _, r := range h.Requests() {
		names = append(names, r.Request.XMLName.Local)
	}
	return names
}

func (h *SessionHandler) encode(m interface{}) error {
	h.encLock.Lock()
	defer h.encLock.Unlock()
	return h.enc.Encode(m)
}
