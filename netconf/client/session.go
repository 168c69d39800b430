package client

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/netconf/common"
	"github.com/damianoneill/netdeploy/netconf/common/codec"
)

// The Message layer defines a set of base protocol operations
// invoked as RPC methods with XML-encoded parameters.

// Session represents a Netconf Session.
type Session interface {
	// Execute executes an RPC request on the server and returns the reply.
	// A reply holding an rpc-error of severity error is returned along with that error.
	Execute(ctx context.Context, req common.Request) (*common.RPCReply, error)

	// Close closes the session and releases any associated resources.
	// Outstanding execute requests will fail with io.ErrUnexpectedEOF.
	Close() error

	// ID delivers the server-allocated id of the session.
	ID() uint64

	// ServerCapabilities delivers the server-supplied capabilities.
	ServerCapabilities() []string
}

type sesImpl struct {
	cfg   *Config
	t     Transport
	dec   *codec.Decoder
	enc   *codec.Encoder
	trace *ClientTrace

	hellochan chan *common.HelloMessage
	hello     *common.HelloMessage

	// Serialises request submission, so that the order of the response queue matches the order
	// of requests on the wire.
	reqLock   sync.Mutex
	rchLock   sync.Mutex
	responseq []chan *common.RPCReply
	// Set once the incoming message handler has stopped.
	done bool

	target string
}

// NewSession creates a new Netconf session, using the supplied Transport.
func NewSession(ctx context.Context, t Transport, cfg *Config) (Session, error) {
	caps := cfg.Capabilities
	if caps == nil {
		caps = common.DefaultCapabilities
	}

	si := &sesImpl{
		cfg:       cfg,
		t:         t,
		target:    t.Target(),
		dec:       codec.NewDecoder(t),
		enc:       codec.NewEncoder(t),
		trace:     ContextClientTrace(ctx),
		hellochan: make(chan *common.HelloMessage, 1),
	}

	// Send hello
	if err := si.enc.Encode(&common.HelloMessage{Capabilities: caps}); err != nil {
		si.trace.Error("Failed to encode hello", si.target, err)
		_ = si.Close()
		return nil, errors.Wrap(err, "send hello failed")
	}

	if err := si.waitForServerHello(ctx); err != nil {
		si.trace.Error("Failed to receive hello", si.target, err)
		_ = si.Close()
		return nil, err
	}

	if common.PeerSupportsChunkedFraming(si.hello.Capabilities) && common.PeerSupportsChunkedFraming(caps) {
		codec.EnableChunkedFraming(si.dec, si.enc)
	}
	si.trace.HelloDone(si.hello)

	// Launch goroutine to handle incoming messages from the server.
	go si.handleIncomingMessages()
	return si, nil
}

func (si *sesImpl) Execute(ctx context.Context, req common.Request) (reply *common.RPCReply, err error) {
	si.trace.ExecuteStart(req)
	defer func(begin time.Time) {
		si.trace.ExecuteDone(req, reply, err, time.Since(begin))
	}(time.Now())

	rchan := make(chan *common.RPCReply, 1)
	if err = si.execute(req, rchan); err != nil {
		return nil, errors.Wrap(err, "send rpc failed")
	}

	select {
	case reply = <-rchan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	err = mapError(reply)
	return reply, err
}

func (si *sesImpl) execute(req common.Request, rchan chan *common.RPCReply) (err error) {
	msg := &common.RPCMessage{MessageID: uuid.NewString(), Union: common.GetUnion(req)}

	si.reqLock.Lock()
	defer si.reqLock.Unlock()

	// Add the response channel to the response queue, but take it off if the request was not
	// submitted successfully.
	if !si.pushRespChan(rchan) {
		return io.ErrClosedPipe
	}
	if err = si.enc.Encode(msg); err != nil {
		si.popLastRespChan()
	}
	return
}

func (si *sesImpl) Close() error {
	err := si.t.Close()
	if err != nil {
		si.trace.Error("Session close failed", si.target, err)
	}
	return err
}

func (si *sesImpl) ID() uint64 {
	return si.hello.SessionID
}

func (si *sesImpl) ServerCapabilities() []string {
	return si.hello.Capabilities
}

// waitForServerHello reads the first message from the server, which must be a hello.
func (si *sesImpl) waitForServerHello(ctx context.Context) error {
	errch := make(chan error, 1)
	go func() {
		msg, err := si.dec.Decode()
		if err != nil {
			errch <- err
			return
		}
		if msg.Name != common.NameHello {
			errch <- errors.Errorf("unexpected %s message before hello", msg.Name.Local)
			return
		}
		hello := &common.HelloMessage{}
		if err = msg.Unmarshal(hello); err != nil {
			errch <- err
			return
		}
		si.hellochan <- hello
	}()

	select {
	case si.hello = <-si.hellochan:
		return nil
	case err := <-errch:
		return errors.Wrap(err, "failed to get hello from server")
	case <-time.After(si.cfg.SetupTimeout):
		return errors.New("failed to get hello from server")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (si *sesImpl) handleIncomingMessages() {
	// When this goroutine finishes, make sure anybody waiting for a response gets informed.
	defer si.closeAllResponseChannels()

	for {
		msg, err := si.dec.Decode()
		if err != nil {
			if err != io.EOF {
				si.trace.Error("Decode message", si.target, err)
			}
			return
		}
		if msg.Name.Local != common.NameRPCReply.Local {
			continue
		}

		reply := &common.RPCReply{}
		if err = msg.Unmarshal(reply); err != nil {
			si.trace.Error("Unmarshal rpc-reply", si.target, err)
			return
		}
		if ch := si.popRespChan(); ch != nil {
			ch <- reply
		}
	}
}

func (si *sesImpl) closeAllResponseChannels() {
	si.rchLock.Lock()
	si.done = true
	si.rchLock.Unlock()
	for {
		ch := si.popRespChan()
		if ch == nil {
			return
		}
		close(ch)
	}
}

func (si *sesImpl) pushRespChan(ch chan *common.RPCReply) bool {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	if si.done {
		return false
	}
	si.responseq = append(si.responseq, ch)
	return true
}

func (si *sesImpl) popRespChan() (ch chan *common.RPCReply) {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	if len(si.responseq) > 0 {
		si.responseq, ch = si.responseq[1:], si.responseq[0]
	}
	return
}

func (si *sesImpl) popLastRespChan() {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	if l := len(si.responseq); l > 0 {
		si.responseq = si.responseq[:l-1]
	}
}

// Map an RPC reply to an error, if the reply is either null or contains any RPC error.
func mapError(r *common.RPCReply) error {
	if r == nil {
		return io.ErrUnexpectedEOF
	}
	for i := range r.Errors {
		if r.Errors[i].Severity == "error" {
			return &r.Errors[i]
		}
	}
	return nil
}
