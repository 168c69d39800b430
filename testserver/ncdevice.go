package testserver

import (
	"bytes"
	"encoding/xml"
	"strings"
	"sync"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netdeploy/netconf/common"
)

// NetconfDevice simulates a NETCONF server holding a running and a candidate datastore. It serves
// the base operations on the candidate and the Junos configuration RPCs. Datastore content is
// held as opaque text.
type NetconfDevice struct {
	*TestNCServer

	mu           sync.Mutex
	running      string
	candidate    string
	locked       bool
	commits      int
	softwareInfo string
}

// NewNetconfDevice starts a NETCONF device simulator with the given running configuration.
func NewNetconfDevice(t assert.TestingT, running string) *NetconfDevice {
	d := &NetconfDevice{running: running, candidate: running}
	d.TestNCServer = NewTestNetconfServer(t).
		WithCapabilities(append([]string{common.CapCandidate, common.CapValidate}, common.DefaultCapabilities...)).
		WithDefaultHandler(d.handle)
	return d
}

// WithSoftwareInformation defines the reply content of get-software-information.
func (d *NetconfDevice) WithSoftwareInformation(info string) *NetconfDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.softwareInfo = info
	return d
}

// Running delivers the running datastore.
func (d *NetconfDevice) Running() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Candidate delivers the candidate datastore.
func (d *NetconfDevice) Candidate() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.candidate
}

// Locked reports whether the candidate is locked.
func (d *NetconfDevice) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// Commits delivers the number of commits made.
func (d *NetconfDevice) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

type loadConfiguration struct {
	Text   string `xml:"configuration-text"`
	Config struct {
		Body string `xml:",innerxml"`
	} `xml:"config"`
	DefaultOperation string `xml:"default-operation"`
	Source           struct {
		Body string `xml:",innerxml"`
	} `xml:"source"`
}

func (d *NetconfDevice) handle(h *SessionHandler, req *RPCRequestMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := &loadConfiguration{}
	_ = xml.Unmarshal([]byte("<r>"+req.Request.Body+"</r>"), body)

	switch req.Request.XMLName.Local {
	case "lock-configuration", "lock":
		if d.locked {
			h.ReplyError(req, common.RPCError{Type: "protocol", Tag: "lock-denied", Severity: "error", Message: "configuration database locked"})
			return
		}
		d.locked = true
		h.Reply(req, "<ok/>")
	case "unlock-configuration", "unlock":
		d.locked = false
		h.Reply(req, "<ok/>")
	case "load-configuration":
		if !d.apply(h, req, body.Text, req.Request.Attr("action") != "merge") {
			return
		}
		h.Reply(req, "<load-configuration-results><ok/></load-configuration-results>")
	case "edit-config":
		if !d.apply(h, req, strings.TrimSpace(body.Config.Body), body.DefaultOperation == "replace") {
			return
		}
		h.Reply(req, "<ok/>")
	case "get-configuration":
		switch {
		case req.Request.Attr("compare") == "rollback":
			h.Reply(req, "<configuration-information><configuration-output>"+
				escape(unifiedDiff(d.running, d.candidate, "running", "candidate"))+
				"</configuration-output></configuration-information>")
		case req.Request.Attr("database") == "candidate":
			h.Reply(req, "<configuration-text>"+escape(d.candidate)+"</configuration-text>")
		default:
			h.Reply(req, "<configuration-text>"+escape(d.running)+"</configuration-text>")
		}
	case "get-config":
		if strings.Contains(body.Source.Body, "candidate") {
			h.Reply(req, "<data>"+d.candidate+"</data>")
			return
		}
		h.Reply(req, "<data>"+d.running+"</data>")
	case "commit-configuration", "commit":
		d.running = d.candidate
		d.commits++
		if req.Request.XMLName.Local == "commit" {
			h.Reply(req, "<ok/>")
			return
		}
		h.Reply(req, "<commit-results><routing-engine><name>re0</name><commit-success/></routing-engine></commit-results>")
	case "discard-changes":
		d.candidate = d.running
		h.Reply(req, "<ok/>")
	case "validate":
		h.Reply(req, "<ok/>")
	case "get-software-information":
		h.Reply(req, d.softwareInfo)
	case "close-session":
		h.Reply(req, "<ok/>")
		h.Close()
	default:
		h.ReplyError(req, common.RPCError{Type: "protocol", Tag: "operation-not-supported", Severity: "error",
			Message: req.Request.XMLName.Local + " not supported"})
	}
}

// apply loads content into the candidate, replacing it or appending to it.
func (d *NetconfDevice) apply(h *SessionHandler, req *RPCRequestMessage, content string, replace bool) bool {
	if strings.Contains(content, "bogus") {
		h.ReplyError(req, common.RPCError{Type: "application", Tag: "invalid-value", Severity: "error", Message: "syntax error"})
		return false
	}
	if replace {
		d.candidate = content
	} else {
		d.candidate = joinLines(append(splitLines(d.candidate), splitLines(content)...))
	}
	return true
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
