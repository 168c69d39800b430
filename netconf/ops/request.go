package ops

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/damianoneill/netdeploy/netconf/common"
)

type filter struct {
	XMLName xml.Name `xml:"filter"`
	Type    string   `xml:"type,attr"`
	*common.Union
}

type config struct {
	XMLName xml.Name `xml:"config"`
	*common.Union
}

// datastoreRef names a datastore either by element or by url.
type datastoreRef struct {
	Name string `xml:",innerxml"`
	URL  string `xml:"url,omitempty"`
}

type getReq struct {
	XMLName xml.Name `xml:"get"`
	Filter  *filter
}

type getConfigReq struct {
	XMLName    xml.Name      `xml:"get-config"`
	Source     *datastoreRef `xml:"source"`
	Filter     *filter
	XpathQuery string `xml:",innerxml"`
}

// EditConfigReq is the edit-config request shaped by ConfigOption and EditOption.
type EditConfigReq struct {
	XMLName          xml.Name      `xml:"edit-config"`
	Target           *datastoreRef `xml:"target"`
	DefaultOperation string        `xml:"default-operation,omitempty"`
	TestOption       string        `xml:"test-option,omitempty"`
	ErrorOption      string        `xml:"error-option,omitempty"`
	Config           *config
	ConfigURL        string `xml:"url,omitempty"`
}

type lockReq struct {
	XMLName xml.Name      `xml:"lock"`
	Target  *datastoreRef `xml:"target"`
}

type unlockReq struct {
	XMLName xml.Name      `xml:"unlock"`
	Target  *datastoreRef `xml:"target"`
}

type validateReq struct {
	XMLName xml.Name      `xml:"validate"`
	Source  *datastoreRef `xml:"source"`
}

type commitReq struct {
	XMLName xml.Name `xml:"commit"`
}

type discardReq struct {
	XMLName xml.Name `xml:"discard-changes"`
}

type closeSessionReq struct {
	XMLName xml.Name `xml:"close-session"`
}

// ConfigOption supplies the configuration carried by an edit-config.
type ConfigOption func(*EditConfigReq)

// Cfg sends cfg inline. An xml string is used as is; a struct is marshalled.
func Cfg(cfg interface{}) ConfigOption {
	return func(req *EditConfigReq) {
		req.Config = &config{Union: common.GetUnion(cfg)}
	}
}

// CfgURL points the device at a configuration file held at url.
func CfgURL(url string) ConfigOption {
	return func(req *EditConfigReq) {
		req.ConfigURL = url
	}
}

// EditOption sets one of the optional edit-config parameters.
type EditOption func(*EditConfigReq)

// DefaultOperation is MergeOp or ReplaceOp.
func DefaultOperation(op string) EditOption {
	return func(req *EditConfigReq) { req.DefaultOperation = op }
}

func TestOption(opt string) EditOption {
	return func(req *EditConfigReq) { req.TestOption = opt }
}

func ErrorOption(opt string) EditOption {
	return func(req *EditConfigReq) { req.ErrorOption = opt }
}

// datastore renders the datastore as a self-closing element; some devices reject <running></running>.
func datastore(name string) *datastoreRef {
	return &datastoreRef{Name: "<" + name + "/>"}
}

func newGetRequest(f interface{}) *getReq {
	req := &getReq{}
	if f != nil {
		req.Filter = &filter{Type: "subtree", Union: common.GetUnion(f)}
	}
	return req
}

func newGetConfigRequest(f interface{}, source string) *getConfigReq {
	req := &getConfigReq{Source: datastore(source)}
	if f != nil {
		req.Filter = &filter{Type: "subtree", Union: common.GetUnion(f)}
	}
	return req
}

func newGetConfigXpathRequest(xpath, source string, nslist []Namespace) *getConfigReq {
	req := &getConfigReq{Source: datastore(source)}
	if xpath != "" {
		req.XpathQuery = xpathFilter(xpath, nslist)
	}
	return req
}

func newEditConfigRequest(target string, cfg ConfigOption, options ...EditOption) *EditConfigReq {
	req := &EditConfigReq{Target: datastore(target)}
	for _, opt := range options {
		opt(req)
	}
	cfg(req)
	return req
}

func xpathFilter(xpath string, nslist []Namespace) string {
	var b strings.Builder
	b.WriteString("<filter")
	for _, ns := range nslist {
		fmt.Fprintf(&b, " xmlns:%s=%q", ns.ID, ns.Path)
	}
	fmt.Fprintf(&b, ` type="xpath" select=%q/>`, xpath)
	return b.String()
}
