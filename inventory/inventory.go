// Package inventory loads the devices targeted by a deployment.
//
// An inventory is defined by a hosts file and optional groups and defaults files. A host inherits
// any attribute it does not set from its groups, in the order listed (each group consulting its
// own groups before the next one), and finally from the defaults.
package inventory

import (
	"net"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPort is used when neither host, groups nor defaults define a port.
const DefaultPort = 22

// Well known data keys.
const (
	KeyDevHostname   = "dev_hostname"
	KeyTemplate      = "j2_template_file"
	KeyTemplateAlt   = "template"
	KeyCLIPort       = "cli_port"
	KeyNetconfPort   = "netconf_port"
	KeySNMPCommunity = "snmp_community"
	KeySNMPPort      = "snmp_port"
)

// Spec defines the attributes that may be declared for a host, a group or the defaults.
type Spec struct {
	Hostname string                 `yaml:"hostname"`
	Port     int                    `yaml:"port"`
	Username string                 `yaml:"username"`
	Password string                 `yaml:"password"`
	Platform string                 `yaml:"platform"`
	Groups   []string               `yaml:"groups"`
	Data     map[string]interface{} `yaml:"data"`
}

// Host is a resolved inventory entry.
type Host struct {
	Name     string
	Hostname string
	Port     int
	Username string
	Password string
	Platform string
	Groups   []string
	Data     map[string]interface{}

	stateLock sync.Mutex
	state     map[string]interface{}
}

// Inventory holds the resolved hosts.
type Inventory struct {
	Hosts  map[string]*Host
	Groups map[string]*Spec
}

// Files identifies the files an inventory is loaded from.
type Files struct {
	Hosts    string
	Groups   string
	Defaults string
}

// Load reads and resolves the inventory files.
func Load(files Files) (*Inventory, error) {
	hosts := map[string]*Spec{}
	if err := readYAML(files.Hosts, &hosts); err != nil {
		return nil, errors.Wrap(err, "load hosts failed")
	}

	groups := map[string]*Spec{}
	if files.Groups != "" {
		if err := readYAML(files.Groups, &groups); err != nil {
			return nil, errors.Wrap(err, "load groups failed")
		}
	}

	defaults := &Spec{}
	if files.Defaults != "" {
		if err := readYAML(files.Defaults, defaults); err != nil {
			return nil, errors.Wrap(err, "load defaults failed")
		}
	}
	return New(hosts, groups, defaults)
}

// New resolves host specs against groups and defaults.
func New(hosts, groups map[string]*Spec, defaults *Spec) (*Inventory, error) {
	if defaults == nil {
		defaults = &Spec{}
	}
	inv := &Inventory{Hosts: make(map[string]*Host, len(hosts)), Groups: groups}
	for name, spec := range hosts {
		if spec == nil {
			spec = &Spec{}
		}
		h, err := resolve(name, spec, groups, defaults)
		if err != nil {
			return nil, err
		}
		inv.Hosts[name] = h
	}
	return inv, nil
}

func readYAML(path string, v interface{}) error {
	b, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, v)
}

func resolve(name string, spec *Spec, groups map[string]*Spec, defaults *Spec) (*Host, error) {
	chain, err := groupChain(spec.Groups, groups, map[string]bool{})
	if err != nil {
		return nil, errors.Wrapf(err, "host %s", name)
	}

	resolved := Spec{
		Hostname: spec.Hostname,
		Port:     spec.Port,
		Username: spec.Username,
		Password: spec.Password,
		Platform: spec.Platform,
	}
	data := copyData(spec.Data)
	for _, g := range append(chain, defaults) {
		attrs := Spec{Hostname: g.Hostname, Port: g.Port, Username: g.Username, Password: g.Password, Platform: g.Platform}
		if err = mergo.Merge(&resolved, attrs); err != nil {
			return nil, errors.Wrapf(err, "host %s", name)
		}
		inherit(data, g.Data)
	}

	if resolved.Hostname == "" {
		resolved.Hostname = name
	}
	if resolved.Port == 0 {
		resolved.Port = DefaultPort
	}
	if _, ok := data[KeyDevHostname]; !ok {
		data[KeyDevHostname] = name
	}

	return &Host{
		Name:     name,
		Hostname: resolved.Hostname,
		Port:     resolved.Port,
		Username: os.ExpandEnv(resolved.Username),
		Password: os.ExpandEnv(resolved.Password),
		Platform: resolved.Platform,
		Groups:   spec.Groups,
		Data:     data,
		state:    map[string]interface{}{},
	}, nil
}

// groupChain flattens the group hierarchy depth-first, in declaration order.
func groupChain(names []string, groups map[string]*Spec, visiting map[string]bool) ([]*Spec, error) {
	var chain []*Spec
	for _, n := range names {
		g, ok := groups[n]
		if !ok {
			return nil, errors.Errorf("unknown group %q", n)
		}
		if visiting[n] {
			return nil, errors.Errorf("group cycle through %q", n)
		}
		if g == nil {
			g = &Spec{}
		}
		visiting[n] = true
		parents, err := groupChain(g.Groups, groups, visiting)
		delete(visiting, n)
		if err != nil {
			return nil, err
		}
		chain = append(chain, g)
		chain = append(chain, parents...)
	}
	return chain, nil
}

// inherit adds the keys of src that dst lacks. A key dst already holds wins, even with a zero
// value; nested maps are merged key by key.
func inherit(dst, src map[string]interface{}) {
	for k, v := range src {
		cur, ok := dst[k]
		if !ok {
			dst[k] = copyValue(v)
			continue
		}
		if cm, ok := cur.(map[string]interface{}); ok {
			if sm, ok := v.(map[string]interface{}); ok {
				inherit(cm, sm)
			}
		}
	}
}

// copyData copies src deeply enough that merging into the copy never touches src.
func copyData(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return copyData(m)
	}
	return v
}

// Filter delivers a new inventory holding the hosts accepted by fn.
func (inv *Inventory) Filter(fn func(h *Host) bool) *Inventory {
	out := &Inventory{Hosts: map[string]*Host{}, Groups: inv.Groups}
	for name, h := range inv.Hosts {
		if fn(h) {
			out.Hosts[name] = h
		}
	}
	return out
}

// Names delivers the host names in sorted order.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.Hosts))
	for n := range inv.Hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByName accepts hosts whose name is in names.
func ByName(names ...string) func(h *Host) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(h *Host) bool { return set[h.Name] }
}

// ByPlatform accepts hosts running the given platform.
func ByPlatform(platform string) func(h *Host) bool {
	return func(h *Host) bool { return h.Platform == platform }
}

// ByGroup accepts hosts that are direct members of group.
func ByGroup(group string) func(h *Host) bool {
	return func(h *Host) bool {
		for _, g := range h.Groups {
			if g == group {
				return true
			}
		}
		return false
	}
}

// Address delivers the host:port used to reach the device.
func (h *Host) Address() string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
}

// DevHostname delivers the name used for the host's artifact files.
func (h *Host) DevHostname() string {
	return h.GetString(KeyDevHostname)
}

// GetString delivers a data value as a string, or "" if it is not defined.
func (h *Host) GetString(key string) string {
	v, ok := h.Data[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	default:
		b, _ := yaml.Marshal(v)
		return string(b)
	}
}

// GetInt delivers a data value as an int, or def if it is not defined or not numeric.
func (h *Host) GetInt(key string, def int) int {
	switch v := h.Data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Set stores a value in the host's run state.
func (h *Host) Set(key string, value interface{}) {
	h.stateLock.Lock()
	defer h.stateLock.Unlock()
	if h.state == nil {
		h.state = map[string]interface{}{}
	}
	h.state[key] = value
}

// Get delivers a value from the host's run state.
func (h *Host) Get(key string) (interface{}, bool) {
	h.stateLock.Lock()
	defer h.stateLock.Unlock()
	v, ok := h.state[key]
	return v, ok
}

// GetStateString delivers a run state value as a string.
func (h *Host) GetStateString(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Vars delivers the variables exposed to templates: the host data plus the host attributes.
func (h *Host) Vars() map[string]interface{} {
	vars := copyData(h.Data)
	vars["name"] = h.Name
	vars["hostname"] = h.Hostname
	vars["platform"] = h.Platform
	vars["groups"] = h.Groups
	return vars
}
