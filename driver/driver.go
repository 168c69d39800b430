// Package driver defines the vendor neutral interface used to configure and interrogate network
// devices, and a registry of platform implementations.
package driver

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/buildkite/roko"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
	"github.com/damianoneill/netdeploy/sshutil"
)

// Getter names understood by Driver.Get.
const (
	GetFacts      = "get_facts"
	GetInterfaces = "get_interfaces"
	OSPFPeer      = "ospf_peer"
)

// Configuration retrieval selectors.
const (
	RetrieveAll       = "all"
	RetrieveRunning   = "running"
	RetrieveCandidate = "candidate"
	RetrieveStartup   = "startup"
)

var (
	// ErrNotImplemented is returned by Get for getters a platform does not support.
	ErrNotImplemented = errors.New("not implemented")
	// ErrUnknownPlatform is returned by New for platforms without a registered driver.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrNoCandidate is returned when a candidate operation is attempted before a candidate is loaded.
	ErrNoCandidate = errors.New("no candidate configuration loaded")
	// ErrNotOpen is returned when a driver is used before Open.
	ErrNotOpen = errors.New("driver not open")
)

// Configs holds the configurations returned by GetConfig. Datastores a platform does not have are empty.
type Configs struct {
	Running   string
	Candidate string
	Startup   string
}

// Driver manages the configuration of a single device.
type Driver interface {
	// Open connects to the device.
	Open(ctx context.Context) error
	// Close releases the connection, discarding any uncommitted candidate.
	Close() error
	// GetConfig retrieves the configurations selected by retrieve, one of the Retrieve constants.
	GetConfig(ctx context.Context, retrieve string) (*Configs, error)
	// Checkpoint delivers a configuration that can be loaded as a replace candidate to restore
	// the current state of the device.
	Checkpoint(ctx context.Context) (string, error)
	// LoadReplaceCandidate stages config to replace the whole running configuration.
	LoadReplaceCandidate(ctx context.Context, config string) error
	// LoadMergeCandidate stages config to be merged into the running configuration.
	LoadMergeCandidate(ctx context.Context, config string) error
	// CompareConfig delivers the difference between the running configuration and the candidate.
	CompareConfig(ctx context.Context) (string, error)
	// CommitConfig applies the candidate.
	CommitConfig(ctx context.Context) error
	// DiscardConfig abandons the candidate.
	DiscardConfig(ctx context.Context) error
	// Get runs the named getter, returning ErrNotImplemented if the platform does not support it.
	Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error)
}

// Options defines how drivers connect to devices.
type Options struct {
	SSH sshutil.Options
	// ConnectAttempts bounds the number of Open attempts made by Connect.
	ConnectAttempts int
	// ConnectInterval is the delay between Open attempts.
	ConnectInterval time.Duration
	// CommandTimeout bounds the wait for a single cli command or rpc.
	CommandTimeout time.Duration
	// NetconfPort is used by NETCONF drivers when the host does not define netconf_port.
	NetconfPort int
}

// DefaultOptions holds the values applied to any option left unset.
var DefaultOptions = Options{
	ConnectAttempts: 3,
	ConnectInterval: 2 * time.Second,
	CommandTimeout:  60 * time.Second,
	NetconfPort:     830,
}

// Factory creates a driver for a host.
type Factory func(h *inventory.Host, opts Options) (Driver, error)

var (
	registryLock sync.RWMutex
	registry     = map[string]Factory{}
)

// Register makes a driver available for platform. It is typically called from the init function
// of the platform package.
func Register(platform string, f Factory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[platform] = f
}

// Platforms delivers the registered platform names in sorted order.
func Platforms() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	var names []string
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New creates a driver for the host's platform.
func New(h *inventory.Host, opts Options) (Driver, error) {
	registryLock.RLock()
	f, ok := registry[h.Platform]
	registryLock.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPlatform, "host %s platform %q", h.Name, h.Platform)
	}
	_ = mergo.Merge(&opts, DefaultOptions)
	return f(h, opts)
}

// Connect opens d, retrying failed attempts as defined by opts.
func Connect(ctx context.Context, d Driver, opts Options) error {
	_ = mergo.Merge(&opts, DefaultOptions)
	return roko.NewRetrier(
		roko.WithMaxAttempts(opts.ConnectAttempts),
		roko.WithStrategy(roko.Constant(opts.ConnectInterval)),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		err := d.Open(ctx)
		if err != nil {
			log.Warningf("Connect failed: %v (%s)", err, r)
		}
		return err
	})
}

// Configure loads config as a candidate, replacing or merging, and compares it with the running
// configuration. The candidate is discarded on a dry run or when there is no difference, otherwise
// it is committed. It delivers the difference and whether the device was changed.
func Configure(ctx context.Context, d Driver, config string, replace, dryRun bool) (diff string, changed bool, err error) {
	if replace {
		err = d.LoadReplaceCandidate(ctx, config)
	} else {
		err = d.LoadMergeCandidate(ctx, config)
	}
	if err != nil {
		_ = d.DiscardConfig(ctx)
		return "", false, errors.Wrap(err, "load candidate failed")
	}

	if diff, err = d.CompareConfig(ctx); err != nil {
		_ = d.DiscardConfig(ctx)
		return "", false, errors.Wrap(err, "compare config failed")
	}

	if dryRun || diff == "" {
		return diff, false, errors.Wrap(d.DiscardConfig(ctx), "discard config failed")
	}
	if err = d.CommitConfig(ctx); err != nil {
		return diff, false, errors.Wrap(err, "commit config failed")
	}
	return diff, true, nil
}

// ClientConfig delivers the ssh client configuration used to reach h.
func ClientConfig(h *inventory.Host, opts Options) (*ssh.ClientConfig, error) {
	return sshutil.NewClientConfig(h.Username, h.Password, opts.SSH)
}

// CLIAddress delivers the address of the host's cli, honouring cli_port.
func CLIAddress(h *inventory.Host) string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.GetInt(inventory.KeyCLIPort, h.Port)))
}

// NetconfAddress delivers the address of the host's NETCONF server, honouring netconf_port.
func NetconfAddress(h *inventory.Host, opts Options) string {
	port := opts.NetconfPort
	if port == 0 {
		port = DefaultOptions.NetconfPort
	}
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.GetInt(inventory.KeyNetconfPort, port)))
}
