// Package junos implements the Juniper Junos driver, using the Junos XML API over NETCONF.
package junos

import (
	"context"
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
)

// Platform is the inventory platform name served by this driver.
const Platform = "junos"

func init() {
	driver.Register(Platform, New)
}

// Driver configures a Junos device.
type Driver struct {
	driver.Netconf

	locked bool
	loaded bool
}

// New delivers a Junos driver for h.
func New(h *inventory.Host, opts driver.Options) (driver.Driver, error) {
	return &Driver{Netconf: driver.Netconf{Host: h, Options: opts}}, nil
}

type lockReq struct {
	XMLName xml.Name `xml:"lock-configuration"`
}

type unlockReq struct {
	XMLName xml.Name `xml:"unlock-configuration"`
}

type loadReq struct {
	XMLName xml.Name `xml:"load-configuration"`
	Action  string   `xml:"action,attr"`
	Format  string   `xml:"format,attr"`
	Text    string   `xml:"configuration-text"`
}

type getConfigReq struct {
	XMLName  xml.Name `xml:"get-configuration"`
	Compare  string   `xml:"compare,attr,omitempty"`
	Rollback string   `xml:"rollback,attr,omitempty"`
	Database string   `xml:"database,attr,omitempty"`
	Format   string   `xml:"format,attr"`
}

type commitReq struct {
	XMLName xml.Name `xml:"commit-configuration"`
}

type discardReq struct {
	XMLName xml.Name `xml:"discard-changes"`
}

type softwareInfoReq struct {
	XMLName xml.Name `xml:"get-software-information"`
}

// reply holds the elements of interest in Junos rpc replies.
type reply struct {
	Text   string `xml:"configuration-text"`
	Output string `xml:"configuration-information>configuration-output"`
	Info   struct {
		HostName     string `xml:"host-name"`
		ProductModel string `xml:"product-model"`
		ProductName  string `xml:"product-name"`
		JunosVersion string `xml:"junos-version"`
	} `xml:"software-information"`
}

func (d *Driver) rpc(ctx context.Context, req interface{}) (*reply, error) {
	data, err := d.RPC(ctx, req)
	if err != nil {
		return nil, err
	}
	r := &reply{}
	if err = xml.Unmarshal([]byte("<r>"+data+"</r>"), r); err != nil {
		return nil, errors.Wrap(err, "decode reply failed")
	}
	return r, nil
}

func (d *Driver) Close() error {
	if d.loaded || d.locked {
		if err := d.DiscardConfig(context.Background()); err != nil {
			log.Warningf("Discard config on %s failed: %v", d.Host.Name, err)
		}
	}
	return d.Netconf.Close()
}

func (d *Driver) GetConfig(ctx context.Context, retrieve string) (*driver.Configs, error) {
	cfgs := &driver.Configs{}
	if retrieve == driver.RetrieveAll || retrieve == driver.RetrieveRunning {
		r, err := d.rpc(ctx, &getConfigReq{Format: "text"})
		if err != nil {
			return nil, err
		}
		cfgs.Running = r.Text
	}
	if (retrieve == driver.RetrieveAll || retrieve == driver.RetrieveCandidate) && d.loaded {
		r, err := d.rpc(ctx, &getConfigReq{Database: "candidate", Format: "text"})
		if err != nil {
			return nil, err
		}
		cfgs.Candidate = r.Text
	}
	return cfgs, nil
}

// Checkpoint delivers the running configuration, restored with an override load.
func (d *Driver) Checkpoint(ctx context.Context) (string, error) {
	cfgs, err := d.GetConfig(ctx, driver.RetrieveRunning)
	if err != nil {
		return "", err
	}
	return cfgs.Running, nil
}

func (d *Driver) LoadReplaceCandidate(ctx context.Context, config string) error {
	return d.load(ctx, config, "override")
}

func (d *Driver) LoadMergeCandidate(ctx context.Context, config string) error {
	return d.load(ctx, config, "merge")
}

func (d *Driver) load(ctx context.Context, config, action string) error {
	if !d.locked {
		if _, err := d.rpc(ctx, &lockReq{}); err != nil {
			return errors.Wrap(err, "lock configuration failed")
		}
		d.locked = true
	}
	d.loaded = true
	_, err := d.rpc(ctx, &loadReq{Action: action, Format: "text", Text: config})
	return err
}

func (d *Driver) CompareConfig(ctx context.Context) (string, error) {
	if !d.loaded {
		return "", driver.ErrNoCandidate
	}
	r, err := d.rpc(ctx, &getConfigReq{Compare: "rollback", Rollback: "0", Format: "text"})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(r.Output) == "" {
		return "", nil
	}
	return strings.TrimLeft(r.Output, "\n"), nil
}

func (d *Driver) CommitConfig(ctx context.Context) error {
	if !d.loaded {
		return driver.ErrNoCandidate
	}
	if _, err := d.rpc(ctx, &commitReq{}); err != nil {
		return err
	}
	d.loaded = false
	return d.unlock(ctx)
}

func (d *Driver) DiscardConfig(ctx context.Context) error {
	if d.loaded {
		if _, err := d.rpc(ctx, &discardReq{}); err != nil {
			return err
		}
		d.loaded = false
	}
	return d.unlock(ctx)
}

func (d *Driver) unlock(ctx context.Context) error {
	if !d.locked {
		return nil
	}
	_, err := d.rpc(ctx, &unlockReq{})
	d.locked = false
	return err
}

func (d *Driver) Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
	if getter != driver.GetFacts {
		return nil, driver.ErrNotImplemented
	}
	r, err := d.rpc(ctx, &softwareInfoReq{})
	if err != nil {
		return nil, err
	}
	model := r.Info.ProductModel
	if model == "" {
		model = r.Info.ProductName
	}
	return map[string]interface{}{
		"hostname":   r.Info.HostName,
		"vendor":     "Juniper",
		"model":      model,
		"os_version": r.Info.JunosVersion,
	}, nil
}
