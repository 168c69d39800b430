// Package ietf implements a driver for devices offering the NETCONF base operations on a
// candidate datastore. Configurations are XML documents holding the content of the config element.
package ietf

import (
	"context"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
	"github.com/damianoneill/netdeploy/netconf/common"
	"github.com/damianoneill/netdeploy/netconf/ops"
)

// Platform is the inventory platform name served by this driver.
const Platform = "ietf"

// ErrNoCandidateDatastore is returned by Open when the server does not offer a candidate datastore.
var ErrNoCandidateDatastore = errors.New("candidate capability not supported")

func init() {
	driver.Register(Platform, New)
}

// Driver configures a device through the NETCONF candidate datastore.
type Driver struct {
	driver.Netconf

	locked bool
	loaded bool
}

// New delivers an IETF NETCONF driver for h.
func New(h *inventory.Host, opts driver.Options) (driver.Driver, error) {
	return &Driver{Netconf: driver.Netconf{Host: h, Options: opts}}, nil
}

func (d *Driver) Open(ctx context.Context) error {
	if err := d.Netconf.Open(ctx); err != nil {
		return err
	}
	s, _ := d.Session()
	if !common.HasCapability(s.ServerCapabilities(), common.CapCandidate) {
		_ = d.Netconf.Close()
		return errors.Wrapf(ErrNoCandidateDatastore, "host %s", d.Host.Name)
	}
	return nil
}

func (d *Driver) Close() error {
	if d.loaded || d.locked {
		if err := d.DiscardConfig(context.Background()); err != nil {
			log.Warningf("Discard config on %s failed: %v", d.Host.Name, err)
		}
	}
	return d.Netconf.Close()
}

func (d *Driver) getConfig(ctx context.Context, source string) (string, error) {
	s, err := d.Session()
	if err != nil {
		return "", err
	}
	var content string
	if err = s.GetConfigSubtree(ctx, nil, source, &content); err != nil {
		return "", errors.Wrapf(err, "get %s config failed", source)
	}
	return content, nil
}

func (d *Driver) GetConfig(ctx context.Context, retrieve string) (*driver.Configs, error) {
	cfgs := &driver.Configs{}
	var err error
	if retrieve == driver.RetrieveAll || retrieve == driver.RetrieveRunning {
		if cfgs.Running, err = d.getConfig(ctx, ops.RunningCfg); err != nil {
			return nil, err
		}
	}
	if retrieve == driver.RetrieveAll || retrieve == driver.RetrieveCandidate {
		if cfgs.Candidate, err = d.getConfig(ctx, ops.CandidateCfg); err != nil {
			return nil, err
		}
	}
	return cfgs, nil
}

// Checkpoint delivers the running configuration.
func (d *Driver) Checkpoint(ctx context.Context) (string, error) {
	return d.getConfig(ctx, ops.RunningCfg)
}

func (d *Driver) LoadReplaceCandidate(ctx context.Context, config string) error {
	return d.load(ctx, config, ops.ReplaceOp)
}

func (d *Driver) LoadMergeCandidate(ctx context.Context, config string) error {
	return d.load(ctx, config, ops.MergeOp)
}

func (d *Driver) load(ctx context.Context, config, operation string) error {
	s, err := d.Session()
	if err != nil {
		return err
	}
	if !d.locked {
		if err = s.Lock(ctx, ops.CandidateCfg); err != nil {
			return errors.Wrap(err, "lock candidate failed")
		}
		d.locked = true
	}
	d.loaded = true
	return s.EditConfig(ctx, ops.CandidateCfg, ops.Cfg(config), ops.DefaultOperation(operation))
}

// CompareConfig delivers the difference between the indented running and candidate datastores.
func (d *Driver) CompareConfig(ctx context.Context) (string, error) {
	if !d.loaded {
		return "", driver.ErrNoCandidate
	}
	running, err := d.getConfig(ctx, ops.RunningCfg)
	if err != nil {
		return "", err
	}
	candidate, err := d.getConfig(ctx, ops.CandidateCfg)
	if err != nil {
		return "", err
	}
	if running, err = IndentXML(running); err != nil {
		return "", errors.Wrap(err, "parse running config failed")
	}
	if candidate, err = IndentXML(candidate); err != nil {
		return "", errors.Wrap(err, "parse candidate config failed")
	}
	return driver.UnifiedDiff(running, candidate), nil
}

// CommitConfig validates the candidate, when the server supports validation, and commits it.
func (d *Driver) CommitConfig(ctx context.Context) error {
	if !d.loaded {
		return driver.ErrNoCandidate
	}
	s, err := d.Session()
	if err != nil {
		return err
	}
	if common.HasCapability(s.ServerCapabilities(), common.CapValidate) {
		if err = s.Validate(ctx, ops.CandidateCfg); err != nil {
			return errors.Wrap(err, "validate candidate failed")
		}
	}
	if err = s.Commit(ctx); err != nil {
		return err
	}
	d.loaded = false
	return d.unlock(ctx)
}

func (d *Driver) DiscardConfig(ctx context.Context) error {
	s, err := d.Session()
	if err != nil {
		return err
	}
	if d.loaded {
		if err = s.Discard(ctx); err != nil {
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
	s, err := d.Session()
	if err != nil {
		return err
	}
	d.locked = false
	return s.Unlock(ctx, ops.CandidateCfg)
}

func (d *Driver) Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
	return nil, driver.ErrNotImplemented
}
