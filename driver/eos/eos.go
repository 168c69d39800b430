// Package eos implements the Arista EOS driver, using cli configuration sessions.
package eos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
)

// Platform is the inventory platform name served by this driver.
const Platform = "eos"

func init() {
	driver.Register(Platform, New)
}

// Driver configures an EOS device.
type Driver struct {
	driver.CLI

	// Name of the configuration session holding the candidate, if any.
	session string
}

// New delivers an EOS driver for h.
func New(h *inventory.Host, opts driver.Options) (driver.Driver, error) {
	return &Driver{CLI: driver.CLI{
		Host:         h,
		Options:      opts,
		InitCommands: []string{"terminal length 0", "terminal width 32767"},
	}}, nil
}

// Close aborts any pending configuration session and closes the cli.
func (d *Driver) Close() error {
	if d.session != "" {
		if err := d.DiscardConfig(context.Background()); err != nil {
			log.Warningf("Discard config on %s failed: %v", d.Host.Name, err)
		}
	}
	return d.CLI.Close()
}

func (d *Driver) GetConfig(ctx context.Context, retrieve string) (*driver.Configs, error) {
	cfgs := &driver.Configs{}
	var err error
	if retrieve == driver.RetrieveAll || retrieve == driver.RetrieveRunning {
		if cfgs.Running, err = d.showConfig(ctx, "show running-config"); err != nil {
			return nil, err
		}
	}
	if retrieve == driver.RetrieveAll || retrieve == driver.RetrieveStartup {
		if cfgs.Startup, err = d.showConfig(ctx, "show startup-config"); err != nil {
			return nil, err
		}
	}
	if (retrieve == driver.RetrieveAll || retrieve == driver.RetrieveCandidate) && d.session != "" {
		if cfgs.Candidate, err = d.showConfig(ctx, "show session-config named "+d.session); err != nil {
			return nil, err
		}
	}
	return cfgs, nil
}

func (d *Driver) showConfig(ctx context.Context, cmd string) (string, error) {
	out, err := d.Send(ctx, cmd)
	if err != nil {
		return "", err
	}
	return out + "\n", nil
}

// Checkpoint delivers the running configuration, which replaces cleanly once block exits are
// inserted.
func (d *Driver) Checkpoint(ctx context.Context) (string, error) {
	cfgs, err := d.GetConfig(ctx, driver.RetrieveRunning)
	if err != nil {
		return "", err
	}
	return cfgs.Running, nil
}

func (d *Driver) LoadReplaceCandidate(ctx context.Context, config string) error {
	return d.load(ctx, config, true)
}

func (d *Driver) LoadMergeCandidate(ctx context.Context, config string) error {
	return d.load(ctx, config, false)
}

func (d *Driver) load(ctx context.Context, config string, replace bool) error {
	if d.session != "" {
		return errors.New("candidate already loaded")
	}
	name := "netdeploy-" + strings.SplitN(uuid.NewString(), "-", 2)[0]

	if _, err := d.Send(ctx, "configure session "+name); err != nil {
		return err
	}
	d.session = name

	cmds := SessionCommands(config)
	if replace {
		cmds = append([]string{"rollback clean-config"}, cmds...)
	}
	for _, cmd := range cmds {
		if _, err := d.Send(ctx, cmd); err != nil {
			_, _ = d.Send(ctx, "abort")
			d.session = ""
			return err
		}
	}
	_, err := d.Send(ctx, "end")
	return err
}

func (d *Driver) CompareConfig(ctx context.Context) (string, error) {
	if d.session == "" {
		return "", driver.ErrNoCandidate
	}
	out, err := d.Send(ctx, "show session-config named "+d.session+" diffs")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", nil
	}
	return out + "\n", nil
}

func (d *Driver) CommitConfig(ctx context.Context) error {
	if d.session == "" {
		return driver.ErrNoCandidate
	}
	if _, err := d.Send(ctx, "configure session "+d.session+" commit"); err != nil {
		return err
	}
	d.session = ""
	_, err := d.Send(ctx, "copy running-config startup-config")
	return err
}

func (d *Driver) DiscardConfig(ctx context.Context) error {
	if d.session == "" {
		return nil
	}
	_, err := d.Send(ctx, "configure session "+d.session+" abort")
	d.session = ""
	return err
}

func (d *Driver) Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
	switch getter {
	case driver.GetFacts:
		return d.getFacts(ctx)
	case driver.GetInterfaces:
		return d.getInterfaces(ctx)
	case driver.OSPFPeer:
		return d.ospfPeer(ctx, kwargs)
	}
	return nil, driver.ErrNotImplemented
}
