// Package nxos implements the Cisco NX-OS driver. A replace candidate is uploaded to bootflash
// with scp and applied with a configuration rollback; a merge candidate is entered in
// configuration mode.
package nxos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/cli"
	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
)

// Platform is the inventory platform name served by this driver.
const Platform = "nxos"

// Files written to the device.
const (
	CandidateFile  = "bootflash:netdeploy_candidate.cfg"
	CheckpointFile = "bootflash:netdeploy_checkpoint"
)

func init() {
	driver.Register(Platform, New)
}

// Driver configures an NX-OS device.
type Driver struct {
	driver.CLI

	// candidate is the configuration expected once the pending change is committed.
	candidate *string
	// merge holds the lines of a merge candidate.
	merge []string
	// uploaded is set once a replace candidate is held in CandidateFile.
	uploaded bool
}

// New delivers an NX-OS driver for h.
func New(h *inventory.Host, opts driver.Options) (driver.Driver, error) {
	return &Driver{CLI: driver.CLI{
		Host:         h,
		Options:      opts,
		InitCommands: []string{"terminal length 0", "terminal width 511"},
	}}, nil
}

func (d *Driver) Close() error {
	if d.uploaded {
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
		if cfgs.Running, err = d.show(ctx, "show running-config"); err != nil {
			return nil, err
		}
	}
	if retrieve == driver.RetrieveAll || retrieve == driver.RetrieveStartup {
		if cfgs.Startup, err = d.show(ctx, "show startup-config"); err != nil {
			return nil, err
		}
	}
	if (retrieve == driver.RetrieveAll || retrieve == driver.RetrieveCandidate) && d.candidate != nil {
		cfgs.Candidate = *d.candidate
	}
	return cfgs, nil
}

func (d *Driver) show(ctx context.Context, cmd string) (string, error) {
	out, err := d.Send(ctx, cmd)
	if err != nil {
		return "", err
	}
	return out + "\n", nil
}

// Checkpoint creates a checkpoint file, reads it back and removes it from the device.
func (d *Driver) Checkpoint(ctx context.Context) (string, error) {
	if _, err := d.Send(ctx, "checkpoint file "+CheckpointFile); err != nil {
		return "", err
	}
	content, err := d.show(ctx, "show file "+CheckpointFile)
	if err != nil {
		return "", err
	}
	if strings.Contains(content, "No such file") {
		return "", errors.Errorf("checkpoint %s not found", CheckpointFile)
	}
	if _, err = d.Send(ctx, "delete "+CheckpointFile+" no-prompt"); err != nil {
		return "", err
	}
	return content, nil
}

func (d *Driver) LoadReplaceCandidate(ctx context.Context, config string) error {
	s, err := d.Session()
	if err != nil {
		return err
	}
	if err = cli.CopyFile(ctx, s.Client(), []byte(config), CandidateFile); err != nil {
		return err
	}
	d.uploaded = true
	d.merge = nil
	d.candidate = &config
	return nil
}

func (d *Driver) LoadMergeCandidate(ctx context.Context, config string) error {
	running, err := d.show(ctx, "show running-config")
	if err != nil {
		return err
	}
	d.merge = nil
	for _, l := range strings.Split(config, "\n") {
		if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "!") {
			d.merge = append(d.merge, strings.TrimRight(l, " \t\r"))
		}
	}
	candidate := running + strings.Join(d.merge, "\n") + "\n"
	d.candidate = &candidate
	return nil
}

// CompareConfig delivers the difference between the running configuration and the candidate,
// computed locally.
func (d *Driver) CompareConfig(ctx context.Context) (string, error) {
	if d.candidate == nil {
		return "", driver.ErrNoCandidate
	}
	running, err := d.show(ctx, "show running-config")
	if err != nil {
		return "", err
	}
	return driver.UnifiedDiff(running, *d.candidate), nil
}

func (d *Driver) CommitConfig(ctx context.Context) error {
	if d.candidate == nil {
		return driver.ErrNoCandidate
	}
	if d.uploaded {
		if _, err := d.Send(ctx, "rollback running-config file "+CandidateFile); err != nil {
			return err
		}
	} else {
		cmds := append(append([]string{"configure terminal"}, d.merge...), "end")
		if err := d.SendAll(ctx, cmds...); err != nil {
			_, _ = d.Send(ctx, "end")
			return err
		}
	}
	if err := d.DiscardConfig(ctx); err != nil {
		return err
	}
	_, err := d.Send(ctx, "copy running-config startup-config")
	return err
}

func (d *Driver) DiscardConfig(ctx context.Context) error {
	d.candidate = nil
	d.merge = nil
	if !d.uploaded {
		return nil
	}
	d.uploaded = false
	_, err := d.Send(ctx, "delete "+CandidateFile+" no-prompt")
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
