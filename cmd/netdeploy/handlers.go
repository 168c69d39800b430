package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/damianoneill/netdeploy/config"
	"github.com/damianoneill/netdeploy/deploy"
	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
	"github.com/damianoneill/netdeploy/pipeline"
)

const defaultConfigFile = "config.yaml"

// loadConfig reads the configuration file. The default file may be absent, in which case the
// default configuration applies.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigFile && !c.GlobalIsSet("config") && errors.Is(err, os.ErrNotExist) {
			log.Debugf("No %s, using the default configuration", path)
			return config.Default(), nil
		}
		return nil, err
	}
	if !c.GlobalIsSet("log-level") {
		if err = log.SetLevel(cfg.Logging.Level); err != nil {
			return nil, err
		}
	}
	if cfg.Logging.NoColor {
		log.DisableColors()
	}
	return cfg, nil
}

func loadInventory(c *cli.Context, cfg *config.Config) (*inventory.Inventory, error) {
	inv, err := inventory.Load(inventory.Files{
		Hosts:    cfg.Inventory.Hosts,
		Groups:   cfg.Inventory.Groups,
		Defaults: cfg.Inventory.Defaults,
	})
	if err != nil {
		return nil, err
	}
	if names := c.StringSlice("host"); len(names) > 0 {
		inv = inv.Filter(inventory.ByName(names...))
	}
	if p := c.String("platform"); p != "" {
		inv = inv.Filter(inventory.ByPlatform(p))
	}
	if g := c.String("group"); g != "" {
		inv = inv.Filter(inventory.ByGroup(g))
	}
	if len(inv.Hosts) == 0 {
		return nil, errors.New("no hosts selected")
	}
	log.Infof("Selected %d hosts", len(inv.Hosts))
	return inv, nil
}

func withDeployer(ctx context.Context, fn func(context.Context, *deploy.Deployer) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		inv, err := loadInventory(c, cfg)
		if err != nil {
			return err
		}
		return fn(ctx, deploy.New(cfg, inv, deploy.WithOutput(c.App.Writer)))
	}
}

func handlerPlatforms(c *cli.Context) error {
	for _, p := range driver.Platforms() {
		fmt.Fprintln(c.App.Writer, p)
	}
	return nil
}

func loadPipeline(c *cli.Context) (*pipeline.Pipeline, error) {
	if path := c.String("file"); path != "" {
		return pipeline.Load(path)
	}
	return pipeline.Default(), nil
}

func handlerPipelineShow(c *cli.Context) error {
	p, err := loadPipeline(c)
	if err != nil {
		return err
	}
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(b)
	return err
}

func handlerPipelineRun(ctx context.Context, c *cli.Context) error {
	p, err := loadPipeline(c)
	if err != nil {
		return err
	}
	e := &pipeline.Executor{
		Workspace: c.String("workspace"),
		Labels:    c.StringSlice("label"),
		Output:    c.App.Writer,
		Source:    ".",
	}
	if path := c.String("file"); path != "" {
		e.Source = filepath.Dir(path)
	}
	res, err := e.Run(ctx, p)
	if res != nil {
		for _, sr := range append(res.Stages, res.Post...) {
			fmt.Fprintf(c.App.Writer, "%-24s %-8s %s\n", sr.Name, sr.Status, sr.Duration.Round(time.Millisecond))
		}
	}
	return err
}
