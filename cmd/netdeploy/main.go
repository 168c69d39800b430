// Command netdeploy renders, deploys and validates network device configurations.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/damianoneill/netdeploy/deploy"
	"github.com/damianoneill/netdeploy/log"

	_ "github.com/damianoneill/netdeploy/driver/eos"
	_ "github.com/damianoneill/netdeploy/driver/ietf"
	_ "github.com/damianoneill/netdeploy/driver/junos"
	_ "github.com/damianoneill/netdeploy/driver/nxos"
)

// Exit codes.
const (
	exitOK               = 0
	exitError            = 1
	exitValidationFailed = 2
	exitRollbackFailed   = 3
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args, os.Stdout))
}

func run(ctx context.Context, args []string, out io.Writer) int {
	err := newApp(ctx, out).Run(args)
	if err != nil {
		log.Error(err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, deploy.ErrRollbackFailed):
		return exitRollbackFailed
	case errors.Is(err, deploy.ErrValidationFailed):
		return exitValidationFailed
	}
	return exitError
}

func newApp(ctx context.Context, out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "netdeploy"
	app.Usage = "render, deploy and validate network device configurations"
	app.Version = version
	app.Writer = out
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  defaultConfigFile,
			Usage:  "application configuration file",
			EnvVar: "NETDEPLOY_CONFIG",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "debug, info, notice, warning or error",
			EnvVar: "NETDEPLOY_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored log output",
		},
	}
	app.Before = func(c *cli.Context) error {
		log.Init(os.Stderr, c.GlobalString("log-level"), !c.GlobalBool("no-color"))
		return nil
	}

	hostFlags := []cli.Flag{
		cli.StringSliceFlag{Name: "host", Usage: "restrict to the named host, may be repeated"},
		cli.StringFlag{Name: "platform", Usage: "restrict to hosts of platform"},
		cli.StringFlag{Name: "group", Usage: "restrict to direct members of group"},
	}

	app.Commands = []cli.Command{
		{
			Name:   "deploy",
			Usage:  "render, back up, deploy and validate, rolling back on validation failure",
			Flags:  hostFlags,
			Action: withDeployer(ctx, func(ctx context.Context, d *deploy.Deployer) error { return d.Run(ctx) }),
		},
		{
			Name:   "render",
			Usage:  "render and write configurations without contacting devices",
			Flags:  hostFlags,
			Action: withDeployer(ctx, func(ctx context.Context, d *deploy.Deployer) error { return d.RenderOnly(ctx) }),
		},
		{
			Name:   "backup",
			Usage:  "back up device configurations",
			Flags:  hostFlags,
			Action: withDeployer(ctx, func(ctx context.Context, d *deploy.Deployer) error { return d.BackupOnly(ctx) }),
		},
		{
			Name:  "rollback",
			Usage: "restore device configurations from their backups",
			Flags: hostFlags,
			Action: withDeployer(ctx, func(ctx context.Context, d *deploy.Deployer) error {
				_, err := d.Rollback(ctx)
				return err
			}),
		},
		{
			Name:   "validate",
			Usage:  "validate devices against their test suites",
			Flags:  hostFlags,
			Action: withDeployer(ctx, func(ctx context.Context, d *deploy.Deployer) error { return d.ValidateOnly(ctx) }),
		},
		{
			Name:   "platforms",
			Usage:  "list the supported device platforms",
			Action: handlerPlatforms,
		},
		{
			Name:  "pipeline",
			Usage: "run or show the CI pipeline",
			Subcommands: []cli.Command{
				{
					Name:  "run",
					Usage: "execute the pipeline locally",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "file, f", Usage: "pipeline manifest, default is the built-in pipeline"},
						cli.StringFlag{Name: "workspace, w", Value: "workspace", Usage: "directory the steps run in"},
						cli.StringSliceFlag{Name: "label", Usage: "executor label matched against the pipeline agent"},
					},
					Action: func(c *cli.Context) error { return handlerPipelineRun(ctx, c) },
				},
				{
					Name:   "show",
					Usage:  "print the pipeline manifest",
					Flags:  []cli.Flag{cli.StringFlag{Name: "file, f", Usage: "pipeline manifest, default is the built-in pipeline"}},
					Action: handlerPipelineShow,
				},
			},
		},
	}
	return app
}
