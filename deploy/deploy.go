// Package deploy runs the configuration deployment workflow: render, back up, push, validate and,
// when validation fails, roll back.
//
// Every phase runs across all hosts concurrently and is followed by a check of its results; the
// workflow stops after any phase that failed on any host, before touching devices further.
package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/config"
	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
	"github.com/damianoneill/netdeploy/render"
	"github.com/damianoneill/netdeploy/runner"
	"github.com/damianoneill/netdeploy/sshutil"
	"github.com/damianoneill/netdeploy/store"
)

var (
	// ErrAborted is returned when a phase failed on at least one host.
	ErrAborted = errors.New("exiting before we break anything else")
	// ErrValidationFailed is returned when deployed configurations did not pass validation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrRollbackFailed is returned when restoring a backup failed on at least one host.
	ErrRollbackFailed = errors.New("rollback failed")
)

// Host state keys.
const (
	StateConfig = "config"
	StateBackup = "backup_config"
	StateDiff   = "diff"
)

// Task names.
const (
	TaskRender       = "render_configs"
	TaskWriteConfigs = "write_configs"
	TaskBackup       = "backup_configs"
	TaskWriteBackups = "write_backups"
	TaskDryRun       = "dry_run"
	TaskDeploy       = "deploy_configs"
	TaskSettle       = "wait_ready"
	TaskValidate     = "validate"
	TaskRollback     = "rollback"
)

// DriverFactory creates the driver used to reach a host.
type DriverFactory func(h *inventory.Host, opts driver.Options) (driver.Driver, error)

// Deployer runs workflow phases against an inventory.
type Deployer struct {
	cfg       *config.Config
	runner    *runner.Runner
	store     *store.Store
	opts      driver.Options
	newDriver DriverFactory
	probe     Prober
	out       io.Writer
}

// Option implements options for configuring a Deployer.
type Option func(*Deployer)

// WithOutput directs result reports to w. Default is stdout.
func WithOutput(w io.Writer) Option {
	return func(d *Deployer) {
		d.out = w
	}
}

// WithDriverFactory replaces the platform registry lookup used to create drivers.
func WithDriverFactory(f DriverFactory) Option {
	return func(d *Deployer) {
		d.newDriver = f
	}
}

// WithProber replaces the SNMP readiness probe.
func WithProber(p Prober) Option {
	return func(d *Deployer) {
		d.probe = p
	}
}

// New creates a Deployer for inv.
func New(cfg *config.Config, inv *inventory.Inventory, opts ...Option) *Deployer {
	d := &Deployer{
		cfg:    cfg,
		runner: runner.New(inv, runner.WithNumWorkers(cfg.Runner.NumWorkers)),
		store: store.New(map[store.Kind]string{
			store.Configs: cfg.Paths.Configs,
			store.Backups: cfg.Paths.Backups,
			store.Diffs:   cfg.Paths.Diffs,
		}),
		opts:      DriverOptions(cfg),
		newDriver: driver.New,
		probe:     SNMPUptime(cfg.Deploy.ReadyInterval),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DriverOptions maps the application configuration onto driver options.
func DriverOptions(cfg *config.Config) driver.Options {
	return driver.Options{
		SSH: sshutil.Options{
			Timeout:          cfg.SSH.Timeout,
			PrivateKeyFile:   cfg.SSH.PrivateKey,
			KnownHostsFile:   cfg.SSH.KnownHosts,
			Insecure:         cfg.SSH.InsecureIgnoreHostKey,
			LegacyAlgorithms: cfg.SSH.LegacyAlgorithms,
		},
		ConnectAttempts: cfg.SSH.ConnectAttempts,
		ConnectInterval: cfg.SSH.ConnectInterval,
	}
}

// Runner delivers the runner executing the phases.
func (d *Deployer) Runner() *runner.Runner {
	return d.runner
}

// Store delivers the artifact store.
func (d *Deployer) Store() *store.Store {
	return d.store
}

// Run executes the complete workflow. It returns ErrAborted if a phase failed,
// ErrValidationFailed if validation failed and the devices were rolled back, and
// ErrRollbackFailed if restoring the backups failed.
func (d *Deployer) Run(ctx context.Context) error {
	phases := []func(context.Context) (*runner.AggregatedResult, error){
		d.Render, d.WriteConfigs, d.Backup, d.WriteBackups, d.DryRun, d.Deploy, d.Settle,
	}
	for _, phase := range phases {
		if _, err := phase(ctx); err != nil {
			return err
		}
	}

	failures, err := d.Validate(ctx)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		fmt.Fprintln(d.out, "Validating configurations completed successfully!")
		return nil
	}
	d.printFailures(failures)
	if d.cfg.Deploy.SkipRollback {
		log.Warningf("Rollback disabled, leaving devices as deployed")
		return ErrValidationFailed
	}
	if _, err := d.Rollback(ctx); err != nil {
		return err
	}
	return errors.Wrap(ErrValidationFailed, "devices rolled back")
}

// process reports the outcome of a phase, failing if any host failed.
func (d *Deployer) process(agg *runner.AggregatedResult) (*runner.AggregatedResult, error) {
	if agg.Failed() {
		runner.PrintResult(d.out, agg)
		log.Errorf("Task %s failed on %v", agg.Name, agg.FailedHosts())
		return agg, errors.Wrap(ErrAborted, agg.Name)
	}
	log.Infof("Task %s completed successfully", agg.Name)
	return agg, nil
}

// withDriver connects to the task's host and runs fn, closing the connection afterwards.
func (d *Deployer) withDriver(ctx context.Context, h *inventory.Host, fn func(drv driver.Driver) error) error {
	drv, err := d.newDriver(h, d.opts)
	if err != nil {
		return err
	}
	if err = driver.Connect(ctx, drv, d.opts); err != nil {
		return errors.Wrapf(err, "connect to %s failed", h.Address())
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			log.Warningf("%s: close failed: %v", h.Name, cerr)
		}
	}()
	return fn(drv)
}

// artifactName delivers the file name used for a host's artifacts.
func artifactName(h *inventory.Host) string {
	if n := h.DevHostname(); n != "" {
		return n
	}
	return h.Name
}

// Render renders each host's template, keeping the result in the host state.
func (d *Deployer) Render(ctx context.Context) (*runner.AggregatedResult, error) {
	r, err := render.New(d.cfg.Paths.Templates)
	if err != nil {
		return nil, err
	}
	return d.process(d.runner.Run(ctx, TaskRender, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		out, err := r.RenderHost(t.Host)
		if err != nil {
			return nil, err
		}
		t.Host.Set(StateConfig, out)
		return &runner.Result{Result: out}, nil
	}))
}

// WriteConfigs stores each rendered configuration.
func (d *Deployer) WriteConfigs(ctx context.Context) (*runner.AggregatedResult, error) {
	return d.process(d.runner.Run(ctx, TaskWriteConfigs, d.writeState(StateConfig, store.Configs)))
}

// Backup retrieves from each device a configuration able to restore its current state.
func (d *Deployer) Backup(ctx context.Context) (*runner.AggregatedResult, error) {
	return d.process(d.runner.Run(ctx, TaskBackup, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		var backup string
		err := d.withDriver(ctx, t.Host, func(drv driver.Driver) (err error) {
			backup, err = drv.Checkpoint(ctx)
			return
		})
		if err != nil {
			return nil, err
		}
		t.Host.Set(StateBackup, backup)
		return &runner.Result{}, nil
	}))
}

// WriteBackups stores each backup.
func (d *Deployer) WriteBackups(ctx context.Context) (*runner.AggregatedResult, error) {
	return d.process(d.runner.Run(ctx, TaskWriteBackups, d.writeState(StateBackup, store.Backups)))
}

func (d *Deployer) writeState(key string, kind store.Kind) runner.TaskFunc {
	return func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		content, ok := t.Host.GetStateString(key)
		if !ok {
			return nil, errors.Errorf("no %s for %s", key, t.Host.Name)
		}
		path, err := d.store.Write(kind, artifactName(t.Host), content)
		if err != nil {
			return nil, err
		}
		return &runner.Result{Result: path}, nil
	}
}

// DryRun loads each rendered configuration, records the difference with the running
// configuration and discards it.
func (d *Deployer) DryRun(ctx context.Context) (*runner.AggregatedResult, error) {
	return d.process(d.runner.Run(ctx, TaskDryRun, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		diff, _, err := d.configure(ctx, t.Host, StateConfig, true)
		if err != nil {
			return nil, err
		}
		t.Host.Set(StateDiff, diff)
		if _, err = d.store.Write(store.Diffs, artifactName(t.Host), diff); err != nil {
			return nil, err
		}
		return &runner.Result{Diff: diff}, nil
	}))
}

// Deploy commits each rendered configuration that differs from the running configuration.
func (d *Deployer) Deploy(ctx context.Context) (*runner.AggregatedResult, error) {
	return d.process(d.runner.Run(ctx, TaskDeploy, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		diff, changed, err := d.configure(ctx, t.Host, StateConfig, false)
		if err != nil {
			return nil, err
		}
		return &runner.Result{Diff: diff, Changed: changed}, nil
	}))
}

func (d *Deployer) configure(ctx context.Context, h *inventory.Host, key string, dryRun bool) (diff string, changed bool, err error) {
	cfg, ok := h.GetStateString(key)
	if !ok {
		return "", false, errors.Errorf("no %s for %s", key, h.Name)
	}
	err = d.withDriver(ctx, h, func(drv driver.Driver) (err error) {
		diff, changed, err = driver.Configure(ctx, drv, cfg, !d.cfg.Deploy.Merge, dryRun)
		return
	})
	return
}

// Rollback replaces the configuration of every host with its stored backup.
func (d *Deployer) Rollback(ctx context.Context) (*runner.AggregatedResult, error) {
	agg := d.runner.Run(ctx, TaskRollback, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		backup, err := d.store.Read(store.Backups, artifactName(t.Host))
		if err != nil {
			return nil, err
		}
		var diff string
		var changed bool
		err = d.withDriver(ctx, t.Host, func(drv driver.Driver) (err error) {
			diff, changed, err = driver.Configure(ctx, drv, backup, true, false)
			return
		})
		if err != nil {
			return nil, err
		}
		return &runner.Result{Diff: diff, Changed: changed}, nil
	}, runner.OnFailed(true))

	if agg.Failed() {
		runner.PrintResult(d.out, agg)
		return agg, errors.Wrapf(ErrRollbackFailed, "hosts %v", agg.FailedHosts())
	}
	fmt.Fprintln(d.out, "Rollback of configurations completed successfully!")
	return agg, nil
}

// RenderOnly renders and stores configurations without contacting devices.
func (d *Deployer) RenderOnly(ctx context.Context) error {
	if _, err := d.Render(ctx); err != nil {
		return err
	}
	_, err := d.WriteConfigs(ctx)
	return err
}

// BackupOnly backs up and stores the configuration of every device.
func (d *Deployer) BackupOnly(ctx context.Context) error {
	if _, err := d.Backup(ctx); err != nil {
		return err
	}
	_, err := d.WriteBackups(ctx)
	return err
}

// ValidateOnly validates the devices as they are, returning ErrValidationFailed if any check
// failed.
func (d *Deployer) ValidateOnly(ctx context.Context) error {
	failures, err := d.Validate(ctx)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		d.printFailures(failures)
		return ErrValidationFailed
	}
	fmt.Fprintln(d.out, "Validating configurations completed successfully!")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
