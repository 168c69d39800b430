package deploy

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netdeploy/config"
	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
)

// device is an in-memory stand in for a network device.
type device struct {
	mu        sync.Mutex
	running   string
	candidate *string
	version   string
	opens     int
	commits   int
	openErr   error
	commitErr error
}

func (dev *device) Running() string {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.running
}

type fakeDriver struct {
	dev *device
}

func (f *fakeDriver) Open(ctx context.Context) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.opens++
	return f.dev.openErr
}

func (f *fakeDriver) Close() error {
	return f.DiscardConfig(context.Background())
}

func (f *fakeDriver) GetConfig(ctx context.Context, retrieve string) (*driver.Configs, error) {
	return &driver.Configs{Running: f.dev.Running()}, nil
}

func (f *fakeDriver) Checkpoint(ctx context.Context) (string, error) {
	return f.dev.Running(), nil
}

func (f *fakeDriver) LoadReplaceCandidate(ctx context.Context, config string) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.candidate = &config
	return nil
}

func (f *fakeDriver) LoadMergeCandidate(ctx context.Context, config string) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	merged := f.dev.running + config
	f.dev.candidate = &merged
	return nil
}

func (f *fakeDriver) CompareConfig(ctx context.Context) (string, error) {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.dev.candidate == nil {
		return "", driver.ErrNoCandidate
	}
	return driver.UnifiedDiff(f.dev.running, *f.dev.candidate), nil
}

func (f *fakeDriver) CommitConfig(ctx context.Context) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.dev.commitErr != nil {
		return f.dev.commitErr
	}
	f.dev.running = *f.dev.candidate
	f.dev.candidate = nil
	f.dev.commits++
	return nil
}

func (f *fakeDriver) DiscardConfig(ctx context.Context) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.candidate = nil
	return nil
}

func (f *fakeDriver) Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
	if getter != driver.GetFacts {
		return nil, driver.ErrNotImplemented
	}
	hostname := strings.TrimPrefix(strings.SplitN(f.dev.Running(), "\n", 2)[0], "hostname ")
	return map[string]interface{}{"hostname": hostname, "os_version": f.dev.version}, nil
}

type fleet map[string]*device

func (fl fleet) factory(h *inventory.Host, opts driver.Options) (driver.Driver, error) {
	dev, ok := fl[h.Name]
	if !ok {
		return nil, errors.Wrapf(driver.ErrUnknownPlatform, "host %s", h.Name)
	}
	return &fakeDriver{dev: dev}, nil
}

const template = `hostname {{ .name }}
ntp server {{ .ntp }}
`

type fixture struct {
	root  string
	cfg   *config.Config
	out   *bytes.Buffer
	fleet fleet
}

func newFixture(t *testing.T, hosts ...string) *fixture {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		Templates: filepath.Join(root, "templates"),
		Tests:     filepath.Join(root, "network_tests"),
		Configs:   filepath.Join(root, "configs"),
		Backups:   filepath.Join(root, "backup"),
		Diffs:     filepath.Join(root, "diffs"),
	}
	cfg.Deploy.SettleTime = 0
	cfg.Deploy.ReadyAttempts = 3
	cfg.Deploy.ReadyInterval = time.Millisecond
	cfg.SSH.ConnectAttempts = 1
	cfg.SSH.ConnectInterval = time.Millisecond

	assert.NoError(t, os.MkdirAll(cfg.Paths.Templates, 0o750))
	assert.NoError(t, os.MkdirAll(cfg.Paths.Tests, 0o750))
	assert.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Templates, "leaf.tmpl"), []byte(template), 0o600))

	fl := fleet{}
	for _, h := range hosts {
		fl[h] = &device{running: "hostname " + h + "\n", version: "4.30"}
	}
	return &fixture{root: root, cfg: cfg, out: &bytes.Buffer{}, fleet: fl}
}

func (f *fixture) writeTest(t *testing.T, host, suite, content string) {
	assert.NoError(t, os.WriteFile(filepath.Join(f.cfg.Paths.Tests, host+"_"+suite+".yaml"), []byte(content), 0o600))
}

func (f *fixture) deployer(t *testing.T, data map[string]map[string]interface{}, opts ...Option) *Deployer {
	specs := map[string]*inventory.Spec{}
	for name := range f.fleet {
		d := map[string]interface{}{"j2_template_file": "leaf.tmpl", "ntp": "192.0.2.1"}
		for k, v := range data[name] {
			d[k] = v
		}
		specs[name] = &inventory.Spec{Platform: "fake", Data: d}
	}
	inv, err := inventory.New(specs, nil, nil)
	assert.NoError(t, err)
	opts = append([]Option{WithOutput(f.out), WithDriverFactory(f.fleet.factory)}, opts...)
	return New(f.cfg, inv, opts...)
}

func readFile(t *testing.T, path string) string {
	b, err := os.ReadFile(path) // nolint: gosec
	assert.NoError(t, err)
	return string(b)
}

func TestRunDeploysAndValidates(t *testing.T) {
	f := newFixture(t, "leaf1", "leaf2")
	f.writeTest(t, "leaf1", SuiteGetters, "- get_facts:\n    hostname: leaf1\n    os_version: \"4.30\"\n")
	d := f.deployer(t, map[string]map[string]interface{}{"leaf2": {"dev_hostname": "leaf2.lab"}})

	assert.NoError(t, d.Run(context.Background()))

	rendered := "hostname leaf1\nntp server 192.0.2.1\n"
	assert.Equal(t, rendered, f.fleet["leaf1"].Running())
	assert.Equal(t, rendered, readFile(t, filepath.Join(f.cfg.Paths.Configs, "leaf1")))
	assert.Equal(t, "hostname leaf1\n", readFile(t, filepath.Join(f.cfg.Paths.Backups, "leaf1")))
	assert.Contains(t, readFile(t, filepath.Join(f.cfg.Paths.Diffs, "leaf1")), "+ntp server 192.0.2.1")

	assert.Equal(t, "hostname leaf2\nntp server 192.0.2.1\n", readFile(t, filepath.Join(f.cfg.Paths.Configs, "leaf2.lab")))
	assert.Equal(t, 1, f.fleet["leaf2"].commits)

	assert.Contains(t, f.out.String(), "Validating configurations completed successfully!")
}

func TestRunRollsBackOnValidationFailure(t *testing.T) {
	f := newFixture(t, "leaf1", "leaf2")
	f.writeTest(t, "leaf1", SuiteGetters, "- get_facts:\n    os_version: \"4.31\"\n")
	d := f.deployer(t, nil)

	err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.EqualError(t, err, "devices rolled back: validation failed")

	// Every host is restored, not only the one failing validation.
	assert.Equal(t, "hostname leaf1\n", f.fleet["leaf1"].Running())
	assert.Equal(t, "hostname leaf2\n", f.fleet["leaf2"].Running())
	out := f.out.String()
	assert.Contains(t, out, "The following task(s) failed:\nHost: leaf1, Task: [get_facts]\n")
	assert.Contains(t, out, "Rollback of configurations completed successfully!")
}

func TestRunSkipRollback(t *testing.T) {
	f := newFixture(t, "leaf1")
	f.writeTest(t, "leaf1", SuiteCommands, "- get_facts:\n    os_version: \"4.31\"\n")
	f.cfg.Deploy.SkipRollback = true
	d := f.deployer(t, nil)

	assert.Equal(t, ErrValidationFailed, d.Run(context.Background()))
	assert.Equal(t, "hostname leaf1\nntp server 192.0.2.1\n", f.fleet["leaf1"].Running())
}

func TestRunAbortsOnRenderFailure(t *testing.T) {
	f := newFixture(t, "leaf1", "leaf2")
	d := f.deployer(t, map[string]map[string]interface{}{"leaf2": {"j2_template_file": "missing.tmpl"}})

	err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.EqualError(t, err, "render_configs: exiting before we break anything else")
	assert.Contains(t, f.out.String(), "template missing.tmpl not found")

	// No device was contacted.
	assert.Zero(t, f.fleet["leaf1"].opens)
	assert.NoDirExists(t, f.cfg.Paths.Configs)
}

func TestRunAbortsOnCommitFailure(t *testing.T) {
	f := newFixture(t, "leaf1", "leaf2")
	f.fleet["leaf2"].commitErr = errors.New("commit rejected")
	d := f.deployer(t, nil)

	err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.EqualError(t, err, "deploy_configs: exiting before we break anything else")
	assert.Contains(t, f.out.String(), "commit config failed: commit rejected")
	assert.Equal(t, []string{"leaf2"}, sortedKeys(d.Runner().FailedHosts()))
}

func TestBackupConnectFailure(t *testing.T) {
	f := newFixture(t, "leaf1")
	f.fleet["leaf1"].openErr = errors.New("connection refused")
	d := f.deployer(t, nil)

	err := d.BackupOnly(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, f.out.String(), "connection refused")
	assert.NoFileExists(t, filepath.Join(f.cfg.Paths.Backups, "leaf1"))
}

func TestDryRunLeavesDevice(t *testing.T) {
	f := newFixture(t, "leaf1")
	d := f.deployer(t, nil)
	ctx := context.Background()

	assert.NoError(t, d.RenderOnly(ctx))
	agg, err := d.DryRun(ctx)
	assert.NoError(t, err)
	assert.False(t, agg.Results["leaf1"].Changed())
	assert.Contains(t, agg.Result("leaf1").Diff, "+ntp server 192.0.2.1")
	assert.Equal(t, "hostname leaf1\n", f.fleet["leaf1"].Running())

	diff, ok := d.Runner().Inventory().Hosts["leaf1"].GetStateString(StateDiff)
	assert.True(t, ok)
	assert.Equal(t, agg.Result("leaf1").Diff, diff)
}

func TestMergeMode(t *testing.T) {
	f := newFixture(t, "leaf1")
	f.cfg.Deploy.Merge = true
	assert.NoError(t, os.WriteFile(filepath.Join(f.cfg.Paths.Templates, "leaf.tmpl"), []byte("ntp server {{ .ntp }}\n"), 0o600))
	d := f.deployer(t, nil)
	ctx := context.Background()

	assert.NoError(t, d.RenderOnly(ctx))
	_, err := d.Deploy(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "hostname leaf1\nntp server 192.0.2.1\n", f.fleet["leaf1"].Running())
}

func TestRollbackOnly(t *testing.T) {
	f := newFixture(t, "leaf1")
	d := f.deployer(t, nil)
	ctx := context.Background()

	_, err := d.Rollback(ctx)
	assert.ErrorIs(t, err, ErrRollbackFailed)
	assert.Contains(t, f.out.String(), "read "+filepath.Join(f.cfg.Paths.Backups, "leaf1")+" failed")

	_, err = d.Store().Write("backup", "leaf1", "hostname restored\n")
	assert.NoError(t, err)
	agg, err := d.Rollback(ctx)
	assert.NoError(t, err)
	assert.True(t, agg.Results["leaf1"].Changed())
	assert.Equal(t, "hostname restored\n", f.fleet["leaf1"].Running())
}

func TestValidateOnly(t *testing.T) {
	f := newFixture(t, "leaf1", "leaf2")
	f.writeTest(t, "leaf1", SuiteGetters, "- get_facts:\n    hostname: leaf1\n")
	f.writeTest(t, "leaf1", SuiteCommands, "- ospf_peer:\n    _kwargs:\n      interface: Ethernet1\n    success:\n      state: FULL\n")
	f.writeTest(t, "leaf2", SuiteGetters, "- get_facts:\n    _name: version check\n    os_version: \"4.1\"\n")
	f.writeTest(t, "leaf2", SuiteCommands, "not: a list\n")
	d := f.deployer(t, nil)

	failures, err := d.Validate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, map[string][]string{"leaf2": {"version check", "validate_commands"}}, failures)

	assert.ErrorIs(t, d.ValidateOnly(context.Background()), ErrValidationFailed)
}

func TestSettleWaitsForDevices(t *testing.T) {
	f := newFixture(t, "leaf1", "leaf2")
	var mu sync.Mutex
	probes := map[string]int{}
	prober := func(ctx context.Context, h *inventory.Host) (time.Duration, error) {
		mu.Lock()
		defer mu.Unlock()
		probes[h.Name]++
		if probes[h.Name] < 3 {
			return 0, errors.New("request timeout")
		}
		return 90 * time.Second, nil
	}
	d := f.deployer(t, map[string]map[string]interface{}{"leaf1": {"snmp_community": "public"}}, WithProber(prober))

	agg, err := d.Settle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"leaf1": 3}, probes)
	assert.Equal(t, []string{"leaf1"}, agg.Hosts())
	assert.Equal(t, "1m30s", agg.Result("leaf1").Result)
	assert.Contains(t, f.out.String(), "Sleeping for 0s before testing...")
}

func TestSettleGivesUp(t *testing.T) {
	f := newFixture(t, "leaf1")
	prober := func(ctx context.Context, h *inventory.Host) (time.Duration, error) {
		return 0, errors.New("request timeout")
	}
	d := f.deployer(t, map[string]map[string]interface{}{"leaf1": {"snmp_community": "public"}}, WithProber(prober))

	_, err := d.Settle(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
}

func TestSettleWithoutReadyAttempts(t *testing.T) {
	f := newFixture(t, "leaf1")
	f.cfg.Deploy.ReadyAttempts = 0
	prober := func(ctx context.Context, h *inventory.Host) (time.Duration, error) {
		t.Fatalf("%s polled", h.Name)
		return 0, nil
	}
	d := f.deployer(t, map[string]map[string]interface{}{"leaf1": {"snmp_community": "public"}}, WithProber(prober))

	agg, err := d.Settle(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, agg.Hosts())
}

func TestSettleCancelled(t *testing.T) {
	f := newFixture(t, "leaf1")
	f.cfg.Deploy.SettleTime = time.Hour
	d := f.deployer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Settle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func sortedKeys(m map[string]bool) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
