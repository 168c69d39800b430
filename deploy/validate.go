package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/runner"
	"github.com/damianoneill/netdeploy/validate"
)

// Validation suites, named by the suffix of their files in the tests directory.
const (
	SuiteGetters  = "getters"
	SuiteCommands = "commands"
)

var suites = []string{SuiteGetters, SuiteCommands}

// SuitePath delivers the location of a host's validation suite.
func (d *Deployer) SuitePath(h *inventory.Host, suite string) string {
	return filepath.Join(d.cfg.Paths.Tests, artifactName(h)+"_"+suite+".yaml")
}

// Validate runs each host's validation suites and delivers the failing checks per host. A host
// without a suite file skips that suite. A suite that could not be run on a host counts as a
// failing check named after the suite's task.
func (d *Deployer) Validate(ctx context.Context) (map[string][]string, error) {
	failures := map[string][]string{}
	for _, suite := range suites {
		name := TaskValidate + "_" + suite
		reports := map[string]*validate.Report{}
		var mu sync.Mutex

		agg := d.runner.Run(ctx, name, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
			path := d.SuitePath(t.Host, suite)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return &runner.Result{Result: "no tests defined"}, nil
			}
			src, err := validate.LoadSource(path)
			if err != nil {
				return nil, err
			}
			var rep *validate.Report
			err = d.withDriver(ctx, t.Host, func(drv driver.Driver) (err error) {
				rep, err = validate.Run(ctx, drv, src)
				return
			})
			if err != nil {
				return nil, err
			}
			mu.Lock()
			reports[t.Host.Name] = rep
			mu.Unlock()
			return &runner.Result{Result: rep}, nil
		}, runner.OnFailed(true))

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for host, names := range validate.Failures(reports) {
			failures[host] = append(failures[host], names...)
		}
		if agg.Failed() {
			runner.PrintResult(d.out, agg)
			for _, host := range agg.FailedHosts() {
				failures[host] = append(failures[host], name)
			}
		}
	}
	return failures, nil
}

func (d *Deployer) printFailures(failures map[string][]string) {
	hosts := make([]string, 0, len(failures))
	for h := range failures {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	fmt.Fprintln(d.out, "The following task(s) failed:")
	for _, h := range hosts {
		fmt.Fprintf(d.out, "Host: %s, Task: %v\n", h, failures[h])
	}
}
