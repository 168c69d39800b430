// Package runner executes tasks concurrently across the hosts of an inventory.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
)

// TaskFunc performs a unit of work against the task's host. The returned result may be nil.
type TaskFunc func(ctx context.Context, t *Task) (*Result, error)

// Task is the handle passed to a TaskFunc.
type Task struct {
	Host *inventory.Host
	Name string

	subResults MultiResult
}

// Run executes fn as a subtask of t. Subtask results are reported after the parent result, and a
// failed subtask fails the parent.
func (t *Task) Run(ctx context.Context, name string, fn TaskFunc) (*Result, error) {
	sub := &Task{Host: t.Host, Name: name}
	res := execute(ctx, sub, fn)
	t.subResults = append(t.subResults, res...)
	return res[0], res[0].Err
}

// Config defines properties controlling task execution.
type Config struct {
	// Maximum number of hosts processed concurrently.
	NumWorkers int
}

// DefaultConfig matches the default of the application configuration.
var DefaultConfig = Config{
	NumWorkers: 20,
}

// Option implements options for configuring a runner.
type Option func(*Config)

// WithNumWorkers bounds the number of hosts processed concurrently.
func WithNumWorkers(n int) Option {
	return func(c *Config) {
		c.NumWorkers = n
	}
}

// Runner executes tasks across an inventory, remembering hosts that failed.
type Runner struct {
	inv *inventory.Inventory
	cfg Config

	mu          sync.Mutex
	failedHosts map[string]bool
}

// New creates a runner for inv.
func New(inv *inventory.Inventory, opts ...Option) *Runner {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	_ = mergo.Merge(&cfg, DefaultConfig)
	return &Runner{inv: inv, cfg: cfg, failedHosts: map[string]bool{}}
}

type runConfig struct {
	onFailed bool
	filter   func(h *inventory.Host) bool
}

// RunOption implements options for a single run.
type RunOption func(*runConfig)

// OnFailed includes hosts that failed a previous run.
func OnFailed(include bool) RunOption {
	return func(c *runConfig) {
		c.onFailed = include
	}
}

// Filter restricts the run to the hosts accepted by fn.
func Filter(fn func(h *inventory.Host) bool) RunOption {
	return func(c *runConfig) {
		c.filter = fn
	}
}

// Inventory delivers the runner's inventory.
func (r *Runner) Inventory() *inventory.Inventory {
	return r.inv
}

// FailedHosts delivers the hosts that failed a run so far.
func (r *Runner) FailedHosts() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.failedHosts))
	for h := range r.failedHosts {
		out[h] = true
	}
	return out
}

// ResetFailedHosts forgets earlier failures.
func (r *Runner) ResetFailedHosts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedHosts = map[string]bool{}
}

// Run executes fn against each selected host. A host's error becomes a failed result; it never
// stops the task running on other hosts.
func (r *Runner) Run(ctx context.Context, name string, fn TaskFunc, opts ...RunOption) *AggregatedResult {
	rc := runConfig{}
	for _, opt := range opts {
		opt(&rc)
	}

	agg := &AggregatedResult{Name: name, Results: map[string]MultiResult{}}
	var mu sync.Mutex

	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.NumWorkers)
	for _, hn := range r.inv.Names() {
		h := r.inv.Hosts[hn]
		if rc.filter != nil && !rc.filter(h) {
			continue
		}
		if !rc.onFailed && r.FailedHosts()[hn] {
			log.Debugf("%s: skipping failed host %s", name, hn)
			continue
		}
		g.Go(func() error {
			res := execute(ctx, &Task{Host: h, Name: name}, fn)
			mu.Lock()
			agg.Results[h.Name] = res
			mu.Unlock()
			if res.Failed() {
				r.mu.Lock()
				r.failedHosts[h.Name] = true
				r.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Debugf("%s: ran on %d hosts in %s", name, len(agg.Results), time.Since(start).Round(time.Millisecond))
	return agg
}

// execute runs fn, converting errors and panics into a failed result.
func execute(ctx context.Context, t *Task, fn TaskFunc) (mr MultiResult) {
	res := &Result{}
	defer func() {
		if p := recover(); p != nil {
			res.Failed = true
			res.Err = errors.New(fmt.Sprint(p))
		}
		res.Host = t.Host.Name
		res.Name = t.Name
		if res.Err != nil {
			res.Failed = true
		}
		if !res.Failed && t.subResults.Failed() {
			res.Failed = true
			res.Err = errors.Errorf("subtask of %s failed", t.Name)
		}
		mr = append(MultiResult{res}, t.subResults...)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return
	}

	out, err := fn(ctx, t)
	if out != nil {
		res = out
	}
	if err != nil {
		res.Err = err
	}
	return
}
