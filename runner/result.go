package runner

import (
	"sort"
)

// Result holds the outcome of running a task against one host.
type Result struct {
	Host    string
	Name    string
	Result  interface{}
	Diff    string
	Changed bool
	Failed  bool
	Err     error
}

// MultiResult holds the result of a task followed by the results of its subtasks, in execution
// order.
type MultiResult []*Result

// Failed reports whether the task or any of its subtasks failed.
func (m MultiResult) Failed() bool {
	for _, r := range m {
		if r.Failed {
			return true
		}
	}
	return false
}

// Changed reports whether the task or any of its subtasks changed the host.
func (m MultiResult) Changed() bool {
	for _, r := range m {
		if r.Changed {
			return true
		}
	}
	return false
}

// AggregatedResult holds the results of a task run across hosts.
type AggregatedResult struct {
	Name    string
	Results map[string]MultiResult
}

// Failed reports whether the task failed on any host.
func (a *AggregatedResult) Failed() bool {
	for _, m := range a.Results {
		if m.Failed() {
			return true
		}
	}
	return false
}

// Hosts delivers the hosts the task ran against, sorted.
func (a *AggregatedResult) Hosts() []string {
	hosts := make([]string, 0, len(a.Results))
	for h := range a.Results {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// FailedHosts delivers the hosts the task failed on, sorted.
func (a *AggregatedResult) FailedHosts() []string {
	var hosts []string
	for _, h := range a.Hosts() {
		if a.Results[h].Failed() {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Result delivers the top level result for host, or nil if the task did not run there.
func (a *AggregatedResult) Result(host string) *Result {
	m := a.Results[host]
	if len(m) == 0 {
		return nil
	}
	return m[0]
}
