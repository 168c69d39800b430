package deploy

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/buildkite/roko"
	"github.com/dustin/go-humanize"

	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/log"
	"github.com/damianoneill/netdeploy/runner"
	"github.com/damianoneill/netdeploy/snmp"
)

// DefaultSNMPPort is used when a host does not define snmp_port.
const DefaultSNMPPort = 161

// Prober reports how long a device has been up.
type Prober func(ctx context.Context, h *inventory.Host) (time.Duration, error)

// SNMPUptime delivers a Prober reading sysUpTime with the host's community, waiting at most
// timeout for each response.
func SNMPUptime(timeout time.Duration) Prober {
	return func(ctx context.Context, h *inventory.Host) (time.Duration, error) {
		target := net.JoinHostPort(h.Hostname, strconv.Itoa(h.GetInt(inventory.KeySNMPPort, DefaultSNMPPort)))
		s, err := snmp.NewFactory().NewSession(ctx, target,
			snmp.Community(h.GetString(inventory.KeySNMPCommunity)),
			snmp.Timeout(timeout),
			snmp.Retries(0))
		if err != nil {
			return 0, err
		}
		defer s.Close()
		return snmp.Uptime(ctx, s)
	}
}

func hasCommunity(h *inventory.Host) bool {
	return h.GetString(inventory.KeySNMPCommunity) != ""
}

// Settle waits for the configured settle time, then polls the uptime of every host defining an
// SNMP community until it answers. Zero ready attempts disables the polling.
func (d *Deployer) Settle(ctx context.Context) (*runner.AggregatedResult, error) {
	fmt.Fprintf(d.out, "Sleeping for %s before testing...\n", d.cfg.Deploy.SettleTime)
	if err := sleep(ctx, d.cfg.Deploy.SettleTime); err != nil {
		return nil, err
	}

	return d.process(d.runner.Run(ctx, TaskSettle, func(ctx context.Context, t *runner.Task) (*runner.Result, error) {
		var uptime time.Duration
		err := roko.NewRetrier(
			roko.WithMaxAttempts(d.cfg.Deploy.ReadyAttempts),
			roko.WithStrategy(roko.Constant(d.cfg.Deploy.ReadyInterval)),
		).DoWithContext(ctx, func(r *roko.Retrier) (err error) {
			uptime, err = d.probe(ctx, t.Host)
			if err != nil {
				log.Debugf("%s: not ready: %v (%s)", t.Host.Name, err, r)
			}
			return
		})
		if err != nil {
			return nil, err
		}
		now := time.Now()
		log.Infof("%s: ready, up %s", t.Host.Name, humanize.RelTime(now.Add(-uptime), now, "", ""))
		return &runner.Result{Result: uptime.Round(time.Second).String()}, nil
	}, runner.Filter(func(h *inventory.Host) bool {
		return d.cfg.Deploy.ReadyAttempts > 0 && hasCommunity(h)
	})))
}
