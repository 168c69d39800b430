package junos

import (
	"context"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netdeploy/driver"
	"github.com/damianoneill/netdeploy/inventory"
	"github.com/damianoneill/netdeploy/sshutil"
	"github.com/damianoneill/netdeploy/testserver"
)

const running = `system {
    host-name mx1;
}
`

func openDriver(t *testing.T, dev *testserver.NetconfDevice) driver.Driver {
	h := &inventory.Host{
		Name:     "mx1",
		Hostname: "127.0.0.1",
		Port:     22,
		Username: testserver.TestUserName,
		Password: testserver.TestPassword,
		Platform: Platform,
		Data:     map[string]interface{}{inventory.KeyNetconfPort: dev.Port()},
	}
	d, err := driver.New(h, driver.Options{
		SSH:            sshutil.Options{Insecure: true},
		CommandTimeout: 5 * time.Second,
	})
	assert.NoError(t, err)
	assert.NoError(t, d.Open(context.Background()))
	return d
}

func TestReplaceCommit(t *testing.T) {
	dev := testserver.NewNetconfDevice(t, running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	candidate := "system {\n    host-name mx2;\n}\n"
	diff, changed, err := driver.Configure(ctx, d, candidate, true, false)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, diff, "-    host-name mx1;")
	assert.Contains(t, diff, "+    host-name mx2;")
	assert.Equal(t, candidate, dev.Running())
	assert.Equal(t, 1, dev.Commits())
	assert.False(t, dev.Locked())

	assert.Equal(t, []string{
		"lock-configuration", "load-configuration", "get-configuration", "commit-configuration", "unlock-configuration",
	}, dev.LastHandler().RequestNames())
	assert.Equal(t, "override", dev.LastHandler().Requests()[1].Request.Attr("action"))
}

func TestMergeDryRun(t *testing.T) {
	dev := testserver.NewNetconfDevice(t, running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	assert.NoError(t, d.LoadMergeCandidate(ctx, "snmp {\n    community public;\n}\n"))
	assert.True(t, dev.Locked())
	assert.Equal(t, "merge", dev.LastHandler().LastReq().Request.Attr("action"))

	cfgs, err := d.GetConfig(ctx, driver.RetrieveAll)
	assert.NoError(t, err)
	assert.Equal(t, running, cfgs.Running)
	assert.Contains(t, cfgs.Candidate, "community public;")
	assert.Empty(t, cfgs.Startup)

	diff, err := d.CompareConfig(ctx)
	assert.NoError(t, err)
	assert.Contains(t, diff, "+snmp {")

	assert.NoError(t, d.DiscardConfig(ctx))
	assert.False(t, dev.Locked())
	assert.Equal(t, running, dev.Candidate())
	assert.Equal(t, 0, dev.Commits())
}

func TestNoDifference(t *testing.T) {
	dev := testserver.NewNetconfDevice(t, running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()

	diff, changed, err := driver.Configure(context.Background(), d, running, true, false)
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, diff)
	assert.False(t, dev.Locked())
}

func TestLoadRejected(t *testing.T) {
	dev := testserver.NewNetconfDevice(t, running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()

	_, _, err := driver.Configure(context.Background(), d, "bogus;\n", true, false)
	assert.ErrorContains(t, err, "load candidate failed")
	assert.ErrorContains(t, err, "syntax error")
	assert.False(t, dev.Locked())
	assert.Equal(t, running, dev.Running())
}

func TestLockDenied(t *testing.T) {
	dev := testserver.NewNetconfDevice(t, running)
	defer dev.Close()
	first := openDriver(t, dev)
	defer first.Close()
	second := openDriver(t, dev)
	defer second.Close()
	ctx := context.Background()

	assert.NoError(t, first.LoadMergeCandidate(ctx, "x;\n"))
	err := second.LoadMergeCandidate(ctx, "y;\n")
	assert.ErrorContains(t, err, "lock-denied")
	_, err = second.CompareConfig(ctx)
	assert.ErrorIs(t, err, driver.ErrNoCandidate)
}

func TestGetFacts(t *testing.T) {
	dev := testserver.NewNetconfDevice(t, running).WithSoftwareInformation(`<software-information>
<host-name>mx1</host-name><product-model>mx480</product-model><junos-version>21.4R3</junos-version>
</software-information>`)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	facts, err := d.Get(ctx, driver.GetFacts, nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"hostname": "mx1", "vendor": "Juniper", "model": "mx480", "os_version": "21.4R3",
	}, facts)

	_, err = d.Get(ctx, driver.OSPFPeer, nil)
	assert.ErrorIs(t, err, driver.ErrNotImplemented)
}
