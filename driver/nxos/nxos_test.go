package nxos

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

const running = "hostname n9k1\ninterface Ethernet1/1\n  description uplink\n"

func openDriver(t *testing.T, dev *testserver.NXOSDevice) driver.Driver {
	h := &inventory.Host{
		Name:     "n9k1",
		Hostname: "127.0.0.1",
		Port:     dev.Port(),
		Username: testserver.TestUserName,
		Password: testserver.TestPassword,
		Platform: Platform,
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
	dev := testserver.NewNXOSDevice(t, "n9k1", running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	candidate := "hostname n9k1\ninterface Ethernet1/1\n  description core\n"
	diff, changed, err := driver.Configure(ctx, d, candidate, true, false)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, diff, "-  description uplink")
	assert.Contains(t, diff, "+  description core")

	assert.Equal(t, candidate, dev.Running())
	assert.Equal(t, candidate, dev.Startup())
	_, ok := dev.File(CandidateFile)
	assert.False(t, ok)
}

func TestReplaceDryRun(t *testing.T) {
	dev := testserver.NewNXOSDevice(t, "n9k1", running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	assert.NoError(t, d.LoadReplaceCandidate(ctx, "hostname other\n"))
	b, ok := dev.File(CandidateFile)
	assert.True(t, ok)
	assert.Equal(t, "hostname other\n", string(b))

	cfgs, err := d.GetConfig(ctx, driver.RetrieveCandidate)
	assert.NoError(t, err)
	assert.Equal(t, "hostname other\n", cfgs.Candidate)

	assert.NoError(t, d.DiscardConfig(ctx))
	_, ok = dev.File(CandidateFile)
	assert.False(t, ok)
	assert.Equal(t, running, dev.Running())

	_, err = d.CompareConfig(ctx)
	assert.ErrorIs(t, err, driver.ErrNoCandidate)
}

func TestMerge(t *testing.T) {
	dev := testserver.NewNXOSDevice(t, "n9k1", running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	diff, changed, err := driver.Configure(ctx, d, "!\nntp server 192.0.2.1\n", false, false)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "--- running\n+++ candidate\n@@ -1,3 +1,4 @@\n hostname n9k1\n interface Ethernet1/1\n   description uplink\n+ntp server 192.0.2.1\n", diff)
	assert.Equal(t, running+"ntp server 192.0.2.1\n", dev.Running())
	assert.Equal(t, dev.Running(), dev.Startup())

	_, _, err = driver.Configure(ctx, d, "bogus line\n", false, false)
	assert.ErrorIs(t, err, driver.ErrCommandFailed)
	assert.Equal(t, running+"ntp server 192.0.2.1\n", dev.Running())
}

func TestCheckpointRestore(t *testing.T) {
	dev := testserver.NewNXOSDevice(t, "n9k1", running)
	defer dev.Close()
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	checkpoint, err := d.Checkpoint(ctx)
	assert.NoError(t, err)
	assert.Equal(t, running, checkpoint)
	_, ok := dev.File(CheckpointFile)
	assert.False(t, ok)

	_, _, err = driver.Configure(ctx, d, "ntp server 192.0.2.1\n", false, false)
	assert.NoError(t, err)
	_, changed, err := driver.Configure(ctx, d, checkpoint, true, false)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, running, dev.Running())
}

const showVersionJSON = `{"host_name": "n9k1", "chassis_id": "Nexus9000 C9300v Chassis", "nxos_ver_str": "10.2(3)",
 "proc_board_id": "9N3KD63KWT0", "kern_uptm_days": 1, "kern_uptm_hrs": 2, "kern_uptm_mins": 3, "kern_uptm_secs": 4}`

const showInterfaceJSON = `{"TABLE_interface": {"ROW_interface": [
 {"interface": "mgmt0", "state": "up", "admin_state": "up", "eth_bw": 1000000, "eth_mtu": "1500", "eth_hw_addr": "5254.0012.3456"},
 {"interface": "Ethernet1/1", "state": "down", "admin_state": "down", "desc": "uplink", "eth_bw": 10000000, "eth_mtu": "9216"}]}}`

const showOSPFSingleJSON = `{"TABLE_ctx": {"ROW_ctx": {"ptag": "1", "cname": "default", "TABLE_nbr": {"ROW_nbr":
 {"rid": "10.0.0.2", "addr": "10.1.1.2", "state": "FULL"}}}}}`

const showOSPFListJSON = `{"TABLE_ctx": {"ROW_ctx": {"ptag": "1", "cname": "default", "TABLE_nbr": {"ROW_nbr": [
 {"rid": "10.0.0.2", "addr": "10.1.1.2", "state": "FULL"},
 {"rid": "10.0.0.3", "addr": "10.1.1.3", "state": "INIT"},
 {"rid": "10.0.0.3", "addr": "10.1.1.3", "state": "INIT"}]}}}}`

func TestGetters(t *testing.T) {
	dev := testserver.NewNXOSDevice(t, "n9k1", running)
	defer dev.Close()
	dev.SetOutput("show version | json", showVersionJSON).
		SetOutput("show interface | json", showInterfaceJSON).
		SetOutput("show ip ospf neighbor Eth1/1 | json", showOSPFSingleJSON).
		SetOutput("show ip ospf neighbor Eth1/2 | json", showOSPFListJSON)
	d := openDriver(t, dev)
	defer d.Close()
	ctx := context.Background()

	facts, err := d.Get(ctx, driver.GetFacts, nil)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"hostname":       "n9k1",
		"vendor":         "Cisco",
		"model":          "Nexus9000 C9300v Chassis",
		"os_version":     "10.2(3)",
		"serial_number":  "9N3KD63KWT0",
		"uptime":         93784,
		"interface_list": []interface{}{"mgmt0", "Ethernet1/1"},
	}, facts)

	intfs, err := d.Get(ctx, driver.GetInterfaces, nil)
	assert.NoError(t, err)
	eth := intfs.(map[string]interface{})["Ethernet1/1"].(map[string]interface{})
	assert.Equal(t, false, eth["is_up"])
	assert.Equal(t, false, eth["is_enabled"])
	assert.Equal(t, 10000, eth["speed"])
	assert.Equal(t, 9216, eth["mtu"])

	kwargs := map[string]interface{}{"interface": "Ethernet1/1", "peer_id": "10.0.0.2", "peer_address": "10.1.1.2"}
	peer, err := d.Get(ctx, driver.OSPFPeer, kwargs)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"success": map[string]interface{}{"state": "FULL"}}, peer)

	// a single neighbor must still match on router id and address
	kwargs["peer_address"] = "10.1.1.9"
	peer, err = d.Get(ctx, driver.OSPFPeer, kwargs)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": driver.NoPeerFound}, peer)

	kwargs = map[string]interface{}{"interface": "Ethernet1/2", "peer_id": "10.0.0.3", "peer_address": "10.1.1.3"}
	peer, err = d.Get(ctx, driver.OSPFPeer, kwargs)
	assert.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": driver.MultiplePeerFound}, peer)

	_, err = d.Get(ctx, "get_lldp_neighbors", nil)
	assert.ErrorIs(t, err, driver.ErrNotImplemented)
}
