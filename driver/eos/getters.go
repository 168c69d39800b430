package eos

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/driver"
)

type showVersion struct {
	ModelName        string  `json:"modelName"`
	Version          string  `json:"version"`
	SerialNumber     string  `json:"serialNumber"`
	SystemMacAddress string  `json:"systemMacAddress"`
	Uptime           float64 `json:"uptime"`
}

type showHostname struct {
	Hostname string `json:"hostname"`
	FQDN     string `json:"fqdn"`
}

type showInterfaces struct {
	Interfaces map[string]struct {
		Description        string  `json:"description"`
		InterfaceStatus    string  `json:"interfaceStatus"`
		LineProtocolStatus string  `json:"lineProtocolStatus"`
		Bandwidth          float64 `json:"bandwidth"`
		MTU                int     `json:"mtu"`
		PhysicalAddress    string  `json:"physicalAddress"`
	} `json:"interfaces"`
}

type showOSPFNeighbor struct {
	VRFs map[string]struct {
		InstList map[string]struct {
			OSPFNeighborEntries []struct {
				RouterID         string `json:"routerId"`
				InterfaceAddress string `json:"interfaceAddress"`
				AdjacencyState   string `json:"adjacencyState"`
			} `json:"ospfNeighborEntries"`
		} `json:"instList"`
	} `json:"vrfs"`
}

func (d *Driver) sendJSON(ctx context.Context, cmd string, v interface{}) error {
	out, err := d.Send(ctx, cmd+" | json")
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal([]byte(out), v), "decode %q output failed", cmd)
}

func (d *Driver) getFacts(ctx context.Context) (map[string]interface{}, error) {
	ver := &showVersion{}
	if err := d.sendJSON(ctx, "show version", ver); err != nil {
		return nil, err
	}
	host := &showHostname{}
	if err := d.sendJSON(ctx, "show hostname", host); err != nil {
		return nil, err
	}
	intfs := &showInterfaces{}
	if err := d.sendJSON(ctx, "show interfaces", intfs); err != nil {
		return nil, err
	}
	names := make([]interface{}, 0, len(intfs.Interfaces))
	for _, n := range sortedKeys(intfs.Interfaces) {
		names = append(names, n)
	}
	return map[string]interface{}{
		"hostname":       host.Hostname,
		"fqdn":           host.FQDN,
		"vendor":         "Arista",
		"model":          ver.ModelName,
		"os_version":     ver.Version,
		"serial_number":  ver.SerialNumber,
		"uptime":         int(ver.Uptime),
		"interface_list": names,
	}, nil
}

func (d *Driver) getInterfaces(ctx context.Context) (map[string]interface{}, error) {
	intfs := &showInterfaces{}
	if err := d.sendJSON(ctx, "show interfaces", intfs); err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(intfs.Interfaces))
	for name, i := range intfs.Interfaces {
		out[name] = map[string]interface{}{
			"is_up":       i.LineProtocolStatus == "up",
			"is_enabled":  i.InterfaceStatus != "disabled",
			"description": i.Description,
			"speed":       int(i.Bandwidth / 1e6),
			"mtu":         i.MTU,
			"mac_address": i.PhysicalAddress,
		}
	}
	return out, nil
}

// ospfPeer reports the adjacency state of the neighbor matching peer_id and peer_address.
func (d *Driver) ospfPeer(ctx context.Context, kwargs map[string]interface{}) (map[string]interface{}, error) {
	vrf := driver.KwString(kwargs, "context", "default")
	pid := driver.KwString(kwargs, "process_id", strconv.Itoa(1))
	intf := driver.KwString(kwargs, "interface", "")
	peerID := driver.KwString(kwargs, "peer_id", "")
	peerAddress := driver.KwString(kwargs, "peer_address", "")

	cmd := "show ip ospf neighbor"
	if intf != "" {
		cmd += " " + intf
	}
	nbr := &showOSPFNeighbor{}
	if err := d.sendJSON(ctx, cmd, nbr); err != nil {
		return nil, err
	}

	var states []string
	for _, e := range nbr.VRFs[vrf].InstList[pid].OSPFNeighborEntries {
		if e.RouterID == peerID && e.InterfaceAddress == peerAddress {
			states = append(states, e.AdjacencyState)
		}
	}
	return driver.PeerResult(states), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
