package nxos

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/driver"
)

// rows decodes an NX-OS ROW_ element, which is an object when there is a single row and an
// array otherwise.
type rows[T any] []T

func (r *rows[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*r = rows[T]{v}
		return nil
	}
	var vs []T
	if err := json.Unmarshal(b, &vs); err != nil {
		return err
	}
	*r = vs
	return nil
}

type showVersion struct {
	HostName     string `json:"host_name"`
	ChassisID    string `json:"chassis_id"`
	Version      string `json:"nxos_ver_str"`
	SysVersion   string `json:"sys_ver_str"`
	ProcBoardID  string `json:"proc_board_id"`
	KernUptmDays int    `json:"kern_uptm_days"`
	KernUptmHrs  int    `json:"kern_uptm_hrs"`
	KernUptmMins int    `json:"kern_uptm_mins"`
	KernUptmSecs int    `json:"kern_uptm_secs"`
}

type nxInterface struct {
	Interface  string      `json:"interface"`
	State      string      `json:"state"`
	AdminState string      `json:"admin_state"`
	Desc       string      `json:"desc"`
	EthBW      json.Number `json:"eth_bw"`
	EthMTU     json.Number `json:"eth_mtu"`
	EthHWAddr  string      `json:"eth_hw_addr"`
}

type showInterface struct {
	TableInterface struct {
		RowInterface rows[nxInterface] `json:"ROW_interface"`
	} `json:"TABLE_interface"`
}

type ospfNeighbor struct {
	RID   string `json:"rid"`
	Addr  string `json:"addr"`
	State string `json:"state"`
}

type showOSPFNeighbor struct {
	TableCtx struct {
		RowCtx rows[struct {
			CName    string `json:"cname"`
			PTag     string `json:"ptag"`
			TableNbr struct {
				RowNbr rows[ospfNeighbor] `json:"ROW_nbr"`
			} `json:"TABLE_nbr"`
		}] `json:"ROW_ctx"`
	} `json:"TABLE_ctx"`
}

func (d *Driver) sendJSON(ctx context.Context, cmd string, v interface{}) error {
	out, err := d.Send(ctx, cmd+" | json")
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal([]byte(out), v), "decode %q output failed", cmd)
}

func (d *Driver) interfaces(ctx context.Context) ([]nxInterface, error) {
	intfs := &showInterface{}
	if err := d.sendJSON(ctx, "show interface", intfs); err != nil {
		return nil, err
	}
	return intfs.TableInterface.RowInterface, nil
}

func (d *Driver) getFacts(ctx context.Context) (map[string]interface{}, error) {
	ver := &showVersion{}
	if err := d.sendJSON(ctx, "show version", ver); err != nil {
		return nil, err
	}
	intfs, err := d.interfaces(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]interface{}, 0, len(intfs))
	for _, i := range intfs {
		names = append(names, i.Interface)
	}
	version := ver.Version
	if version == "" {
		version = ver.SysVersion
	}
	uptime := ((ver.KernUptmDays*24+ver.KernUptmHrs)*60+ver.KernUptmMins)*60 + ver.KernUptmSecs
	return map[string]interface{}{
		"hostname":       ver.HostName,
		"vendor":         "Cisco",
		"model":          ver.ChassisID,
		"os_version":     version,
		"serial_number":  ver.ProcBoardID,
		"uptime":         uptime,
		"interface_list": names,
	}, nil
}

func (d *Driver) getInterfaces(ctx context.Context) (map[string]interface{}, error) {
	intfs, err := d.interfaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(intfs))
	for _, i := range intfs {
		bw, _ := i.EthBW.Int64()
		mtu, _ := i.EthMTU.Int64()
		out[i.Interface] = map[string]interface{}{
			"is_up":       i.State == "up",
			"is_enabled":  i.AdminState != "down",
			"description": i.Desc,
			"speed":       int(bw / 1000),
			"mtu":         int(mtu),
			"mac_address": i.EthHWAddr,
		}
	}
	return out, nil
}

// ospfPeer reports the adjacency state of the neighbor matching peer_id and peer_address.
func (d *Driver) ospfPeer(ctx context.Context, kwargs map[string]interface{}) (map[string]interface{}, error) {
	intf := strings.Replace(driver.KwString(kwargs, "interface", ""), "Ethernet", "Eth", 1)
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
	for _, c := range nbr.TableCtx.RowCtx {
		for _, n := range c.TableNbr.RowNbr {
			if n.RID == peerID && n.Addr == peerAddress {
				states = append(states, n.State)
			}
		}
	}
	return driver.PeerResult(states), nil
}
