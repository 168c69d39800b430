package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	assert "github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/damianoneill/netdeploy/driver"
)

const source = `
- get_facts:
    os_version: 4.28.1F
    interface_list:
      list: [Ethernet1]
- ospf_peer:
    _name: ospf_leaf2
    _kwargs:
      interface: Ethernet1
      peer_id: 10.0.0.2
      peer_address: 10.1.1.2
    success:
      state: FULL
- get_bgp_neighbors:
    global: {}
`

type getterFunc func(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error)

func (f getterFunc) Get(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
	return f(ctx, getter, kwargs)
}

func device(state string) Getter {
	return getterFunc(func(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
		switch getter {
		case driver.GetFacts:
			return map[string]interface{}{"os_version": "4.28.1F", "interface_list": []interface{}{"Ethernet1"}}, nil
		case driver.OSPFPeer:
			if kwargs["peer_id"] != "10.0.0.2" {
				return driver.PeerResult(nil), nil
			}
			return driver.PeerResult([]string{state}), nil
		}
		return nil, driver.ErrNotImplemented
	})
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource([]byte(source))
	assert.NoError(t, err)
	assert.Len(t, src, 3)

	want := Check{
		Getter:   driver.OSPFPeer,
		Name:     "ospf_leaf2",
		Kwargs:   map[string]interface{}{"interface": "Ethernet1", "peer_id": "10.0.0.2", "peer_address": "10.1.1.2"},
		Expected: map[string]interface{}{"success": map[string]interface{}{"state": "FULL"}},
	}
	assert.Empty(t, cmp.Diff(want, src[1]))
	assert.Equal(t, "get_facts", src[0].Name)

	_, err = ParseSource([]byte("- just a string\n"))
	assert.EqualError(t, err, "line 1: check must be a map")
	_, err = ParseSource([]byte("- ospf_peer: {_kwargs: [a]}\n"))
	assert.EqualError(t, err, "line 1: _kwargs of ospf_peer must be a map")
}

func TestRun(t *testing.T) {
	src, err := ParseSource([]byte(source))
	assert.NoError(t, err)

	rep, err := Run(context.Background(), device("full"), src)
	assert.NoError(t, err)
	assert.True(t, rep.Complies)
	assert.Equal(t, []string{"get_facts", "ospf_leaf2", "get_bgp_neighbors"}, rep.Names)
	assert.Equal(t, []string{"get_bgp_neighbors"}, rep.Skipped)
	assert.Equal(t, &Result{Complies: true, Skipped: true, Reason: ReasonNotImplemented}, rep.Results["get_bgp_neighbors"])
	assert.Empty(t, rep.Failed())

	rep, err = Run(context.Background(), device("init"), src)
	assert.NoError(t, err)
	assert.False(t, rep.Complies)
	assert.Equal(t, []string{"ospf_leaf2"}, rep.Failed())

	out, err := yaml.Marshal(rep)
	assert.NoError(t, err)
	assert.Contains(t, string(out), "complies: false")
	assert.Contains(t, string(out), "ospf_leaf2:")
	assert.Contains(t, string(out), "- get_bgp_neighbors")
}

func TestRunGetterError(t *testing.T) {
	g := getterFunc(func(ctx context.Context, getter string, kwargs map[string]interface{}) (interface{}, error) {
		return nil, errors.New("connection reset")
	})
	_, err := Run(context.Background(), g, Source{{Getter: driver.GetFacts, Name: driver.GetFacts}})
	assert.EqualError(t, err, "getter get_facts failed: connection reset")
}

func TestFailures(t *testing.T) {
	ok := &Report{Complies: true, Names: []string{"a"}, Results: map[string]*Result{"a": {Complies: true}}}
	bad := &Report{Names: []string{"a", "b", "c"}, Results: map[string]*Result{
		"a": {Complies: false},
		"b": {Complies: true, Skipped: true},
		"c": {Complies: false},
	}}
	assert.Equal(t, map[string][]string{"leaf2": {"a", "c"}}, Failures(map[string]*Report{"leaf1": ok, "leaf2": bad, "leaf3": nil}))
}

func TestLoadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaf1_getters.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(source), 0o600))
	src, err := LoadSource(path)
	assert.NoError(t, err)
	assert.Len(t, src, 3)

	_, err = LoadSource(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read validation source failed")
}
