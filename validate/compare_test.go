package validate

import (
	"testing"

	assert "github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func expect(t *testing.T, s string) interface{} {
	var v interface{}
	assert.NoError(t, yaml.Unmarshal([]byte(s), &v))
	return v
}

func TestCompareDict(t *testing.T) {
	actual := map[string]interface{}{
		"hostname":   "leaf1",
		"os_version": "4.28.1F",
		"uptime":     3600,
		"vendor":     "Arista",
	}

	r, err := Compare(expect(t, "{hostname: leaf1, uptime: '>1000'}"), actual)
	assert.NoError(t, err)
	assert.True(t, r.Complies)
	assert.Equal(t, map[string]*Result{
		"hostname": {Complies: true},
		"uptime":   {Complies: true},
	}, r.Present)

	r, err = Compare(expect(t, "{hostname: spine1, model: vEOS}"), actual)
	assert.NoError(t, err)
	assert.False(t, r.Complies)
	assert.Equal(t, []interface{}{"model"}, r.Missing)
	assert.Equal(t, &Result{Expected: "spine1", Actual: "leaf1"}, r.Present.(map[string]*Result)["hostname"])

	r, err = Compare(expect(t, "{hostname: leaf1, _mode: strict}"), actual)
	assert.NoError(t, err)
	assert.False(t, r.Complies)
	assert.Equal(t, []interface{}{"os_version", "uptime", "vendor"}, r.Extra)
}

func TestCompareNested(t *testing.T) {
	actual := map[string]interface{}{
		"success": map[string]interface{}{"state": "FULL"},
	}
	r, err := Compare(expect(t, "{success: {state: FULL}}"), actual)
	assert.NoError(t, err)
	assert.True(t, r.Complies)
	assert.Equal(t, &Result{Complies: true, Nested: true}, r.Present.(map[string]*Result)["success"])

	r, err = Compare(expect(t, "{success: {state: INIT}}"), actual)
	assert.NoError(t, err)
	assert.False(t, r.Complies)
	nested := r.Present.(map[string]*Result)["success"]
	assert.True(t, nested.Nested)
	assert.False(t, nested.Complies)

	r, err = Compare(expect(t, "{success: {state: FULL}}"), map[string]interface{}{"error": "No matching peer found."})
	assert.NoError(t, err)
	assert.False(t, r.Complies)
	assert.Equal(t, []interface{}{"success"}, r.Missing)
}

func TestCompareList(t *testing.T) {
	actual := map[string]interface{}{"interface_list": []string{"Ethernet1", "Ethernet2", "Management1"}}

	r, err := Compare(expect(t, "{interface_list: {list: [Ethernet2, 'Ethernet\\d']}}"), actual)
	assert.NoError(t, err)
	assert.True(t, r.Complies)

	r, err = Compare(expect(t, "{interface_list: {list: [Ethernet3]}}"), actual)
	assert.NoError(t, err)
	assert.False(t, r.Complies)
	list := r.Present.(map[string]*Result)["interface_list"]
	assert.Equal(t, []interface{}{"Ethernet3"}, list.Missing)

	r, err = Compare(expect(t, "{interface_list: {_mode: strict, list: [Ethernet1, Ethernet2]}}"), actual)
	assert.NoError(t, err)
	assert.False(t, r.Complies)
	list = r.Present.(map[string]*Result)["interface_list"]
	assert.Equal(t, []interface{}{"Management1"}, list.Extra)

	// a plain list must match exactly
	r, err = Compare(expect(t, "[1, 2]"), []interface{}{1.0, 2})
	assert.NoError(t, err)
	assert.True(t, r.Complies)
	r, err = Compare(expect(t, "[1, 2]"), []interface{}{2, 1})
	assert.NoError(t, err)
	assert.False(t, r.Complies)
}

func TestCompareScalars(t *testing.T) {
	tests := []struct {
		expected interface{}
		actual   interface{}
		complies bool
	}{
		{"<10", 9, true},
		{"<10", 10, false},
		{"<=10", 10.0, true},
		{">=3", "3", true},
		{"!=3", 4, true},
		{"==3.5", 3.5, true},
		{"1<->10", 10, true},
		{"1<->10", 11, false},
		{"^4\\.28", "4.28.1F", true},
		{"4.2[0-7]", "4.28.1F", false},
		{"a(b", "a(b", true},
		{3, 3.0, true},
		{3, "3", true},
		{true, true, true},
		{true, false, false},
		{nil, nil, true},
	}
	for _, tc := range tests {
		r, err := Compare(tc.expected, tc.actual)
		assert.NoError(t, err, tc.expected)
		assert.Equal(t, tc.complies, r.Complies, "%v vs %v", tc.expected, tc.actual)
	}

	_, err := Compare("<ten", 1)
	assert.EqualError(t, err, `invalid numeric comparison "<ten"`)
	_, err = Compare(">1", "many")
	assert.EqualError(t, err, "many is not numeric")
	_, err = Compare("a<->b", 1)
	assert.EqualError(t, err, `invalid range "a<->b"`)
}
