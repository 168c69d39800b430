// Package validate checks device state, as returned by driver getters, against declared
// expectations and produces compliance reports.
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// ModeStrict, set with the _mode key of an expected dict, also fails on unexpected entries.
const ModeStrict = "strict"

// Reserved keys of expected dicts.
const (
	keyMode   = "_mode"
	keyName   = "_name"
	keyKwargs = "_kwargs"
	keyList   = "list"
)

var numericPattern = regexp.MustCompile(`^(<=|>=|==|!=|<|>)(\d+(\.\d+)?)$`)

// Result is the outcome of comparing an expected value with the actual one.
type Result struct {
	Complies bool `yaml:"complies"`
	// Nested is set on dict entries whose value was itself compared as a dict or list.
	Nested   bool        `yaml:"nested,omitempty"`
	Expected interface{} `yaml:"expected_value,omitempty"`
	Actual   interface{} `yaml:"actual_value,omitempty"`
	// Present holds the per key results of a dict comparison, or the matched elements of a list.
	Present interface{}   `yaml:"present,omitempty"`
	Missing []interface{} `yaml:"missing,omitempty"`
	Extra   []interface{} `yaml:"extra,omitempty"`
	Skipped bool          `yaml:"skipped,omitempty"`
	Reason  string        `yaml:"reason,omitempty"`
}

// Compare checks actual against expected:
//   - dicts compare key by key; missing keys fail, and with _mode strict so do extra keys;
//   - a dict holding a "list" key compares its elements against a list: every expected element
//     must match a distinct actual element, and with _mode strict unmatched actual elements fail;
//   - strings starting with < or > compare numerically ("<10", ">=3");
//   - strings of the form "a<->b" match numbers in the inclusive range;
//   - other strings are searched as a regular expression in the actual value, falling back to
//     equality;
//   - lists must be equal, and other scalars equal after numeric normalization.
func Compare(expected, actual interface{}) (*Result, error) {
	actual = normalize(actual)
	switch e := expected.(type) {
	case map[string]interface{}:
		mode := fmt.Sprint(e[keyMode])
		if l, ok := e[keyList]; ok {
			el, _ := l.([]interface{})
			return compareList(el, actual, mode)
		}
		return compareDict(e, actual, mode)
	case string:
		ok, err := compareString(e, actual)
		return &Result{Complies: ok}, err
	case []interface{}:
		return &Result{Complies: cmp.Equal(normalize(e), actual, numbersByValue)}, nil
	}
	return &Result{Complies: scalarEqual(expected, actual)}, nil
}

func compareDict(expected map[string]interface{}, actual interface{}, mode string) (*Result, error) {
	res := &Result{Complies: true}
	present := map[string]*Result{}
	am, _ := actual.(map[string]interface{})

	for _, key := range sortedKeys(expected) {
		if key == keyMode {
			continue
		}
		av, ok := am[key]
		if !ok {
			res.Missing = append(res.Missing, key)
			res.Complies = false
			continue
		}
		ev := expected[key]
		r, err := Compare(ev, av)
		if err != nil {
			return nil, errors.Wrapf(err, "compare %s failed", key)
		}
		nested := isContainer(ev)
		switch {
		case r.Complies:
			present[key] = &Result{Complies: true, Nested: nested}
		case nested:
			r.Nested = true
			present[key] = r
		default:
			present[key] = &Result{Expected: ev, Actual: av}
		}
		if !r.Complies {
			res.Complies = false
		}
	}

	if mode == ModeStrict {
		for _, key := range sortedKeys(am) {
			if _, ok := expected[key]; !ok {
				res.Extra = append(res.Extra, key)
				res.Complies = false
			}
		}
	}
	res.Present = present
	return res, nil
}

func compareList(expected []interface{}, actual interface{}, mode string) (*Result, error) {
	res := &Result{Complies: true}
	remaining, _ := actual.([]interface{})
	remaining = append([]interface{}(nil), remaining...)
	present := []interface{}{}

	for _, ev := range expected {
		found := false
		for i, av := range remaining {
			r, err := Compare(ev, av)
			if err != nil {
				return nil, err
			}
			if r.Complies {
				found = true
				present = append(present, ev)
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
		if !found {
			res.Missing = append(res.Missing, ev)
			res.Complies = false
		}
	}

	if mode == ModeStrict && len(remaining) > 0 {
		res.Extra = remaining
		res.Complies = false
	}
	res.Present = present
	return res, nil
}

func compareString(expected string, actual interface{}) (bool, error) {
	switch {
	case strings.HasPrefix(expected, "<") || strings.HasPrefix(expected, ">"):
		return compareNumeric(expected, actual)
	case strings.Count(expected, "<->") == 1:
		return compareRange(expected, actual)
	}
	if re, err := regexp.Compile(expected); err == nil && re.MatchString(fmt.Sprint(actual)) {
		return true, nil
	}
	return scalarEqual(expected, actual), nil
}

func compareNumeric(expected string, actual interface{}) (bool, error) {
	m := numericPattern.FindStringSubmatch(expected)
	if m == nil {
		return false, errors.Errorf("invalid numeric comparison %q", expected)
	}
	want, _ := strconv.ParseFloat(m[2], 64)
	got, ok := toFloat(actual)
	if !ok {
		return false, errors.Errorf("%v is not numeric", actual)
	}
	switch m[1] {
	case "<":
		return got < want, nil
	case "<=":
		return got <= want, nil
	case ">":
		return got > want, nil
	case ">=":
		return got >= want, nil
	case "==":
		return got == want, nil
	}
	return got != want, nil
}

func compareRange(expected string, actual interface{}) (bool, error) {
	bounds := strings.Split(expected, "<->")
	low, err := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
	if err != nil {
		return false, errors.Errorf("invalid range %q", expected)
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
	if err != nil {
		return false, errors.Errorf("invalid range %q", expected)
	}
	got, ok := toFloat(actual)
	if !ok {
		return false, errors.Errorf("%v is not numeric", actual)
	}
	return low <= got && got <= high, nil
}

func scalarEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

// numbersByValue makes cmp treat numbers of different types as equal when their values are.
var numbersByValue = cmp.FilterValues(func(a, b interface{}) bool {
	return isNumber(a) && isNumber(b)
}, cmp.Comparer(scalarEqual))

func isNumber(v interface{}) bool {
	if _, ok := v.(string); ok {
		return false
	}
	_, ok := toFloat(v)
	return ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func isContainer(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

// normalize converts typed maps and slices into the generic forms produced by YAML decoding.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, map[string]interface{}, []interface{}, string, bool, int, float64:
		return v
	case int32:
		return int(t)
	case int64:
		return int(t)
	case uint:
		return int(t)
	case uint32:
		return int(t)
	case float32:
		return float64(t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
