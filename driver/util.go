package driver

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Messages reported by the ospf_peer getter.
const (
	NoPeerFound       = "No matching peer found."
	MultiplePeerFound = "Multiple peer matches, something went wrong."
)

// PeerResult delivers the ospf_peer result for the states of the matching peers.
func PeerResult(states []string) map[string]interface{} {
	switch len(states) {
	case 0:
		return map[string]interface{}{"error": NoPeerFound}
	case 1:
		return map[string]interface{}{"success": map[string]interface{}{"state": strings.ToUpper(states[0])}}
	default:
		return map[string]interface{}{"error": MultiplePeerFound}
	}
}

// UnifiedDiff delivers the line difference between running and candidate, or "" if they only
// differ in blank lines and trailing whitespace.
func UnifiedDiff(running, candidate string) string {
	a, b := normalizeLines(running), normalizeLines(candidate)
	if strings.Join(a, "\n") == strings.Join(b, "\n") {
		return ""
	}
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "running",
		ToFile:   "candidate",
		Context:  3,
	})
	return out
}

func normalizeLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, " \t\r")
		if l != "" {
			lines = append(lines, l+"\n")
		}
	}
	return lines
}

// KwString delivers a string keyword argument, or def if not defined.
func KwString(kwargs map[string]interface{}, key, def string) string {
	switch v := kwargs[key].(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
