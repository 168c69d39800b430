package eos

import (
	"strings"
)

// SessionCommands converts a configuration, as shown by "show running-config", into the commands
// entered in a configuration session. Comments, blank lines and the closing "end" are dropped,
// and an "exit" is inserted for every block left by a dedent, so that each line is entered in the
// mode it belongs to.
func SessionCommands(config string) []string {
	type line struct {
		text   string
		indent int
	}
	var lines []line
	for _, l := range strings.Split(config, "\n") {
		l = strings.TrimRight(l, " \t\r")
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "!") || trimmed == "end" || trimmed == "exit" {
			continue
		}
		lines = append(lines, line{text: l, indent: len(l) - len(strings.TrimLeft(l, " "))})
	}

	var cmds []string
	var open []int
	closeTo := func(indent int) {
		for len(open) > 0 && open[len(open)-1] >= indent {
			cmds = append(cmds, strings.Repeat(" ", open[len(open)-1]+3)+"exit")
			open = open[:len(open)-1]
		}
	}
	for i, l := range lines {
		closeTo(l.indent)
		cmds = append(cmds, l.text)
		if i+1 < len(lines) && lines[i+1].indent > l.indent {
			open = append(open, l.indent)
		}
	}
	closeTo(0)
	return cmds
}
