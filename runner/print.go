package runner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const bannerWidth = 80

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorBlue   = "\033[34m"
)

type printer struct {
	w      io.Writer
	colors bool
}

func (p printer) paint(color, s string) string {
	if !p.colors {
		return s
	}
	return color + s + colorReset
}

func banner(s string, fill byte) string {
	if len(s) >= bannerWidth {
		return s
	}
	return s + strings.Repeat(string(fill), bannerWidth-len(s))
}

// PrintResult writes agg in banner form, one section per host. Colors are used when w is a
// terminal.
func PrintResult(w io.Writer, agg *AggregatedResult) {
	p := printer{w: w}
	if f, ok := w.(*os.File); ok {
		p.colors = term.IsTerminal(int(f.Fd()))
	}

	fmt.Fprintln(w, p.paint(colorBlue, banner(agg.Name, '*')))
	for _, host := range agg.Hosts() {
		m := agg.Results[host]
		color := colorGreen
		switch {
		case m.Failed():
			color = colorRed
		case m.Changed():
			color = colorYellow
		}
		fmt.Fprintln(w, p.paint(color, banner(fmt.Sprintf("* %s ** changed : %t ", host, m.Changed()), '*')))
		for _, r := range m {
			p.printResult(r)
		}
	}
}

func (p printer) printResult(r *Result) {
	level, color := "INFO", colorGreen
	switch {
	case r.Failed:
		level, color = "ERROR", colorRed
	case r.Changed:
		color = colorYellow
	}
	head := banner(fmt.Sprintf("vvvv %s ** changed : %t ", r.Name, r.Changed), 'v')
	fmt.Fprintln(p.w, p.paint(color, head+" "+level))
	if r.Err != nil {
		fmt.Fprintln(p.w, r.Err.Error())
	}
	if body := format(r.Result); body != "" {
		fmt.Fprintln(p.w, body)
	}
	if r.Diff != "" {
		fmt.Fprintln(p.w, r.Diff)
	}
	fmt.Fprintln(p.w, p.paint(color, banner(fmt.Sprintf("^^^^ END %s ", r.Name), '^')))
}

func format(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimRight(t, "\n")
	case fmt.Stringer:
		return t.String()
	default:
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimRight(string(b), "\n")
	}
}
