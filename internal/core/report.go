package core

import (
	"fmt"
	"io"
	"strings"
)

const reportWidth = 80

func banner(w io.Writer, text string, fill byte, suffix string) {
	line := text
	if pad := reportWidth - len(line) - len(suffix); pad > 0 {
		line += strings.Repeat(string(fill), pad)
	}
	fmt.Fprintln(w, line+suffix)
}

// PrintResult dumps every host result of a task: status, output, diff and error.
func PrintResult(w io.Writer, res AggregatedResult) {
	banner(w, res.Name, '*', "")
	for _, r := range res.Results {
		banner(w, fmt.Sprintf("* %s ** changed : %t ", r.Host, r.Changed), '*', "")
		level := " INFO"
		if r.Failed {
			level = " ERROR"
		}
		banner(w, fmt.Sprintf("vvvv %s ** changed : %t ", r.Name, r.Changed), 'v', level)
		switch {
		case r.Failed:
			fmt.Fprintln(w, r.Err)
		case r.Diff != "":
			fmt.Fprint(w, ensureNewline(r.Diff))
		case r.Result != "":
			fmt.Fprint(w, ensureNewline(r.Result))
		}
		banner(w, fmt.Sprintf("^^^^ END %s ", r.Name), '^', "")
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
