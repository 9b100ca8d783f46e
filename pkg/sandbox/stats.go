package sandbox

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineStats diffs before and after line by line.
func lineStats(before, after string) LineStats {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var st LineStats
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			st.Added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			st.Removed += countLines(d.Text)
		}
	}
	return st
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
