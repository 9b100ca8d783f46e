package patch

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrBinaryPatch is returned for git binary patches, which carry no text hunks.
var ErrBinaryPatch = errors.New("binary patches are not supported")

// LineKind classifies a hunk body line.
type LineKind int

const (
	// Context lines start with a space and must be present in the original.
	Context LineKind = iota
	// Delete lines start with '-' and remove a line of the original.
	Delete
	// Insert lines start with '+' and are emitted verbatim.
	Insert
	// Blank is an empty body line, treated as blank context.
	Blank
	// Marker lines start with '\', e.g. "\ No newline at end of file".
	Marker
)

func (k LineKind) String() string {
	switch k {
	case Context:
		return "context"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	case Blank:
		return "blank"
	case Marker:
		return "marker"
	default:
		return "unknown"
	}
}

// Line is a single hunk body line with its prefix removed.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is one "@@" section. The ranges are informational; application relies
// on content matching only. Malformed numbers parse as zero.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Section  string
	Lines    []Line
}

// Patch is the parsed form of a patch text for one file.
type Patch struct {
	OldName string
	NewName string
	Header  string
	Hunks   []Hunk
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@ ?(.*)$`)

// Parse splits patch into headers and hunks. A hunk body ends at the next
// line starting with "@@", "--- ", "+++ " or "diff ". Lines outside hunks
// other than headers are ignored.
func Parse(patch string) (*Patch, error) {
	p := &Patch{}
	lines := strings.Split(patch, "\n")

	for i := 0; i < len(lines); {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "@@"):
			h := parseHunkHeader(line)
			i++
			for i < len(lines) && !endsHunk(lines[i]) {
				if l, ok := classify(lines[i]); ok {
					h.Lines = append(h.Lines, l)
				}
				i++
			}
			p.Hunks = append(p.Hunks, h)
		case strings.HasPrefix(line, "GIT binary patch"), strings.HasPrefix(line, "Binary files "):
			return nil, ErrBinaryPatch
		case strings.HasPrefix(line, "--- "):
			p.OldName = headerName(line[4:])
			i++
		case strings.HasPrefix(line, "+++ "):
			p.NewName = headerName(line[4:])
			i++
		case strings.HasPrefix(line, "diff "):
			p.Header = line
			i++
		default:
			i++
		}
	}
	return p, nil
}

// TargetPath returns the file the patch writes to, without the "a/" or "b/"
// prefix. It is empty when the patch carries no usable header.
func (p *Patch) TargetPath() string {
	for _, name := range []string{p.NewName, p.OldName} {
		if name == "" || name == "/dev/null" {
			continue
		}
		return stripSide(name)
	}
	if fields := strings.Fields(p.Header); len(fields) >= 4 && fields[1] == "--git" {
		return stripSide(fields[3])
	}
	return ""
}

// Added returns the number of insert lines across all hunks.
func (p *Patch) Added() int { return p.count(Insert) }

// Removed returns the number of delete lines across all hunks.
func (p *Patch) Removed() int { return p.count(Delete) }

func (p *Patch) count(kind LineKind) int {
	n := 0
	for _, h := range p.Hunks {
		for _, l := range h.Lines {
			if l.Kind == kind {
				n++
			}
		}
	}
	return n
}

func endsHunk(line string) bool {
	return strings.HasPrefix(line, "@@") ||
		strings.HasPrefix(line, "--- ") ||
		strings.HasPrefix(line, "+++ ") ||
		strings.HasPrefix(line, "diff ")
}

func classify(line string) (Line, bool) {
	if line == "" {
		return Line{Kind: Blank}, true
	}
	switch line[0] {
	case ' ':
		return Line{Kind: Context, Text: line[1:]}, true
	case '-':
		return Line{Kind: Delete, Text: line[1:]}, true
	case '+':
		return Line{Kind: Insert, Text: line[1:]}, true
	case '\\':
		return Line{Kind: Marker, Text: line[1:]}, true
	}
	return Line{}, false
}

func parseHunkHeader(line string) Hunk {
	m := hunkHeader.FindStringSubmatch(line)
	if m == nil {
		return Hunk{}
	}
	atoi := func(s string, def int) int {
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	return Hunk{
		OldStart: atoi(m[1], 0),
		OldLines: atoi(m[2], 1),
		NewStart: atoi(m[3], 0),
		NewLines: atoi(m[4], 1),
		Section:  m[5],
	}
}

// headerName drops the optional tab-separated timestamp of a file header.
func headerName(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func stripSide(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// SplitFiles splits a multi-file patch, such as git diff output, into one
// text per file. A file starts at a "diff " line, or at a "--- " line when
// the current file already has one. Text before the first header stays with
// the first file.
func SplitFiles(text string) []string {
	var (
		out     []string
		cur     []string
		hasDiff bool
		hasOld  bool
	)
	flush := func() {
		if chunk := strings.Join(cur, "\n"); strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "diff "):
			if hasDiff || hasOld {
				flush()
			}
			hasDiff, hasOld = true, false
		case strings.HasPrefix(line, "--- "):
			if hasOld {
				flush()
				hasDiff = false
			}
			hasOld = true
		}
		cur = append(cur, line)
	}
	flush()
	return out
}
