package patch

import (
	"fmt"
	"strings"
)

// DefaultWindow is how many lines past the cursor a misplaced line is
// searched for.
const DefaultWindow = 200

// Options tunes Apply.
type Options struct {
	// Window bounds the forward search. Zero or negative means DefaultWindow.
	Window int
}

// Option mutates Options.
type Option func(*Options)

// WithWindow overrides the forward search window.
func WithWindow(n int) Option {
	return func(o *Options) { o.Window = n }
}

// Result describes what Apply did.
type Result struct {
	Hunks                   int `json:"hunks"`
	Added                   int `json:"added"`
	Removed                 int `json:"removed"`
	ForwardRecoveries       int `json:"forwardRecoveries"`
	DeletionsAlreadyApplied int `json:"deletionsAlreadyApplied"`
}

// ContextMismatchError reports a context line that could not be located.
type ContextMismatchError struct {
	// Hunk is the zero-based hunk index.
	Hunk int
	// Line is the one-based original line where the search started.
	Line int
	// Text is the expected context line.
	Text string
}

func (e *ContextMismatchError) Error() string {
	return fmt.Sprintf("patch context mismatch in hunk %d near line %d: %q not found", e.Hunk+1, e.Line, e.Text)
}

// Apply parses patch and applies it to original.
func Apply(original, patch string, opts ...Option) (string, Result, error) {
	p, err := Parse(patch)
	if err != nil {
		return "", Result{}, err
	}
	return p.Apply(original, opts...)
}

// Apply applies the parsed hunks to original. On error the returned content
// is empty and original must be kept.
func (p *Patch) Apply(original string, opts ...Option) (string, Result, error) {
	o := Options{Window: DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}

	a := &applier{orig: strings.Split(original, "\n"), window: o.Window}
	for i, h := range p.Hunks {
		if err := a.hunk(i, h); err != nil {
			return "", a.res, err
		}
		a.res.Hunks++
	}
	a.out = append(a.out, a.orig[a.pos:]...)
	return strings.Join(a.out, "\n"), a.res, nil
}

type applier struct {
	orig   []string
	out    []string
	pos    int
	window int
	res    Result
}

func (a *applier) hunk(idx int, h Hunk) error {
	for _, l := range h.Lines {
		switch l.Kind {
		case Context:
			if a.matchHere(l.Text) {
				a.emit(a.orig[a.pos])
				a.pos++
				continue
			}
			found := a.findForward(l.Text)
			if found < 0 {
				return &ContextMismatchError{Hunk: idx, Line: a.pos + 1, Text: l.Text}
			}
			a.skipTo(found)
			a.emit(a.orig[a.pos])
			a.pos++
			a.res.ForwardRecoveries++

		case Delete:
			if a.matchHere(l.Text) {
				a.pos++
				a.res.Removed++
				continue
			}
			found := a.findForward(l.Text)
			if found < 0 {
				a.res.DeletionsAlreadyApplied++
				continue
			}
			a.skipTo(found)
			a.pos++
			a.res.Removed++
			a.res.ForwardRecoveries++

		case Insert:
			a.emit(l.Text)
			a.res.Added++

		case Blank:
			if a.pos < len(a.orig) {
				a.emit(a.orig[a.pos])
				a.pos++
			} else {
				a.emit("")
			}

		case Marker:
		}
	}
	return nil
}

func (a *applier) emit(s string) { a.out = append(a.out, s) }

// skipTo copies the original lines between the cursor and target.
func (a *applier) skipTo(target int) {
	a.out = append(a.out, a.orig[a.pos:target]...)
	a.pos = target
}

func (a *applier) matchHere(want string) bool {
	return a.pos < len(a.orig) && normalize(a.orig[a.pos]) == normalize(want)
}

func (a *applier) findForward(want string) int {
	target := normalize(want)
	end := min(len(a.orig), a.pos+a.window)
	for j := a.pos; j < end; j++ {
		if normalize(a.orig[j]) == target {
			return j
		}
	}
	return -1
}

// normalize drops carriage returns and trailing spaces and tabs.
func normalize(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "\r", ""), " \t")
}
