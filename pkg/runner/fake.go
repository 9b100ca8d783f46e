package runner

import (
	"context"
	"fmt"
	"sync"
)

// FakeHandler scripts the behavior of one fake command. It may inspect or
// mutate files under cmd.Dir, which is how formatter runs are simulated.
type FakeHandler func(ctx context.Context, cmd Command) ExecResult

// Fake is an in-process Runner for tests. Handlers are keyed by the
// executable name plus its first argument ("terraform fmt"), falling back to
// the bare executable name. Unscripted commands succeed with empty output.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]FakeHandler
	calls    []Command
}

// NewFake creates a fake runner with no handlers.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]FakeHandler)}
}

// Handle registers a handler for name, or for name+subcommand when a
// subcommand is given.
func (f *Fake) Handle(name, subcommand string, h FakeHandler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[fakeKey(name, subcommand)] = h
	return f
}

// Respond registers a handler that always returns res.
func (f *Fake) Respond(name, subcommand string, res ExecResult) *Fake {
	return f.Handle(name, subcommand, func(context.Context, Command) ExecResult {
		return res
	})
}

// Missing makes every invocation of name fail as if the binary was absent.
func (f *Fake) Missing(name string) *Fake {
	return f.Handle(name, "", func(context.Context, Command) ExecResult {
		return NotStartedResult(fmt.Errorf("exec: %q: executable file not found in $PATH", name))
	})
}

// Run dispatches to the scripted handler.
func (f *Fake) Run(ctx context.Context, cmd Command) ExecResult {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	h, ok := f.handlers[fakeKey(cmd.Name, firstArg(cmd.Args))]
	if !ok {
		h, ok = f.handlers[fakeKey(cmd.Name, "")]
	}
	f.mu.Unlock()

	if !ok {
		return ExecResult{}
	}
	return h(ctx, cmd)
}

// Calls returns every command run so far, in order.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallLines returns Calls rendered as command lines.
func (f *Fake) CallLines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func fakeKey(name, subcommand string) string {
	if subcommand == "" {
		return name
	}
	return name + " " + subcommand
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
