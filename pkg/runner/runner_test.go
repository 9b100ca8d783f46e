package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	skipWithoutShell(t)

	r := NewExec(zerolog.Nop())
	res := r.Run(context.Background(), Command{
		Name: "/bin/sh",
		Args: []string{"-c", "echo out; echo err 1>&2; exit 3"},
	})

	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if res.Stdout != "out\n" {
		t.Errorf("unexpected stdout %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Errorf("unexpected stderr %q", res.Stderr)
	}
	if res.Succeeded() {
		t.Error("non-zero exit must not count as success")
	}
}

func TestExecUsesWorkingDirectory(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.tf"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	r := NewExec(zerolog.Nop())
	res := r.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "ls"}, Dir: dir})
	if !res.Succeeded() {
		t.Fatalf("ls failed: %+v", res)
	}
	if !strings.Contains(res.Stdout, "marker.tf") {
		t.Errorf("expected marker.tf in listing, got %q", res.Stdout)
	}
}

func TestExecSpawnFailureIsSentinel(t *testing.T) {
	r := NewExec(zerolog.Nop())
	res := r.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-tfsandbox"})

	if !res.NotStarted() {
		t.Fatalf("expected sentinel exit code, got %d", res.ExitCode)
	}
	if res.Stderr == "" {
		t.Error("expected spawn error text in stderr")
	}
}

func TestExecTimeout(t *testing.T) {
	skipWithoutShell(t)

	r := NewExec(zerolog.Nop())
	res := r.Run(context.Background(), Command{
		Name:    "/bin/sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	if res.Succeeded() {
		t.Fatal("expected timed out command to fail")
	}
	if res.DurationMs >= 5000 {
		t.Errorf("timeout was not enforced, took %dms", res.DurationMs)
	}
}

func TestFakeDispatch(t *testing.T) {
	f := NewFake().
		Respond("terraform", "fmt", ExecResult{ExitCode: 3, Stdout: "main.tf\n"}).
		Respond("tflint", "", ExecResult{ExitCode: 2})

	ctx := context.Background()
	if got := f.Run(ctx, Command{Name: "terraform", Args: []string{"fmt", "-check"}}); got.ExitCode != 3 {
		t.Errorf("expected scripted fmt result, got %+v", got)
	}
	if got := f.Run(ctx, Command{Name: "terraform", Args: []string{"init"}}); got.ExitCode != 0 {
		t.Errorf("unscripted command should succeed, got %+v", got)
	}
	if got := f.Run(ctx, Command{Name: "tflint", Args: []string{"--format", "json"}}); got.ExitCode != 2 {
		t.Errorf("expected name-level handler, got %+v", got)
	}

	want := []string{"terraform fmt -check", "terraform init", "tflint --format json"}
	lines := f.CallLines()
	if len(lines) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestFakeMissing(t *testing.T) {
	f := NewFake().Missing("tflint")
	res := f.Run(context.Background(), Command{Name: "tflint"})
	if !res.NotStarted() {
		t.Errorf("expected not-started result, got %+v", res)
	}
}
