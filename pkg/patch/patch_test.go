package patch

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func numbered(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("l%d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		original string
		patch    string
		want     string
		wantRes  Result
	}{
		{
			name:     "no hunks leaves content unchanged",
			original: "a\nb\n",
			patch:    "--- a/main.tf\n+++ b/main.tf\n",
			want:     "a\nb\n",
		},
		{
			name:     "replace a line",
			original: "a\nx = 1\nb\n",
			patch:    "@@ -1,3 +1,3 @@\n a\n-x = 1\n+x = 2\n b\n",
			want:     "a\nx = 2\nb\n",
			wantRes:  Result{Hunks: 1, Added: 1, Removed: 1},
		},
		{
			name:     "trailing whitespace and carriage returns are ignored",
			original: "resource \"null\" \"a\" {  \r\n  n = 1\t\n}\n",
			patch:    "@@ -1,3 +1,3 @@\n resource \"null\" \"a\" {\n-  n = 1\n+  n = 2\n }\n",
			want:     "resource \"null\" \"a\" {  \r\n  n = 2\n}\n",
			wantRes:  Result{Hunks: 1, Added: 1, Removed: 1},
		},
		{
			name:     "context found five lines ahead",
			original: numbered(10),
			patch:    "@@ -1,2 +1,2 @@\n l6\n-l7\n+L7",
			want:     "l1\nl2\nl3\nl4\nl5\nl6\nL7\nl8\nl9\nl10",
			wantRes:  Result{Hunks: 1, Added: 1, Removed: 1, ForwardRecoveries: 1},
		},
		{
			name:     "deletion found ahead keeps skipped lines",
			original: numbered(4),
			patch:    "@@\n-l3",
			want:     "l1\nl2\nl4",
			wantRes:  Result{Hunks: 1, Removed: 1, ForwardRecoveries: 1},
		},
		{
			name:     "missing deletion target is tolerated",
			original: "a\nb\n",
			patch:    "@@ -1,1 +1,1 @@\n-zzz\n+c\n",
			want:     "c\na\nb\n",
			wantRes:  Result{Hunks: 1, Added: 1, DeletionsAlreadyApplied: 1},
		},
		{
			name:     "insert into empty file",
			original: "",
			patch:    "@@ -0,0 +1,2 @@\n+a\n+b",
			want:     "a\nb\n",
			wantRes:  Result{Hunks: 1, Added: 2},
		},
		{
			name:     "blank body line past the end emits an empty line",
			original: "a",
			patch:    "@@\n a\n\n+b",
			want:     "a\n\nb",
			wantRes:  Result{Hunks: 1, Added: 1},
		},
		{
			name:     "no newline marker is ignored",
			original: "a\nb",
			patch:    "@@ -1,2 +1,2 @@\n a\n-b\n\\ No newline at end of file\n+c\n\\ No newline at end of file",
			want:     "a\nc",
			wantRes:  Result{Hunks: 1, Added: 1, Removed: 1},
		},
		{
			name:     "two hunks",
			original: numbered(10),
			patch: "diff --git a/m.tf b/m.tf\n--- a/m.tf\n+++ b/m.tf\n" +
				"@@ -1,2 +1,2 @@\n l1\n-l2\n+L2\n" +
				"@@ -8,2 +8,2 @@\n l8\n-l9\n+L9",
			want:    "l1\nL2\nl3\nl4\nl5\nl6\nl7\nl8\nL9\nl10",
			wantRes: Result{Hunks: 2, Added: 2, Removed: 2, ForwardRecoveries: 1},
		},
		{
			name:     "garbage outside hunks is skipped",
			original: "a\n",
			patch:    "Some explanation\nindex 123..456\n@@ -1 +1 @@\n-a\n+b\n",
			want:     "b\n",
			wantRes:  Result{Hunks: 1, Added: 1, Removed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res, err := Apply(tt.original, tt.patch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("content mismatch\nwant: %q\ngot:  %q", tt.want, got)
			}
			if res != tt.wantRes {
				t.Errorf("result mismatch: want %+v, got %+v", tt.wantRes, res)
			}
		})
	}
}

func TestApplyContextMismatch(t *testing.T) {
	original := "a\nb\nc\n"
	_, _, err := Apply(original, "@@ -1,2 +1,2 @@\n a\n nowhere\n+x\n")

	var mismatch *ContextMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ContextMismatchError, got %v", err)
	}
	if mismatch.Hunk != 0 || mismatch.Line != 2 || mismatch.Text != "nowhere" {
		t.Errorf("unexpected mismatch details: %+v", mismatch)
	}
}

func TestApplyWindow(t *testing.T) {
	patch := "@@\n l6\n+x"

	if _, _, err := Apply(numbered(10), patch, WithWindow(3)); err == nil {
		t.Fatal("expected mismatch when target lies beyond the window")
	}
	if _, _, err := Apply(numbered(10), patch, WithWindow(6)); err != nil {
		t.Fatalf("expected match within window, got %v", err)
	}
	// Zero falls back to the default window.
	if _, _, err := Apply(numbered(10), patch, WithWindow(0)); err != nil {
		t.Fatalf("expected match with default window, got %v", err)
	}
}

func TestApplyTwiceRepeatsInsertions(t *testing.T) {
	patch := "@@ -1,2 +1,2 @@\n-x = 1\n+x = 2\n y = 3\n"
	once, _, err := Apply("x = 1\ny = 3\n", patch)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	twice, res, err := Apply(once, patch)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	// The deletion is already applied, so only the insertion repeats.
	if res.DeletionsAlreadyApplied != 1 {
		t.Errorf("expected tolerated deletion, got %+v", res)
	}
	if twice != "x = 2\nx = 2\ny = 3\n" {
		t.Errorf("unexpected content %q", twice)
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("diff --git a/net/main.tf b/net/main.tf\n" +
		"--- a/net/main.tf\t2024-01-01\n" +
		"+++ b/net/main.tf\t2024-01-02\n" +
		"@@ -3,4 +3,5 @@ resource \"x\" \"y\" {\n a\n-b\n+c\n+d\n" +
		"@@ -x,y +1 @@\n e\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if got := p.TargetPath(); got != "net/main.tf" {
		t.Errorf("expected target net/main.tf, got %q", got)
	}
	if len(p.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(p.Hunks))
	}

	h := p.Hunks[0]
	if h.OldStart != 3 || h.OldLines != 4 || h.NewStart != 3 || h.NewLines != 5 {
		t.Errorf("unexpected ranges: %+v", h)
	}
	if h.Section != `resource "x" "y" {` {
		t.Errorf("unexpected section %q", h.Section)
	}
	if len(h.Lines) != 4 || h.Lines[1].Kind != Delete || h.Lines[2].Text != "c" {
		t.Errorf("unexpected lines: %+v", h.Lines)
	}

	if bad := p.Hunks[1]; bad.OldStart != 0 || bad.NewStart != 0 {
		t.Errorf("malformed header should parse as zero ranges: %+v", bad)
	}
	if p.Added() != 2 || p.Removed() != 1 {
		t.Errorf("expected +2 -1, got +%d -%d", p.Added(), p.Removed())
	}
}

func TestTargetPath(t *testing.T) {
	tests := []struct {
		patch string
		want  string
	}{
		{patch: "+++ b/a.tf\n", want: "a.tf"},
		{patch: "--- a/old.tf\n+++ /dev/null\n", want: "old.tf"},
		{patch: "diff --git a/x/y.tf b/x/y.tf\n", want: "x/y.tf"},
		{patch: "+++ plain.tf\n", want: "plain.tf"},
		{patch: "@@\n+x\n", want: ""},
	}
	for _, tt := range tests {
		p, err := Parse(tt.patch)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.patch, err)
		}
		if got := p.TargetPath(); got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.patch, tt.want, got)
		}
	}
}

func TestParseBinary(t *testing.T) {
	_, err := Parse("diff --git a/x.bin b/x.bin\nGIT binary patch\nliteral 4\n")
	if !errors.Is(err, ErrBinaryPatch) {
		t.Errorf("expected ErrBinaryPatch, got %v", err)
	}
}

func TestSplitFiles(t *testing.T) {
	gitDiff := strings.Join([]string{
		"diff --git a/main.tf b/main.tf",
		"index 1111111..2222222 100644",
		"--- a/main.tf",
		"+++ b/main.tf",
		"@@ -1 +1 @@",
		"-x = 1",
		"+x = 2",
		"diff --git a/vars.tf b/vars.tf",
		"--- a/vars.tf",
		"+++ b/vars.tf",
		"@@ -1 +1 @@",
		"-y = 1",
		"+y = 2",
		"",
	}, "\n")

	plain := strings.Join([]string{
		"--- a/one.tf",
		"+++ b/one.tf",
		"@@",
		"+a",
		"--- a/two.tf",
		"+++ b/two.tf",
		"@@",
		"+b",
	}, "\n")

	tests := []struct {
		name    string
		text    string
		targets []string
	}{
		{name: "git diff", text: gitDiff, targets: []string{"main.tf", "vars.tf"}},
		{name: "plain headers", text: plain, targets: []string{"one.tf", "two.tf"}},
		{name: "single file", text: "--- a/x.tf\n+++ b/x.tf\n@@\n+x\n", targets: []string{"x.tf"}},
		{name: "headerless", text: "@@\n+x", targets: []string{""}},
		{name: "empty", text: "\n", targets: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := SplitFiles(tt.text)
			if len(parts) != len(tt.targets) {
				t.Fatalf("expected %d parts, got %d: %q", len(tt.targets), len(parts), parts)
			}
			for i, part := range parts {
				p, err := Parse(part)
				if err != nil {
					t.Fatalf("part %d: %v", i, err)
				}
				if got := p.TargetPath(); got != tt.targets[i] {
					t.Errorf("part %d: expected target %q, got %q", i, tt.targets[i], got)
				}
				if len(p.Hunks) != 1 {
					t.Errorf("part %d: expected 1 hunk, got %d", i, len(p.Hunks))
				}
			}
		})
	}
}

func ExampleApply() {
	out, res, err := Apply("a = 1\nb = 2\n", "@@ -1,2 +1,2 @@\n a = 1\n-b = 2\n+b = 3\n")
	if err != nil {
		panic(err)
	}
	fmt.Printf("%q +%d -%d\n", out, res.Added, res.Removed)
	// Output: "a = 1\nb = 3\n" +1 -1
}
