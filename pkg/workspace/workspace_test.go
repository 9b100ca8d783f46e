package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// newStores returns one instance of each backend.
func newStores(t *testing.T) map[string]Store {
	t.Helper()

	dir, err := NewDirStore(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatalf("failed to create dir store: %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(t.TempDir()),
		"dir":    dir,
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "main.tf", want: "main.tf"},
		{in: "./modules/net/main.tf", want: "modules/net/main.tf"},
		{in: "modules/../variables.tf", want: "variables.tf"},
		{in: "..tf", want: "..tf"},
		{in: "", wantErr: ErrInvalidPath},
		{in: ".", wantErr: ErrInvalidPath},
		{in: "a\\b.tf", wantErr: ErrInvalidPath},
		{in: "../outside.tf", wantErr: ErrPathEscapesRoot},
		{in: "modules/../../outside.tf", wantErr: ErrPathEscapesRoot},
		{in: "..", wantErr: ErrPathEscapesRoot},
		{in: "/etc/passwd", wantErr: ErrPathEscapesRoot},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v (path %q)", tt.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, FileEntry{Path: "m.tf", Content: "C"}); err != nil {
				t.Fatalf("write failed: %v", err)
			}

			files, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(files) != 1 || files[0].Path != "m.tf" || files[0].Content != "C" {
				t.Errorf("unexpected files: %+v", files)
			}
		})
	}
}

func TestStoreListSortedAndNested(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Write(ctx,
				FileEntry{Path: "variables.tf", Content: "v"},
				FileEntry{Path: "modules/vpc/main.tf", Content: "m"},
				FileEntry{Path: "main.tf", Content: "a"},
			)
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}

			files, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			want := []string{"main.tf", "modules/vpc/main.tf", "variables.tf"}
			if len(files) != len(want) {
				t.Fatalf("expected %d files, got %+v", len(want), files)
			}
			for i, p := range want {
				if files[i].Path != p {
					t.Errorf("entry %d: expected %s, got %s", i, p, files[i].Path)
				}
			}

			content, err := s.Read(ctx, "modules/vpc/main.tf")
			if err != nil || content != "m" {
				t.Errorf("read nested: got %q, %v", content, err)
			}
		})
	}
}

func TestStoreConfinement(t *testing.T) {
	ctx := context.Background()
	bad := []string{"../escape.tf", "a/../../escape.tf", "/abs/escape.tf"}

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range bad {
				if err := s.Write(ctx, FileEntry{Path: p, Content: "x"}); !errors.Is(err, ErrPathEscapesRoot) {
					t.Errorf("write %q: expected ErrPathEscapesRoot, got %v", p, err)
				}
				if _, err := s.Read(ctx, p); !errors.Is(err, ErrPathEscapesRoot) {
					t.Errorf("read %q: expected ErrPathEscapesRoot, got %v", p, err)
				}
			}

			// A batch containing one bad path writes nothing.
			err := s.Write(ctx,
				FileEntry{Path: "ok.tf", Content: "x"},
				FileEntry{Path: "../bad.tf", Content: "x"},
			)
			if !errors.Is(err, ErrPathEscapesRoot) {
				t.Fatalf("expected batch rejection, got %v", err)
			}
			files, _ := s.List(ctx)
			if len(files) != 0 {
				t.Errorf("rejected batch must not write anything, got %+v", files)
			}
		})
	}
}

func TestStoreReadMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read(ctx, "missing.tf"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreReset(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, FileEntry{Path: "a/b.tf", Content: "x"}); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if err := s.Reset(ctx); err != nil {
				t.Fatalf("reset failed: %v", err)
			}
			files, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(files) != 0 {
				t.Errorf("expected empty store after reset, got %+v", files)
			}
		})
	}
}

func TestLoadStub(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			stub, err := LoadStub(ctx, s)
			if err != nil {
				t.Fatalf("load stub failed: %v", err)
			}
			if stub.Path != StubPath {
				t.Errorf("expected %s, got %s", StubPath, stub.Path)
			}
			content, err := s.Read(ctx, StubPath)
			if err != nil {
				t.Fatalf("read stub failed: %v", err)
			}
			if content != StubContent {
				t.Errorf("stored stub differs: %q", content)
			}
		})
	}
}

func TestMemoryMaterializeIsFreshEachCall(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(t.TempDir())
	if err := s.Write(ctx, FileEntry{Path: "nested/main.tf", Content: "x = 1\n"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	dir1, cleanup1, err := s.Materialize(ctx)
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	dir2, cleanup2, err := s.Materialize(ctx)
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	defer cleanup2()

	if dir1 == dir2 {
		t.Error("expected a fresh directory per call")
	}
	data, err := os.ReadFile(filepath.Join(dir1, "nested", "main.tf"))
	if err != nil || string(data) != "x = 1\n" {
		t.Errorf("materialized content mismatch: %q, %v", data, err)
	}

	cleanup1()
	if _, err := os.Stat(dir1); !os.IsNotExist(err) {
		t.Errorf("cleanup should remove %s", dir1)
	}
}

func TestDirMaterializeInPlace(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	dir, cleanup, err := s.Materialize(ctx)
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	cleanup()
	if dir != s.Root() {
		t.Errorf("expected in-place materialization at %s, got %s", s.Root(), dir)
	}
}

func TestDirListSkipsPluginCache(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Write(ctx, FileEntry{Path: "main.tf", Content: "x"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(s.Root(), ".terraform", "providers"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), ".terraform", "providers", "bin"), []byte("elf"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "main.tf" {
		t.Errorf("expected only main.tf, got %+v", files)
	}
}

func TestStoresListIdentically(t *testing.T) {
	ctx := context.Background()
	files := []FileEntry{
		{Path: "main.tf", Content: "M"},
		{Path: ".terraform.lock.hcl", Content: "L"},
		{Path: "modules/net/.terraform.lock.hcl", Content: "N"},
		{Path: ".tflint.hcl", Content: "T"},
		{Path: ".terraform/modules/modules.json", Content: "{}"},
	}
	want := []FileEntry{
		{Path: ".terraform.lock.hcl", Content: "L"},
		{Path: ".tflint.hcl", Content: "T"},
		{Path: "main.tf", Content: "M"},
		{Path: "modules/net/.terraform.lock.hcl", Content: "N"},
	}

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, files...); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			got, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if !slices.Equal(got, want) {
				t.Errorf("expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestDirSymlinkEscapeRejected(t *testing.T) {
	ctx := context.Background()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.tf"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := s.Read(ctx, "link/secret.tf"); !errors.Is(err, ErrPathEscapesRoot) {
		t.Errorf("expected ErrPathEscapesRoot through symlink, got %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Close(); err != nil {
				t.Fatalf("close failed: %v", err)
			}
			if _, err := s.List(ctx); !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		})
	}
}
