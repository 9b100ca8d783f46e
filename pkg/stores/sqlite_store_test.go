package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tfsandbox/tfsandbox/pkg/sandbox"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fixedClock returns a clock advancing one second per call.
func fixedClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"change_batches", "change_entries"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	batch, err := store.AppendBatch(ctx, "ws", []sandbox.DiffChange{{Path: "a.tf", Patch: "@@"}})
	if err != nil {
		t.Fatalf("failed to append batch: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate reopened store: %v", err)
	}

	got, err := reopened.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("batch not persisted: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Path != "a.tf" {
		t.Errorf("unexpected entries: %+v", got.Entries)
	}
}

func TestRecordChangesKeepsRequestOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	changes := []sandbox.DiffChange{
		{Path: "./b.tf", Patch: "@@\n+b"},
		{Path: "a.tf", Patch: "@@\n+a"},
		{Path: "b.tf", Patch: "@@\n+c"},
	}
	if err := store.RecordChanges(ctx, "team-a", changes); err != nil {
		t.Fatalf("failed to record changes: %v", err)
	}

	batches, err := store.ListBatches(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if batches[0].Workspace != "team-a" || batches[0].ChangeCount != 3 {
		t.Errorf("unexpected batch: %+v", batches[0])
	}
	if batches[0].Entries != nil {
		t.Error("ListBatches should not load entries")
	}

	batch, err := store.GetBatch(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if len(batch.Entries) != len(changes) {
		t.Fatalf("expected %d entries, got %d", len(changes), len(batch.Entries))
	}
	for i, e := range batch.Entries {
		if e.Seq != i || e.Path != changes[i].Path || e.Patch != changes[i].Patch {
			t.Errorf("entry %d: expected %+v, got %+v", i, changes[i], e)
		}
		if e.BatchID != batch.ID {
			t.Errorf("entry %d has batch %s, expected %s", i, e.BatchID, batch.ID)
		}
	}
}

func TestRecordEmptyChangeList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	batch, err := store.AppendBatch(ctx, "ws", nil)
	if err != nil {
		t.Fatalf("failed to append empty batch: %v", err)
	}
	got, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if got.ChangeCount != 0 || got.Entries == nil || len(got.Entries) != 0 {
		t.Errorf("unexpected batch: %+v", got)
	}
}

func TestListBatches(t *testing.T) {
	store := setupTestStore(t)
	store.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var ids []string
	for _, ws := range []string{"a", "b", "a", "a"} {
		batch, err := store.AppendBatch(ctx, ws, []sandbox.DiffChange{{Path: "main.tf", Patch: "@@"}})
		if err != nil {
			t.Fatalf("failed to append batch: %v", err)
		}
		ids = append(ids, batch.ID)
	}

	tests := []struct {
		name      string
		workspace *string
		limit     int
		offset    int
		want      []string
	}{
		{name: "all newest first", limit: 10, want: []string{ids[3], ids[2], ids[1], ids[0]}},
		{name: "one workspace", workspace: strPtr("a"), limit: 10, want: []string{ids[3], ids[2], ids[0]}},
		{name: "paged", workspace: strPtr("a"), limit: 1, offset: 1, want: []string{ids[2]}},
		{name: "unknown workspace", workspace: strPtr("zzz"), limit: 10, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, err := store.ListBatches(ctx, tt.workspace, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("failed to list batches: %v", err)
			}
			if len(batches) != len(tt.want) {
				t.Fatalf("expected %d batches, got %d", len(tt.want), len(batches))
			}
			for i, b := range batches {
				if b.ID != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], b.ID)
				}
			}
		})
	}
}

func TestDeleteBatchCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	batch, err := store.AppendBatch(ctx, "ws", []sandbox.DiffChange{
		{Path: "a.tf", Patch: "@@"},
		{Path: "b.tf", Patch: "@@"},
	})
	if err != nil {
		t.Fatalf("failed to append batch: %v", err)
	}

	if err := store.DeleteBatch(ctx, batch.ID); err != nil {
		t.Fatalf("failed to delete batch: %v", err)
	}
	if _, err := store.GetBatch(ctx, batch.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	var entries int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM change_entries").Scan(&entries); err != nil {
		t.Fatalf("failed to count entries: %v", err)
	}
	if entries != 0 {
		t.Errorf("expected entries to cascade, %d left", entries)
	}

	if err := store.DeleteBatch(ctx, batch.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPruneBefore(t *testing.T) {
	store := setupTestStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = fixedClock(start)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.AppendBatch(ctx, "ws", nil); err != nil {
			t.Fatalf("failed to append batch: %v", err)
		}
	}

	removed, err := store.PruneBefore(ctx, start.Add(2*time.Second))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 pruned, got %d", removed)
	}

	left, err := store.ListBatches(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}
	if len(left) != 1 {
		t.Errorf("expected 1 batch left, got %d", len(left))
	}
}

func TestStoreAsChangeSink(t *testing.T) {
	store := setupTestStore(t)
	var sink sandbox.ChangeSink = store

	if err := sink.RecordChanges(context.Background(), "ws", []sandbox.DiffChange{{Path: "a.tf", Patch: "@@"}}); err != nil {
		t.Fatalf("RecordChanges failed: %v", err)
	}
	batches, _ := store.ListBatches(context.Background(), strPtr("ws"), 10, 0)
	if len(batches) != 1 {
		t.Errorf("expected one batch, got %d", len(batches))
	}
}

func TestRecordChangesBeforeInit(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.RecordChanges(context.Background(), "ws", nil); err == nil {
		t.Error("expected error before Init")
	}
}

func strPtr(s string) *string { return &s }
