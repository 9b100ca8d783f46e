package stores

import (
	"context"
	"errors"
	"time"

	"github.com/tfsandbox/tfsandbox/pkg/sandbox"
)

// ErrNotFound is returned when a batch does not exist.
var ErrNotFound = errors.New("not found")

// ChangeBatch is the journal record of one apply_diff call.
type ChangeBatch struct {
	ID          string        `json:"id"`
	Workspace   string        `json:"workspace"`
	ChangeCount int           `json:"change_count"`
	CreatedAt   time.Time     `json:"created_at"`
	Entries     []ChangeEntry `json:"entries,omitempty"`
}

// ChangeEntry is one change of a batch, as received.
type ChangeEntry struct {
	ID      int64  `json:"id"`
	BatchID string `json:"batch_id"`
	Seq     int    `json:"seq"`
	Path    string `json:"path"`
	Patch   string `json:"patch"`
}

// Journal defines the persistence interface for change batches.
type Journal interface {
	sandbox.ChangeSink

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Batch operations
	GetBatch(ctx context.Context, id string) (*ChangeBatch, error)
	ListBatches(ctx context.Context, workspace *string, limit, offset int) ([]*ChangeBatch, error)
	DeleteBatch(ctx context.Context, id string) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
