package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/tfsandbox/tfsandbox/pkg/sandbox"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

var _ Journal = (*SQLiteStore)(nil)

// SQLiteStore implements Journal using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		cfg: cfg,
		now: time.Now,
	}, nil
}

// Init opens the database connection. File databases run in WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if s.cfg.Path != MemoryPath {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordChanges stores changes as one batch. It implements
// sandbox.ChangeSink; paths are stored exactly as received.
func (s *SQLiteStore) RecordChanges(ctx context.Context, workspace string, changes []sandbox.DiffChange) error {
	_, err := s.AppendBatch(ctx, workspace, changes)
	return err
}

// AppendBatch stores changes as one batch and returns it.
func (s *SQLiteStore) AppendBatch(ctx context.Context, workspace string, changes []sandbox.DiffChange) (*ChangeBatch, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	batch := &ChangeBatch{
		ID:          uuid.New().String(),
		Workspace:   workspace,
		ChangeCount: len(changes),
		CreatedAt:   s.now().UTC(),
		Entries:     make([]ChangeEntry, 0, len(changes)),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO change_batches (id, workspace, created_at, change_count) VALUES (?, ?, ?, ?)`,
		batch.ID, batch.Workspace, batch.CreatedAt, batch.ChangeCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create change batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO change_entries (batch_id, seq, path, patch) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare change entry insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range changes {
		result, err := stmt.ExecContext(ctx, batch.ID, i, ch.Path, ch.Patch)
		if err != nil {
			return nil, fmt.Errorf("failed to create change entry %d: %w", i, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get change entry ID: %w", err)
		}
		batch.Entries = append(batch.Entries, ChangeEntry{
			ID:      id,
			BatchID: batch.ID,
			Seq:     i,
			Path:    ch.Path,
			Patch:   ch.Patch,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit change batch: %w", err)
	}
	return batch, nil
}

// GetBatch retrieves a batch with its entries in request order.
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*ChangeBatch, error) {
	query := `
		SELECT id, workspace, created_at, change_count
		FROM change_batches
		WHERE id = ?
	`

	batch := &ChangeBatch{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&batch.ID,
		&batch.Workspace,
		&batch.CreatedAt,
		&batch.ChangeCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("change batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get change batch: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, seq, path, patch
		FROM change_entries
		WHERE batch_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list change entries: %w", err)
	}
	defer rows.Close()

	batch.Entries = []ChangeEntry{}
	for rows.Next() {
		var e ChangeEntry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Seq, &e.Path, &e.Patch); err != nil {
			return nil, fmt.Errorf("failed to scan change entry: %w", err)
		}
		batch.Entries = append(batch.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change entries: %w", err)
	}

	return batch, nil
}

// ListBatches lists batches newest first, optionally for one workspace.
// Entries are not loaded.
func (s *SQLiteStore) ListBatches(ctx context.Context, workspace *string, limit, offset int) ([]*ChangeBatch, error) {
	query := `
		SELECT id, workspace, created_at, change_count
		FROM change_batches
		WHERE (? IS NULL OR workspace = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, workspace, workspace, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list change batches: %w", err)
	}
	defer rows.Close()

	batches := []*ChangeBatch{}
	for rows.Next() {
		batch := &ChangeBatch{}
		err := rows.Scan(
			&batch.ID,
			&batch.Workspace,
			&batch.CreatedAt,
			&batch.ChangeCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change batch: %w", err)
		}
		batches = append(batches, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change batches: %w", err)
	}

	return batches, nil
}

// DeleteBatch deletes a batch and its entries.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM change_batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete change batch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("change batch %s: %w", id, ErrNotFound)
	}

	return nil
}

// PruneBefore deletes batches recorded before cutoff and returns how many
// were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM change_batches WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune change batches: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
