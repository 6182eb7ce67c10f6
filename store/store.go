// ABOUTME: SQLite-backed record store with two-phase prepare/commit writes
// ABOUTME: One store per server database; Commit is the single mutation point

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// OpKind distinguishes pending upserts from pending destroys.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

// Op is a single prepared write. Ops are created by the store's Prepare*
// methods and applied atomically by Commit. A nil Op means the record was
// already in the desired state and no write is needed.
type Op struct {
	Table string
	Kind  OpKind
	run   func(ctx context.Context, tx *sql.Tx) error
}

// Batch collects pending ops for one atomic commit.
type Batch struct {
	ops []*Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Add appends ops to the batch. Nil ops (equality-dedup skips) are dropped.
func (b *Batch) Add(ops ...*Op) {
	for _, op := range ops {
		if op != nil {
			b.ops = append(b.ops, op)
		}
	}
}

// Len returns the number of pending ops.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Tables returns the distinct tables touched by the batch.
func (b *Batch) Tables() []string {
	seen := make(map[string]struct{}, len(b.ops))
	tables := make([]string, 0, len(b.ops))
	for _, op := range b.ops {
		if _, ok := seen[op.Table]; ok {
			continue
		}
		seen[op.Table] = struct{}{}
		tables = append(tables, op.Table)
	}
	return tables
}

// Change notifies observers which tables a committed batch touched.
type Change struct {
	Tables []string
}

// SQLiteStore is the per-server record store.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	observers map[string]chan Change
}

// NewSQLiteStore opens (creating if needed) the server database at path.
// Parent directories are created, WAL mode and foreign keys are enabled,
// and the schema is created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		path:      path,
		logger:    logger,
		observers: make(map[string]chan Change),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("server database opened", "path", path)
	return s, nil
}

// Commit applies all pending ops in one transaction. Either every op is
// applied or none are. Observers are notified of the touched tables only
// when the batch actually contained writes.
func (s *SQLiteStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch transaction: %w", err)
	}

	for _, op := range b.ops {
		if err := op.run(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying %s op: %w", op.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}

	s.notify(Change{Tables: b.Tables()})
	return nil
}

// Observe registers an observer for committed batches. The returned channel
// receives one Change per commit; the subscription is removed when ctx is
// cancelled. Slow observers drop changes rather than block commits.
func (s *SQLiteStore) Observe(ctx context.Context) <-chan Change {
	id := uuid.New().String()
	ch := make(chan Change, 16)

	s.mu.Lock()
	s.observers[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if existing, ok := s.observers[id]; ok {
			delete(s.observers, id)
			close(existing)
		}
		s.mu.Unlock()
	}()

	return ch
}

func (s *SQLiteStore) notify(change Change) {
	s.mu.RLock()
	targets := make([]chan Change, 0, len(s.observers))
	for _, ch := range s.observers {
		targets = append(targets, ch)
	}
	s.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- change:
		default:
			s.logger.Debug("dropped change notification for slow observer")
		}
	}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Delete closes the store and removes the database file. Used on logout.
func (s *SQLiteStore) Delete() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing database file: %w", err)
	}
	// WAL sidecar files are best-effort cleanup.
	os.Remove(s.path + "-wal")
	os.Remove(s.path + "-shm")
	return nil
}

// upsertOp builds an Op that executes the given statement.
func upsertOp(table, query string, args ...any) *Op {
	return &Op{
		Table: table,
		Kind:  OpUpsert,
		run: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		},
	}
}

// deleteOp builds a destroy Op that executes the given statement.
func deleteOp(table, query string, args ...any) *Op {
	return &Op{
		Table: table,
		Kind:  OpDelete,
		run: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		},
	}
}
