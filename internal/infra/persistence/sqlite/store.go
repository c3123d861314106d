// Package sqlite persists protocols to an embedded SQLite database, one JSON
// row per aggregate, while serving reads from an in-memory cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"habitcore/internal/infra/persistence/memory"
	"habitcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.ProtocolStore = (*Store)(nil)

const defaultPath = "habitcore.db"

// Store writes every Save and Delete through to SQLite before updating the
// cache, so a failed write leaves the previously persisted aggregate visible.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the cache.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS protocols (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create protocols table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM protocols`)
	if err != nil {
		return fmt.Errorf("select protocols: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Protocols: make(map[string]domain.Protocol)}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var p domain.Protocol
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode protocol %s: %w", id, err)
		}
		snapshot.Protocols[id] = p
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate protocols: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// Save upserts the aggregate row, then refreshes the cache.
func (s *Store) Save(ctx context.Context, protocol domain.Protocol) error {
	if protocol.ID == "" {
		return domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	payload, err := json.Marshal(protocol)
	if err != nil {
		return fmt.Errorf("encode protocol %s: %w", protocol.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO protocols(id,payload,updated_at) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		protocol.ID, payload, protocol.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert protocol %s: %w", protocol.ID, err)
	}
	return s.Store.Save(ctx, protocol)
}

// Delete removes the aggregate row, then evicts it from the cache.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Has(id) {
		return domain.NotFoundError{Entity: domain.EntityProtocol, ID: id}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM protocols WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete protocol %s: %w", id, err)
	}
	return s.Store.Delete(ctx, id)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
