// Package postgres provides a Postgres-backed protocol store that mirrors the
// in-memory semantics, writing each aggregate as a JSONB row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"habitcore/internal/infra/persistence/memory"
	"habitcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain port.
var _ domain.ProtocolStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/habitcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists protocols to Postgres while serving reads from memory.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN), ensures the protocols table exists and hydrates the cache.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS protocols (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure protocols table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM protocols`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select protocols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Protocols: make(map[string]domain.Protocol)}
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan protocol: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var p domain.Protocol
		if err := json.Unmarshal(payload, &p); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode protocol %s: %w", id, err)
		}
		snapshot.Protocols[id] = p
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate protocols: %w", err)
	}
	return snapshot, nil
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
		`INSERT INTO protocols(id,payload,updated_at) VALUES($1,$2,$3) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		protocol.ID, string(payload), protocol.UpdatedAt.UTC()); err != nil {
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM protocols WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete protocol %s: %w", id, err)
	}
	return s.Store.Delete(ctx, id)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
