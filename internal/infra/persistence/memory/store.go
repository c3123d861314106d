// Package memory provides an in-memory implementation of the protocol store
// used for tests, ephemeral environments and as the read cache of the SQL
// backed stores.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"habitcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence port.
var _ domain.ProtocolStore = (*Store)(nil)

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Protocols map[string]domain.Protocol `json:"protocols"`
}

// Store keeps protocols in a map guarded by a RWMutex. Values are cloned on the
// way in and out so callers never share mutable state with the store.
type Store struct {
	mu        sync.RWMutex
	protocols map[string]domain.Protocol
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{protocols: make(map[string]domain.Protocol)}
}

// Load returns a copy of the protocol stored under id.
func (s *Store) Load(_ context.Context, id string) (domain.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.protocols[id]
	if !ok {
		return domain.Protocol{}, domain.NotFoundError{Entity: domain.EntityProtocol, ID: id}
	}
	return p.Clone(), nil
}

// Save replaces the whole aggregate.
func (s *Store) Save(_ context.Context, protocol domain.Protocol) error {
	if strings.TrimSpace(protocol.ID) == "" {
		return domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocols[protocol.ID] = protocol.Clone()
	return nil
}

// Delete removes the protocol stored under id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.protocols[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityProtocol, ID: id}
	}
	delete(s.protocols, id)
	return nil
}

// List returns every protocol ordered by creation time, then id.
func (s *Store) List(_ context.Context) ([]domain.Protocol, error) {
	s.mu.RLock()
	out := make([]domain.Protocol, 0, len(s.protocols))
	for _, p := range s.protocols {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()
	SortProtocols(out)
	return out, nil
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.protocols[id]
	return ok
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Protocols: make(map[string]domain.Protocol, len(s.protocols))}
	for id, p := range s.protocols {
		out.Protocols[id] = p.Clone()
	}
	return out
}

// ImportState replaces the store contents with the snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	next := make(map[string]domain.Protocol, len(snapshot.Protocols))
	for id, p := range snapshot.Protocols {
		next[id] = p.Clone()
	}
	s.mu.Lock()
	s.protocols = next
	s.mu.Unlock()
}

// IDs returns the stored ids in lexical order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.protocols))
}

// SortProtocols orders protocols by creation time, then id. Shared by the SQL stores.
func SortProtocols(protocols []domain.Protocol) {
	slices.SortFunc(protocols, func(a, b domain.Protocol) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
