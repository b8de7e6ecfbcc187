// Package inmemorystore provides the ephemeral, thread-safe arena
// implementation of nodestore.Store.
//
// One store instance backs one build tree. All nodes live in a single map
// guarded by an RWMutex rather than a sync.Map: get-or-create is a compound
// check-then-insert that also appends to the parent's child list, and those
// two mutations have to be one atomic step for sibling order to be
// deterministic.
package inmemorystore

import (
	"context"
	"sync"

	"github.com/vk/buildtreego/internal/node"
	"github.com/vk/buildtreego/internal/nodestore"
)

// Store is the in-memory nodestore.Store implementation.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node.Node
	roots []string
}

// New creates an empty store.
func New() *Store {
	return &Store{nodes: make(map[string]*node.Node)}
}

var _ nodestore.Store = (*Store)(nil)

// GetOrCreate implements nodestore.Store.
func (s *Store) GetOrCreate(_ context.Context, key string, factory nodestore.Factory) (*node.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[key]; ok {
		return existing, false
	}

	created := factory()
	s.nodes[key] = created

	if parent, ok := s.nodes[created.ParentID()]; ok && created.ParentID() != "" {
		parent.AppendChild(key)
	} else {
		// Unknown parent identifiers are never fatal: the node surfaces as a
		// root-level orphan.
		s.roots = append(s.roots, key)
	}
	return created, true
}

// Get implements nodestore.Store.
func (s *Store) Get(_ context.Context, key string) (*node.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[key]
	return n, ok
}

// Contains implements nodestore.Store.
func (s *Store) Contains(_ context.Context, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[key]
	return ok
}

// Roots implements nodestore.Store.
func (s *Store) Roots(_ context.Context) []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*node.Node, 0, len(s.roots))
	for _, key := range s.roots {
		if n, ok := s.nodes[key]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Len implements nodestore.Store.
func (s *Store) Len(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Clear implements nodestore.Store.
func (s *Store) Clear(_ context.Context) {
	s.mu.Lock()
	s.nodes = make(map[string]*node.Node)
	s.roots = nil
	s.mu.Unlock()
}
