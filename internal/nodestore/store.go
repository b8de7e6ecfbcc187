// Package nodestore defines the interface for the arena that owns every
// execution node of the build tree.
//
// # Why Node Store Exists
//
// The store separates node ownership from event routing: the router and the
// grouping resolver only ever ask for "the node behind this key, creating it
// if needed", and the store guarantees there is exactly one node per distinct
// key no matter how events interleave.
//
// Keys are either a build event's own identifier or a derived grouping
// identifier (see internal/grouping). The store holds the owning reference;
// tree edges are child identifier lists resolved back through the store, so
// nodes never point at each other directly.
//
// # Concurrency
//
// Event delivery happens on a producer goroutine while snapshots are read by
// consumer goroutines, so implementations MUST support concurrent
// insert/lookup with atomic get-or-create semantics: the check for an
// existing node and the registration of a new one are a single step.
package nodestore

import (
	"context"

	"github.com/vk/buildtreego/internal/node"
)

// Factory constructs the node for a key on first reference.
type Factory func() *node.Node

// Store owns the execution nodes of one build tree.
type Store interface {
	// GetOrCreate returns the node registered under key, constructing and
	// registering it via factory when absent. A newly created node is
	// attached to its parent's ordered child list when the parent key
	// resolves; otherwise it becomes root-level. The returned flag reports
	// whether this call created the node.
	//
	// Lookup-then-create is atomic: two concurrent calls for the same key
	// yield the same node and exactly one true flag.
	GetOrCreate(ctx context.Context, key string, factory Factory) (*node.Node, bool)

	// Get returns the node registered under key, if any.
	Get(ctx context.Context, key string) (*node.Node, bool)

	// Contains reports whether a node is registered under key.
	Contains(ctx context.Context, key string) bool

	// Roots returns the root-level nodes in creation order: the build root
	// plus any orphans whose parent identifier never resolved.
	Roots(ctx context.Context) []*node.Node

	// Len returns the number of registered nodes.
	Len(ctx context.Context) int

	// Clear drops every node. Keys registered before the clear become
	// unresolvable, which retires any still-pending refresh for them.
	Clear(ctx context.Context)
}
