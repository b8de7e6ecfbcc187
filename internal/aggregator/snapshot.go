package aggregator

import (
	"context"
	"time"

	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/node"
)

// NodeSnapshot is the immutable consumer view of one execution node.
type NodeSnapshot struct {
	ID       string              `json:"id"`
	ParentID string              `json:"parent_id,omitempty"`
	Name     string              `json:"name"`
	Hint     string              `json:"hint,omitempty"`
	Title    string              `json:"title,omitempty"`
	State    string              `json:"state"`
	Severity string              `json:"severity,omitempty"`
	Errors   int                 `json:"errors,omitempty"`
	Warnings int                 `json:"warnings,omitempty"`
	Start    time.Time           `json:"start,omitzero"`
	End      time.Time           `json:"end,omitzero"`
	Duration string              `json:"duration,omitempty"`
	File     *event.FilePosition `json:"file,omitempty"`
	Failures []event.Failure     `json:"failures,omitempty"`
	Children []*NodeSnapshot     `json:"children,omitempty"`
}

// TreeSnapshot is a point-in-time copy of the whole tree: the build root
// plus any root-level orphans, in creation order.
type TreeSnapshot struct {
	Taken time.Time       `json:"taken"`
	Roots []*NodeSnapshot `json:"roots"`
}

// NodeCount returns the number of nodes in the snapshot.
func (t *TreeSnapshot) NodeCount() int {
	count := 0
	var walk func(*NodeSnapshot)
	walk = func(n *NodeSnapshot) {
		count++
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range t.Roots {
		walk(r)
	}
	return count
}

// Find returns the snapshot node with the given identifier, or nil.
func (t *TreeSnapshot) Find(id string) *NodeSnapshot {
	var found *NodeSnapshot
	var walk func(*NodeSnapshot)
	walk = func(n *NodeSnapshot) {
		if found != nil {
			return
		}
		if n.ID == id {
			found = n
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range t.Roots {
		walk(r)
	}
	return found
}

// SnapshotNode returns the consumer view of a single node and its subtree,
// or nil when the identifier does not resolve.
func (a *Aggregator) SnapshotNode(ctx context.Context, id string) *NodeSnapshot {
	n, ok := a.store.Get(ctx, id)
	if !ok {
		return nil
	}
	return a.snapshotSubtree(ctx, n, make(map[string]bool))
}

func (a *Aggregator) snapshotLocked(ctx context.Context) *TreeSnapshot {
	snap := &TreeSnapshot{Taken: time.Now()}
	seen := make(map[string]bool)
	for _, root := range a.store.Roots(ctx) {
		snap.Roots = append(snap.Roots, a.snapshotSubtree(ctx, root, seen))
	}
	return snap
}

func (a *Aggregator) snapshotSubtree(ctx context.Context, n *node.Node, seen map[string]bool) *NodeSnapshot {
	if seen[n.ID()] {
		return nil
	}
	seen[n.ID()] = true

	errs, warns := n.Counts()
	out := &NodeSnapshot{
		ID:       n.ID(),
		ParentID: n.ParentID(),
		Name:     n.Name(),
		Hint:     n.Hint(),
		Title:    n.Title(),
		State:    n.State().String(),
		Errors:   errs,
		Warnings: warns,
		Start:    n.StartTime(),
		End:      n.EndTime(),
		Duration: n.Duration(),
		File:     n.File(),
		Failures: n.Failures(),
	}
	if sev, ok := n.Severity(); ok {
		out.Severity = sev.String()
	}
	for _, childID := range n.Children() {
		child, ok := a.store.Get(ctx, childID)
		if !ok {
			continue
		}
		if cs := a.snapshotSubtree(ctx, child, seen); cs != nil {
			out.Children = append(out.Children, cs)
		}
	}
	return out
}
