// Package node defines ExecutionNode, a single entry in the build tree:
// the build root, a task, a diagnostic message, or a synthesized grouping.
package node

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/buildtreego/internal/event"
)

// State is the lifecycle state of a node. Transitions are
// Pending → Running → (Success | Failure | Skipped); terminal states are
// final and the only mutation accepted afterwards is appending failure
// details.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateSuccess
	StateFailure
	StateSkipped
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s >= StateSuccess
}

// String returns a stable lowercase name for the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	case StateSkipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// StateFromStatus maps a finish event status to the matching terminal state.
func StateFromStatus(st event.Status) State {
	switch st {
	case event.StatusFailure:
		return StateFailure
	case event.StatusSkipped:
		return StateSkipped
	default:
		return StateSuccess
	}
}

// Node is one vertex of the build tree. Nodes are owned by the store arena;
// tree edges are child identifier lists, never pointers, so the tree carries
// no cyclic ownership.
//
// State is managed atomically; the rest of the mutable fields sit behind a
// single RWMutex. Events mutate nodes on the producer goroutine while
// snapshots are read from consumer goroutines.
type Node struct {
	id       string
	parentID string

	// state is managed atomically so hot-path checks skip the mutex.
	state atomic.Int32

	mu          sync.RWMutex
	name        string
	hint        string
	title       string
	start       time.Time
	end         time.Time
	failures    []event.Failure
	severity    event.Severity
	hasSeverity bool
	errCount    int
	warnCount   int
	file        *event.FilePosition
	children    []string
}

// New creates a node owned by the given parent identifier. An empty parentID
// makes the node root-level.
func New(id, parentID string) *Node {
	return &Node{id: id, parentID: parentID}
}

// ID returns the node's store key.
func (n *Node) ID() string { return n.id }

// ParentID returns the owning parent's store key, or "" for root-level nodes.
func (n *Node) ParentID() string { return n.parentID }

// State atomically retrieves the node's lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// MarkRunning moves a pending node to running. Any other state is left
// untouched.
func (n *Node) MarkRunning() {
	n.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}

// Finish moves the node to a terminal state, recording the end time and any
// failure details. If the node is already terminal only the failure details
// are appended; the reported state and timing stay as they were. It returns
// true when the transition happened.
func (n *Node) Finish(s State, failures []event.Failure, end time.Time) bool {
	if !s.Terminal() {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if State(n.state.Load()).Terminal() {
		n.failures = append(n.failures, failures...)
		return false
	}
	n.state.Store(int32(s))
	n.end = end
	n.failures = append(n.failures, failures...)
	return true
}

// AppendFailures attaches additional failure details. This is the one
// mutation allowed on terminal nodes.
func (n *Node) AppendFailures(failures ...event.Failure) {
	n.mu.Lock()
	n.failures = append(n.failures, failures...)
	n.mu.Unlock()
}

// Failures returns a copy of the recorded failure details.
func (n *Node) Failures() []event.Failure {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.failures) == 0 {
		return nil
	}
	out := make([]event.Failure, len(n.failures))
	copy(out, n.failures)
	return out
}

// SetName updates the display name. Terminal nodes reject the change.
func (n *Node) SetName(name string) {
	if n.State().Terminal() {
		return
	}
	n.mu.Lock()
	n.name = name
	n.mu.Unlock()
}

// Name returns the display name.
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// SetHint updates the hint text. Terminal nodes reject the change.
func (n *Node) SetHint(hint string) {
	if n.State().Terminal() {
		return
	}
	n.mu.Lock()
	n.hint = hint
	n.mu.Unlock()
}

// Hint returns the hint text.
func (n *Node) Hint() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hint
}

// SetTitle records the build title shown on the root node.
func (n *Node) SetTitle(title string) {
	if n.State().Terminal() {
		return
	}
	n.mu.Lock()
	n.title = title
	n.mu.Unlock()
}

// Title returns the recorded title.
func (n *Node) Title() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.title
}

// StartIfUnset records the start timestamp the first time it is called;
// later calls keep the original timeline.
func (n *Node) StartIfUnset(t time.Time) {
	n.mu.Lock()
	if n.start.IsZero() {
		n.start = t
	}
	n.mu.Unlock()
}

// SetTimes pins both timestamps, used for message and grouping nodes whose
// lifetime is the instant of their event.
func (n *Node) SetTimes(start, end time.Time) {
	n.mu.Lock()
	n.start = start
	n.end = end
	n.mu.Unlock()
}

// StartTime returns the recorded start timestamp.
func (n *Node) StartTime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.start
}

// EndTime returns the recorded end timestamp.
func (n *Node) EndTime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.end
}

// Duration renders the elapsed time between start and end, or since start for
// nodes that have not finished. Empty before the first event arrives.
func (n *Node) Duration() string {
	n.mu.RLock()
	start, end := n.start, n.end
	n.mu.RUnlock()

	if start.IsZero() {
		return ""
	}
	if end.IsZero() {
		return "running"
	}
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Millisecond).String()
}

// MergeSeverity applies a max-severity merge: the stored severity changes
// only when the incoming one is strictly worse. Returns true on change.
func (n *Node) MergeSeverity(s event.Severity) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hasSeverity && !s.WorseThan(n.severity) {
		return false
	}
	n.severity = s
	n.hasSeverity = true
	return true
}

// Severity returns the worst severity recorded on this node and whether one
// was recorded at all.
func (n *Node) Severity() (event.Severity, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.severity, n.hasSeverity
}

// ReportChildSeverity bumps the error/warning counters that summarize the
// node's subtree. Info messages are not counted.
func (n *Node) ReportChildSeverity(s event.Severity) {
	n.mu.Lock()
	switch s {
	case event.SeverityError:
		n.errCount++
	case event.SeverityWarning:
		n.warnCount++
	}
	n.mu.Unlock()
}

// Counts returns the subtree error and warning counters.
func (n *Node) Counts() (errors, warnings int) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.errCount, n.warnCount
}

// SetFile records the navigable source position of a diagnostic node.
func (n *Node) SetFile(f *event.FilePosition) {
	n.mu.Lock()
	n.file = f
	n.mu.Unlock()
}

// File returns the navigable source position, if any.
func (n *Node) File() *event.FilePosition {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.file
}

// AppendChild adds a child identifier. Called by the store while it holds the
// arena lock, so sibling order is the order of node creation.
func (n *Node) AppendChild(id string) {
	n.mu.Lock()
	n.children = append(n.children, id)
	n.mu.Unlock()
}

// Children returns a copy of the ordered child identifier list.
func (n *Node) Children() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.children) == 0 {
		return nil
	}
	out := make([]string, len(n.children))
	copy(out, n.children)
	return out
}
