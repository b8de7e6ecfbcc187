// Package aggregator routes build events into the execution tree.
//
// The aggregator is the write side of the system: it classifies each
// incoming event, resolves or creates the node (and, for diagnostics, the
// synthesized grouping chain) behind it, applies the mutation, and schedules
// a coalesced refresh. It never raises to its caller; every fault degrades
// to a logged warning and best-effort tree state.
package aggregator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/vk/buildtreego/internal/ctxlog"
	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/grouping"
	"github.com/vk/buildtreego/internal/node"
	"github.com/vk/buildtreego/internal/nodestore"
	"github.com/vk/buildtreego/internal/refresh"
)

// BuildFinishedFunc is invoked synchronously when the build root reaches a
// terminal state, with the root identifier and the final tree snapshot.
// Used for history persistence; must not block for long since it runs on
// the event path. The hook runs while the aggregator holds its routing
// lock, so it must work from its arguments only and never call back into
// the aggregator.
type BuildFinishedFunc func(ctx context.Context, rootID string, snap *TreeSnapshot)

// Aggregator consumes the ordered build event stream and maintains the tree.
type Aggregator struct {
	store  nodestore.Store
	groups *grouping.Resolver
	sched  *refresh.Scheduler

	onBuildFinished BuildFinishedFunc

	disposed atomic.Bool

	// mu serializes event routing against Reset. Event delivery is an
	// ordered stream, but the producer goroutine and control-plane calls
	// may interleave.
	mu     sync.Mutex
	rootID string
}

// New wires an aggregator over the given store, grouping resolver and
// refresh scheduler.
func New(store nodestore.Store, groups *grouping.Resolver, sched *refresh.Scheduler) *Aggregator {
	return &Aggregator{store: store, groups: groups, sched: sched}
}

// SetBuildFinished installs the build-finished hook. Call before events flow.
func (a *Aggregator) SetBuildFinished(fn BuildFinishedFunc) {
	a.onBuildFinished = fn
}

// RootID returns the build root identifier, or "" before the first root
// start event.
func (a *Aggregator) RootID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rootID
}

// OnEvent routes one event into the tree. It has no error return by
// contract: duplicate starts, unknown parents and malformed payloads are
// absorbed and logged.
func (a *Aggregator) OnEvent(ctx context.Context, e event.Event) {
	if a.disposed.Load() {
		return
	}
	logger := ctxlog.FromContext(ctx)
	if err := e.Validate(); err != nil {
		logger.Warn("malformed event dropped", "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	parent, _ := a.store.Get(ctx, e.ParentID)

	var current *node.Node
	switch e.Kind {
	case event.KindStart, event.KindMessage:
		if a.store.Contains(ctx, e.ID) {
			// Re-arrival of a known identifier for these kinds is a
			// protocol violation by the producer.
			logger.Warn("event id collision, event dropped", "kind", e.Kind.String(), "id", e.ID)
			return
		}
		if e.Kind == event.KindMessage {
			if e.Message == "" {
				logger.Debug("message event without text skipped", "id", e.ID)
				return
			}
			parent = a.groups.ResolveParents(ctx, e, parent)
		}

		parentID := ""
		if parent != nil {
			parentID = parent.ID()
		} else if e.ParentID != "" {
			logger.Warn("unknown parent identifier, node attached at root level", "id", e.ID, "parent", e.ParentID)
		}

		current, _ = a.store.GetOrCreate(ctx, e.ID, func() *node.Node {
			return node.New(e.ID, parentID)
		})

		switch e.Kind {
		case event.KindStart:
			current.MarkRunning()
			if e.ParentID == "" && a.rootID == "" {
				a.rootID = e.ID
				current.SetTitle(e.Message)
			}
		case event.KindMessage:
			current.SetTimes(e.Time, e.Time)
			current.SetFile(e.Msg.File)
			current.MergeSeverity(e.Msg.Severity)
		}

	default: // KindProgress, KindFinish
		var ok bool
		current, ok = a.store.Get(ctx, e.ID)
		if !ok {
			if e.Kind != event.KindProgress {
				logger.Warn("finish event for unknown node dropped", "id", e.ID)
				return
			}
			// Progress for an identifier nobody started: synthesize the
			// node lazily.
			parentID := ""
			if parent != nil {
				parentID = parent.ID()
			}
			current, _ = a.store.GetOrCreate(ctx, e.ID, func() *node.Node {
				return node.New(e.ID, parentID)
			})
		}
		if e.Kind == event.KindProgress {
			current.MarkRunning()
		}
	}

	if e.Message != "" {
		current.SetName(e.Message)
	}
	if e.Hint != "" {
		current.SetHint(e.Hint)
	}
	current.StartIfUnset(e.Time)

	if e.Kind != event.KindFinish {
		a.sched.Schedule(ctx, e.ID)
		return
	}

	isRoot := a.rootID != "" && e.ID == a.rootID
	if isRoot {
		current.SetHint(rootFinishHint(e.Hint, e.Time))
	}
	current.Finish(node.StateFromStatus(e.Finish.Status), e.Finish.Failures, e.Time)

	if isRoot && e.Finish.Status == event.StatusFailure {
		a.appendResultRow(ctx, current, e)
	}

	// Terminal state must be visible without delay.
	a.sched.Immediate(ctx, e.ID)

	if isRoot && a.onBuildFinished != nil {
		a.onBuildFinished(ctx, a.rootID, a.snapshotLocked(ctx))
	}
}

// Snapshot returns an immutable copy of the current tree.
func (a *Aggregator) Snapshot(ctx context.Context) *TreeSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(ctx)
}

// Reset clears the tree: the store is emptied, the root forgotten and all
// pending refreshes cancelled. A start event arriving afterwards opens a
// fresh timeline.
func (a *Aggregator) Reset(ctx context.Context) {
	a.mu.Lock()
	a.store.Clear(ctx)
	a.rootID = ""
	a.mu.Unlock()
	a.sched.Reset()
}

// Dispose turns the aggregator inert: further events are ignored and the
// scheduler is disposed.
func (a *Aggregator) Dispose() {
	a.disposed.Store(true)
	a.sched.Dispose()
}

// appendResultRow mirrors the root under itself after a failed build, so a
// consumer rendering with a hidden root still shows one line carrying the
// overall result.
func (a *Aggregator) appendResultRow(ctx context.Context, root *node.Node, e event.Event) {
	key := e.ID + "::result"
	row, created := a.store.GetOrCreate(ctx, key, func() *node.Node {
		return node.New(key, root.ID())
	})
	if !created {
		return
	}
	row.SetName(titleCase(root.Name()))
	row.SetHint(root.Hint())
	row.SetTimes(root.StartTime(), e.Time)
	row.Finish(node.StateFromStatus(e.Finish.Status), e.Finish.Failures, e.Time)
	a.sched.Schedule(ctx, key)
}

func rootFinishHint(hint string, at time.Time) string {
	stamp := "at " + at.Format("2006-01-02 15:04:05")
	if hint == "" {
		return stamp
	}
	return hint + "  " + stamp
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return strings.TrimSpace(string(runes))
}
