// Package refresh coalesces bursts of node mutations into batched refresh
// notices for consumers.
//
// Every mutation schedules a deferred refresh request keyed by node
// identity. Duplicate requests for the same node inside the coalescing
// window are merged; after the delay exactly one notice is emitted and the
// request is retired. Terminal (finish) refreshes bypass the window and are
// emitted synchronously, so final state is visible without delay.
//
// Delivery is a buffered channel and sends never block: the producer thread
// must not stall on a slow consumer, and a dropped intermediate notice is
// harmless because consumers read whole-tree snapshots.
package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/buildtreego/internal/ctxlog"
)

// DefaultDelay is the coalescing window applied when the config does not
// override it.
const DefaultDelay = 100 * time.Millisecond

// Notice tells a consumer that a node changed and a redraw is due.
type Notice struct {
	NodeID string
	// Terminal marks a synchronous finish refresh.
	Terminal bool
}

// Resolver reports whether a node identity is still live. Fired timers for
// nodes that were cleared in the meantime become no-ops through it.
type Resolver func(id string) bool

// Scheduler coalesces refresh requests per node identity.
type Scheduler struct {
	delay   time.Duration
	resolve Resolver
	out     chan Notice

	disposed atomic.Bool

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a scheduler with the given coalescing window and notice buffer
// size. A delay of zero falls back to DefaultDelay.
func New(delay time.Duration, buffer int, resolve Resolver) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if buffer <= 0 {
		buffer = 64
	}
	if resolve == nil {
		resolve = func(string) bool { return true }
	}
	return &Scheduler{
		delay:   delay,
		resolve: resolve,
		out:     make(chan Notice, buffer),
		pending: make(map[string]*time.Timer),
	}
}

// Notices returns the consumer-facing notification channel.
func (s *Scheduler) Notices() <-chan Notice {
	return s.out
}

// Schedule requests a deferred refresh for the node. A request already
// pending for the same node absorbs the new one.
func (s *Scheduler) Schedule(ctx context.Context, id string) {
	if s.disposed.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return
	}
	s.pending[id] = time.AfterFunc(s.delay, func() {
		s.fire(ctx, id)
	})
}

// fire retires the pending request and emits the notice, unless the node was
// cleared or the scheduler disposed while the timer ran.
func (s *Scheduler) fire(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()

	if s.disposed.Load() || !s.resolve(id) {
		return
	}
	s.emit(ctx, Notice{NodeID: id})
}

// Immediate emits a synchronous refresh for the node and retires any pending
// deferred request so the finish is not followed by a stale redraw.
func (s *Scheduler) Immediate(ctx context.Context, id string) {
	s.mu.Lock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if s.disposed.Load() {
		return
	}
	s.emit(ctx, Notice{NodeID: id, Terminal: true})
}

// Reset cancels every pending request. Timers that already fired see their
// node gone through the resolver and do nothing.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

// Dispose turns the scheduler inert: pending requests are cancelled and
// later Schedule/Immediate calls become no-ops. The notice channel is left
// open; readers drain and observe silence.
func (s *Scheduler) Dispose() {
	s.disposed.Store(true)
	s.Reset()
}

// PendingCount returns the number of outstanding coalesced requests.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) emit(ctx context.Context, n Notice) {
	select {
	case s.out <- n:
	default:
		ctxlog.FromContext(ctx).Debug("refresh notice dropped, consumer behind", "node", n.NodeID, "terminal", n.Terminal)
	}
}
