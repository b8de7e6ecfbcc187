// Package testutil provides shared helpers for exercising the aggregation
// pipeline in tests.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/buildtreego/internal/aggregator"
	"github.com/vk/buildtreego/internal/ctxlog"
	"github.com/vk/buildtreego/internal/grouping"
	"github.com/vk/buildtreego/internal/inmemorystore"
	"github.com/vk/buildtreego/internal/refresh"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness bundles a fully wired aggregation pipeline with a captured log.
type Harness struct {
	Ctx   context.Context
	Store *inmemorystore.Store
	Sched *refresh.Scheduler
	Agg   *aggregator.Aggregator
	Log   *SafeBuffer
}

// staticRoots is a SourceRoots stub with a fixed root set.
type staticRoots struct {
	roots []string
}

func (s staticRoots) Lookup(filePath string) (string, bool) {
	for _, r := range s.roots {
		if len(filePath) > len(r) && filePath[:len(r)] == r {
			return r, true
		}
	}
	return "", false
}

// Option tweaks harness construction.
type Option func(*options)

type options struct {
	workingDir string
	roots      []string
	delay      time.Duration
	buffer     int
}

// WithWorkingDir sets the grouping resolver's working directory.
func WithWorkingDir(dir string) Option {
	return func(o *options) { o.workingDir = dir }
}

// WithSourceRoots sets the static source root prefixes.
func WithSourceRoots(roots ...string) Option {
	return func(o *options) { o.roots = roots }
}

// WithCoalesceDelay overrides the scheduler delay.
func WithCoalesceDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// WithNoticeBuffer overrides the scheduler notice channel size.
func WithNoticeBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

// NewHarness wires a store, grouping resolver, scheduler and aggregator with
// a debug logger writing into Harness.Log.
func NewHarness(opts ...Option) *Harness {
	o := &options{
		workingDir: "/work",
		delay:      5 * time.Millisecond,
		buffer:     256,
	}
	for _, opt := range opts {
		opt(o)
	}

	logBuf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	store := inmemorystore.New()
	sched := refresh.New(o.delay, o.buffer, func(id string) bool {
		return store.Contains(context.Background(), id)
	})
	groups := grouping.NewResolver(store, o.workingDir, staticRoots{roots: o.roots})

	return &Harness{
		Ctx:   ctx,
		Store: store,
		Sched: sched,
		Agg:   aggregator.New(store, groups, sched),
		Log:   logBuf,
	}
}

// DrainNotices collects scheduler notices until the channel stays quiet for
// the given window. It never blocks longer than one second total.
func (h *Harness) DrainNotices(quiet time.Duration) []refresh.Notice {
	var out []refresh.Notice
	deadline := time.After(time.Second)
	for {
		select {
		case n := <-h.Sched.Notices():
			out = append(out, n)
		case <-time.After(quiet):
			return out
		case <-deadline:
			return out
		}
	}
}
