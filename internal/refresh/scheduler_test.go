package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Notice, want int) []Notice {
	t.Helper()
	out := make([]Notice, 0, want)
	deadline := time.After(time.Second)
	for len(out) < want {
		select {
		case n := <-ch:
			out = append(out, n)
		case <-deadline:
			t.Fatalf("timed out waiting for %d notices, got %d", want, len(out))
		}
	}
	return out
}

func TestCoalescing(t *testing.T) {
	ctx := context.Background()
	s := New(5*time.Millisecond, 16, nil)
	defer s.Dispose()

	// A burst of requests for one node collapses to a single notice.
	for i := 0; i < 10; i++ {
		s.Schedule(ctx, "task-1")
	}
	assert.Equal(t, 1, s.PendingCount())

	got := collect(t, s.Notices(), 1)
	assert.Equal(t, Notice{NodeID: "task-1"}, got[0])
	assert.Equal(t, 0, s.PendingCount())

	// The channel stays quiet afterwards.
	select {
	case n := <-s.Notices():
		t.Fatalf("unexpected extra notice %+v", n)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDistinctNodesFireSeparately(t *testing.T) {
	ctx := context.Background()
	s := New(5*time.Millisecond, 16, nil)
	defer s.Dispose()

	s.Schedule(ctx, "a")
	s.Schedule(ctx, "b")
	assert.Equal(t, 2, s.PendingCount())

	got := collect(t, s.Notices(), 2)
	ids := map[string]bool{got[0].NodeID: true, got[1].NodeID: true}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
}

func TestImmediateBypassesWindow(t *testing.T) {
	ctx := context.Background()
	s := New(time.Hour, 16, nil)
	defer s.Dispose()

	// A pending deferred request is absorbed by the synchronous refresh.
	s.Schedule(ctx, "task-1")
	s.Immediate(ctx, "task-1")

	got := collect(t, s.Notices(), 1)
	assert.Equal(t, Notice{NodeID: "task-1", Terminal: true}, got[0])
	assert.Equal(t, 0, s.PendingCount())
}

func TestResolverGatesFiredTimers(t *testing.T) {
	ctx := context.Background()
	live := true
	s := New(5*time.Millisecond, 16, func(string) bool { return live })
	defer s.Dispose()

	live = false
	s.Schedule(ctx, "cleared")
	time.Sleep(30 * time.Millisecond)

	select {
	case n := <-s.Notices():
		t.Fatalf("notice for a cleared node: %+v", n)
	default:
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := New(time.Hour, 16, nil)
	defer s.Dispose()

	s.Schedule(ctx, "a")
	s.Schedule(ctx, "b")
	require.Equal(t, 2, s.PendingCount())

	s.Reset()
	assert.Equal(t, 0, s.PendingCount())

	// Reset does not turn the scheduler off.
	s.Immediate(ctx, "c")
	got := collect(t, s.Notices(), 1)
	assert.Equal(t, "c", got[0].NodeID)
}

func TestDispose(t *testing.T) {
	ctx := context.Background()
	s := New(time.Millisecond, 16, nil)

	s.Dispose()
	s.Schedule(ctx, "a")
	s.Immediate(ctx, "b")
	assert.Equal(t, 0, s.PendingCount())

	select {
	case n := <-s.Notices():
		t.Fatalf("disposed scheduler emitted %+v", n)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	ctx := context.Background()
	s := New(time.Hour, 1, nil)
	defer s.Dispose()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Immediate(ctx, "a")
		s.Immediate(ctx, "b") // buffer full, must not block
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full buffer")
	}

	got := collect(t, s.Notices(), 1)
	assert.Equal(t, "a", got[0].NodeID)
}
