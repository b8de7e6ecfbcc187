package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/registry"
)

const sampleLog = `{"kind":"start","id":"build-1","message":"my build","time":"2025-03-14T09:30:00Z"}
{"kind":"start","id":"task-1","parent_id":"build-1","message":"compile","time":"2025-03-14T09:30:01Z"}
this line is not json
{"kind":"finish","id":"task-1","status":"success","time":"2025-03-14T09:30:02Z"}

{"kind":"finish","id":"build-1","status":"success","time":"2025-03-14T09:30:03Z"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type collectingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collectingSink) sink(_ context.Context, e event.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestRunReplaysLog(t *testing.T) {
	path := writeLog(t, sampleLog)
	src := FromPath(path)

	var c collectingSink
	require.NoError(t, src.Run(context.Background(), c.sink))

	// Malformed and blank lines are skipped, everything else is delivered
	// in order.
	require.Len(t, c.events, 4)
	assert.Equal(t, "build-1", c.events[0].ID)
	assert.Equal(t, event.KindStart, c.events[0].Kind)
	assert.Equal(t, "compile", c.events[1].Message)
	assert.Equal(t, event.KindFinish, c.events[3].Kind)
}

func TestRunMissingFile(t *testing.T) {
	src := FromPath(filepath.Join(t.TempDir(), "nope.jsonl"))
	err := src.Run(context.Background(), func(context.Context, event.Event) {})
	assert.ErrorContains(t, err, "open event log")
}

func TestRunHonorsCancellation(t *testing.T) {
	path := writeLog(t, sampleLog)
	src := FromPath(path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := src.Run(ctx, func(context.Context, event.Event) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSourceOptions(t *testing.T) {
	t.Run("path is required", func(t *testing.T) {
		_, err := NewSource(nil)
		assert.ErrorContains(t, err, `option "path" is required`)
	})

	t.Run("builds from options", func(t *testing.T) {
		src, err := NewSource(map[string]cty.Value{"path": cty.StringVal("/tmp/x.jsonl")})
		require.NoError(t, err)
		assert.Equal(t, "jsonl(/tmp/x.jsonl)", src.Name())
	})
}

func TestModuleRegisters(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	assert.Contains(t, r.Types(), "jsonl")
}
