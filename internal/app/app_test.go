package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildtreego/internal/config"
	"github.com/vk/buildtreego/internal/testutil"
)

const replayLog = `{"kind":"start","id":"build-1","message":"my build","time":"2025-03-14T09:30:00Z"}
{"kind":"start","id":"task-1","parent_id":"build-1","message":"compile","time":"2025-03-14T09:30:01Z"}
{"kind":"message","id":"m1","parent_id":"task-1","message":"unused variable x","severity":"warning","group":"compiler","time":"2025-03-14T09:30:02Z"}
{"kind":"finish","id":"task-1","status":"success","time":"2025-03-14T09:30:03Z"}
{"kind":"finish","id":"build-1","status":"success","time":"2025-03-14T09:30:04Z"}
`

func writeReplayLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(replayLog), 0o644))
	return path
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.ErrorContains(t, err, "configuration path or a replay log")

	cfg, err := NewConfig(Config{ReplayPath: "events.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, "events.jsonl", cfg.ReplayPath)
}

func TestReplayRun(t *testing.T) {
	out := &testutil.SafeBuffer{}
	appConfig, err := NewConfig(Config{
		ReplayPath: writeReplayLog(t),
		Print:      true,
		LogLevel:   "error",
		LogFormat:  "text",
	})
	require.NoError(t, err)

	a := New(out, appConfig, config.NewLoader())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	// The replay drained and the final tree was printed.
	printed := out.String()
	assert.Contains(t, printed, "my build")
	assert.Contains(t, printed, "compile")
	assert.Contains(t, printed, "unused variable x")

	snap := a.Aggregator().Snapshot(context.Background())
	root := snap.Find("build-1")
	require.NotNil(t, root)
	assert.Equal(t, "success", root.State)
	assert.Equal(t, 1, root.Warnings)
}

func TestReplayRunWithHistory(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "service.hcl")
	dbPath := filepath.Join(dir, "builds.db")
	// No source block: the replay flag injects the jsonl source.
	require.NoError(t, os.WriteFile(configPath, []byte(`
history {
  path = "`+filepath.ToSlash(dbPath)+`"
}
`), 0o644))

	out := &testutil.SafeBuffer{}
	appConfig, err := NewConfig(Config{
		ConfigPath: configPath,
		ReplayPath: writeReplayLog(t),
		Listen:     "127.0.0.1:0",
		LogLevel:   "error",
		LogFormat:  "text",
	})
	require.NoError(t, err)

	a := New(out, appConfig, config.NewLoader())

	// A config path keeps the server running after the replay drains, so
	// drive the run through cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Aggregator().RootID() == "build-1"
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		builds, err := a.history.RecentBuilds(context.Background(), 1)
		return err == nil && len(builds) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestStartupPanicsOnBadConfig(t *testing.T) {
	out := &testutil.SafeBuffer{}
	appConfig, err := NewConfig(Config{ConfigPath: "/does/not/exist", LogLevel: "error"})
	require.NoError(t, err)

	assert.Panics(t, func() {
		New(out, appConfig, config.NewLoader())
	})
}

func TestStartupPanicsOnUnknownSourceType(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "service.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(`source "carrier-pigeon" {}`), 0o644))

	out := &testutil.SafeBuffer{}
	appConfig, err := NewConfig(Config{ConfigPath: configPath, LogLevel: "error"})
	require.NoError(t, err)

	assert.Panics(t, func() {
		New(out, appConfig, config.NewLoader())
	})
}
