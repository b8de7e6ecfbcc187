package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildtreego/internal/aggregator"
)

func sampleSnapshot() *aggregator.TreeSnapshot {
	start := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	end := start.Add(5 * time.Second)
	return &aggregator.TreeSnapshot{
		Taken: end,
		Roots: []*aggregator.NodeSnapshot{
			{
				ID:       "build-1",
				Name:     "my build",
				Title:    "my build",
				State:    "failure",
				Errors:   1,
				Warnings: 2,
				Start:    start,
				End:      end,
				Children: []*aggregator.NodeSnapshot{
					{
						ID:       "task-1",
						ParentID: "build-1",
						Name:     "compile",
						State:    "failure",
						Severity: "error",
						Start:    start,
						End:      end,
					},
				},
			},
		},
	}
}

func TestSaveAndReadBack(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "history", "builds.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	require.NoError(t, s.SaveBuild(ctx, "build-1", sampleSnapshot()))

	builds, err := s.RecentBuilds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, "build-1", builds[0].RootID)
	assert.Equal(t, "my build", builds[0].Title)
	assert.Equal(t, "failure", builds[0].State)
	assert.Equal(t, 1, builds[0].Errors)
	assert.Equal(t, 2, builds[0].Warnings)

	nodes, err := s.Nodes(ctx, builds[0].ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "build-1", nodes[0].NodeID)
	assert.Equal(t, "task-1", nodes[1].NodeID)
	assert.Equal(t, "build-1", nodes[1].ParentID)
	assert.Equal(t, "error", nodes[1].Severity)
}

func TestSaveBuildMissingRoot(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "builds.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	err = s.SaveBuild(ctx, "ghost", sampleSnapshot())
	assert.ErrorContains(t, err, "not in snapshot")
}

func TestRecentBuildsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "builds.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveBuild(ctx, "build-1", sampleSnapshot()))
	}

	builds, err := s.RecentBuilds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Greater(t, builds[0].ID, builds[1].ID)
}
