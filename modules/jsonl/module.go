// Package jsonl replays a recorded build event log, one JSON event per line.
//
// Replay is the offline path: aggregate a captured log, then render or
// persist the resulting tree. Malformed lines are skipped with a warning so
// a truncated capture still replays as far as it goes.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildtreego/internal/ctxlog"
	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the source factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("jsonl", NewSource)
}

// Source replays events from a JSONL file.
type Source struct {
	path string
}

// NewSource builds the source from its config block options.
func NewSource(opts map[string]cty.Value) (registry.Source, error) {
	path, err := registry.RequireString(opts, "path")
	if err != nil {
		return nil, err
	}
	return &Source{path: path}, nil
}

// FromPath builds a replay source directly, used by the CLI -replay flag.
func FromPath(path string) *Source {
	return &Source{path: path}
}

// Name implements registry.Source.
func (s *Source) Name() string { return "jsonl(" + s.path + ")" }

// Run implements registry.Source. It returns nil once the log is exhausted.
func (s *Source) Run(ctx context.Context, sink registry.Sink) error {
	logger := ctxlog.FromContext(ctx).With("source", "jsonl", "path", s.path)
	logger.Debug("Replay starting")

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	delivered := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.Warn("Malformed event line skipped", "line", line, "error", err)
			continue
		}
		sink(ctx, e)
		delivered++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event log: %w", err)
	}

	logger.Info("Replay finished", "events", delivered, "lines", line)
	return nil
}
