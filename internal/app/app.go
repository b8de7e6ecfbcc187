// Package app wires the aggregation service together: configuration,
// logging, the aggregation core, event sources and the consumer surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildtreego/internal/aggregator"
	"github.com/vk/buildtreego/internal/config"
	"github.com/vk/buildtreego/internal/ctxlog"
	"github.com/vk/buildtreego/internal/grouping"
	"github.com/vk/buildtreego/internal/history"
	"github.com/vk/buildtreego/internal/inmemorystore"
	"github.com/vk/buildtreego/internal/refresh"
	"github.com/vk/buildtreego/internal/registry"
	"github.com/vk/buildtreego/internal/srcroots"
	"github.com/vk/buildtreego/internal/watch"
)

// Config holds the CLI-level options an App instance runs with.
type Config struct {
	ConfigPath string // hcl file or directory
	ReplayPath string // jsonl event log, aggregated then printed

	Listen    string // overrides the server block's listen address
	Print     bool   // print the final tree after replay
	LogFormat string
	LogLevel  string
}

// NewConfig validates the raw CLI options.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" && cfg.ReplayPath == "" {
		return nil, errors.New("either a configuration path or a replay log is required")
	}
	return &cfg, nil
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	model  *config.Model

	store   *inmemorystore.Store
	sched   *refresh.Scheduler
	agg     *aggregator.Aggregator
	hub     *watch.Hub
	history *history.Store
	sources []registry.Source

	serve      bool
	printTree  bool
	httpServer *http.Server
}

// New is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Fatal configuration
// problems panic; main recovers and reports them as startup errors.
func New(outW io.Writer, appConfig *Config, loader *config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model := config.NewModel()
	if appConfig.ConfigPath != "" {
		loaded, err := loader.Load(ctx, appConfig.ConfigPath)
		if err != nil {
			// A failure to load config is a fatal startup error.
			panic(fmt.Errorf("failed to load configuration: %w", err))
		}
		model = loaded
	}
	if appConfig.Listen != "" {
		model.Server.Listen = appConfig.Listen
	}
	if appConfig.ReplayPath != "" {
		model.Sources = append(model.Sources, config.SourceBlock{
			Type:    "jsonl",
			Options: map[string]cty.Value{"path": cty.StringVal(appConfig.ReplayPath)},
		})
	}

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All source modules registered.", "types", reg.Types())

	sources := make([]registry.Source, 0, len(model.Sources))
	for _, block := range model.Sources {
		src, err := reg.NewSource(block)
		if err != nil {
			// Unknown source types and bad options are programmer/operator
			// errors caught at startup.
			panic(err)
		}
		sources = append(sources, src)
	}

	roots, err := srcroots.New(0)
	if err != nil {
		panic(fmt.Errorf("failed to initialize source root cache: %w", err))
	}

	store := inmemorystore.New()
	sched := refresh.New(model.Aggregator.CoalesceDelay, model.Aggregator.NoticeBuffer, func(id string) bool {
		return store.Contains(context.Background(), id)
	})
	groups := grouping.NewResolver(store, model.Aggregator.WorkingDir, roots)
	agg := aggregator.New(store, groups, sched)

	a := &App{
		outW:      outW,
		logger:    logger,
		model:     model,
		store:     store,
		sched:     sched,
		agg:       agg,
		hub:       watch.NewHub(agg),
		sources:   sources,
		serve:     appConfig.ConfigPath != "",
		printTree: appConfig.Print || appConfig.ReplayPath != "",
	}

	if model.History != nil {
		hist, err := history.Open(model.History.Path)
		if err != nil {
			panic(fmt.Errorf("failed to open build history: %w", err))
		}
		a.history = hist
		agg.SetBuildFinished(a.persistBuild)
	}

	return a
}

// Aggregator returns the aggregation core. This is primarily for testing.
func (a *App) Aggregator() *aggregator.Aggregator {
	return a.agg
}

// persistBuild is the aggregator's build-finished hook. It runs on the event
// path under the aggregator's lock, so it works from its arguments alone.
// Persistence faults degrade to logged warnings, never reaching the event
// producer.
func (a *App) persistBuild(ctx context.Context, rootID string, snap *aggregator.TreeSnapshot) {
	if rootID == "" {
		return
	}
	if err := a.history.SaveBuild(ctx, rootID, snap); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to persist finished build", "root", rootID, "error", err)
		return
	}
	ctxlog.FromContext(ctx).Info("Build recorded in history", "root", rootID, "nodes", snap.NodeCount())
}
