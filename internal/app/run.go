package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/buildtreego/internal/ctxlog"
	"github.com/vk/buildtreego/internal/registry"
	"github.com/vk/buildtreego/internal/render"
)

// Run executes the main application logic: it starts the consumer server,
// pumps refresh notices to watchers, and drives every configured event
// source until the context is cancelled or all sources finish.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.serve {
		a.startServer()
	}

	// Pump coalesced refresh notices out to websocket watchers. The pump has
	// its own cancellation so replay runs can stop it once the sources drain.
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	pumpDone := make(chan struct{})
	go a.pumpNotices(pumpCtx, pumpDone)

	if len(a.sources) == 0 {
		a.logger.Warn("No event sources configured, nothing to aggregate.")
	} else {
		a.logger.Info("🚀 Starting event sources...", "count", len(a.sources))
	}

	var wg sync.WaitGroup
	for _, src := range a.sources {
		wg.Add(1)
		go func(src registry.Source) {
			defer wg.Done()
			a.runSource(ctx, src)
		}(src)
	}

	sourcesDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(sourcesDone)
	}()

	select {
	case <-ctx.Done():
	case <-sourcesDone:
		a.logger.Info("🏁 All event sources finished.")
		if a.serve {
			// Finite sources are done but watchers may still be attached.
			<-ctx.Done()
		}
	}

	a.shutdown(ctx)
	stopPump()
	<-pumpDone

	if a.printTree {
		fmt.Fprint(a.outW, render.Tree(a.agg.Snapshot(ctx)))
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// runSource drives a single event source, feeding its events into the
// aggregator. A failing source is logged and does not take the app down.
func (a *App) runSource(ctx context.Context, src registry.Source) {
	logger := ctxlog.FromContext(ctx).With("source", src.Name())
	logger.Debug("Event source starting.")
	if err := src.Run(ctx, a.agg.OnEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event source failed", "error", err)
		return
	}
	logger.Debug("Event source finished.")
}

// pumpNotices forwards scheduler notices to the watch hub until the context
// is cancelled.
func (a *App) pumpNotices(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-a.sched.Notices():
			a.hub.BroadcastRefresh(ctx, n.NodeID, n.Terminal)
		}
	}
}

// shutdown tears the app down in dependency order.
func (a *App) shutdown(ctx context.Context) {
	a.closeServer(ctx)
	a.agg.Dispose()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("failed to close build history", "error", err)
		}
	}
}
