package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthHandler reports liveness and logs requests at debug level.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// treeHandler serves the current tree snapshot as JSON.
func (a *App) treeHandler(w http.ResponseWriter, r *http.Request) {
	snap := a.agg.Snapshot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		a.logger.Warn("failed to write tree snapshot", "error", err)
	}
}

// startServer initializes and runs the consumer-facing HTTP server.
func (a *App) startServer() {
	a.logger.Debug("Configuring consumer server.")
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/tree", a.treeHandler)
	mux.Handle("/watch", a.hub)

	a.httpServer = &http.Server{
		Addr:    a.model.Server.Listen,
		Handler: mux,
	}

	go func() {
		a.logger.Info("🩺 Consumer server starting", "address", fmt.Sprintf("http://localhost%s/health", a.model.Server.Listen))
		// ListenAndServe returns ErrServerClosed on graceful shutdown. We
		// check for it to avoid logging a false positive.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Consumer server failed unexpectedly", "error", err)
		}
	}()
}

// closeServer shuts the consumer server down gracefully.
func (a *App) closeServer(ctx context.Context) {
	if a.httpServer == nil {
		return
	}
	a.logger.Debug("Closing consumer server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Consumer server shutdown failed", "error", err)
		return
	}
	a.logger.Debug("Consumer server shut down gracefully.")
}
