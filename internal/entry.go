// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/starford/wikistore/internal/api"
	"github.com/starford/wikistore/internal/indexer"
	"github.com/starford/wikistore/internal/mcpserver"
	"github.com/starford/wikistore/internal/pageservice"
	"github.com/starford/wikistore/internal/sse"
	"github.com/starford/wikistore/internal/wikidata"
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// OpenWiki opens the wiki described by cfg, creating the data directory
// when the wiki is writable.
func OpenWiki(ctx context.Context, cfg WikiConfig, logger *slog.Logger, opts ...wikidata.Option) (*wikidata.WikiData, error) {
	if !cfg.ReadOnly {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	base := []wikidata.Option{wikidata.WithLogger(logger)}
	if cfg.Collation != "" {
		tag, err := language.Parse(cfg.Collation)
		if err != nil {
			return nil, fmt.Errorf("wiki collation: %w", err)
		}
		base = append(base, wikidata.WithCollation(tag))
	}
	opts = append(base, opts...)
	wd, err := wikidata.Open(ctx, cfg.Wikidata(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open wiki: %w", err)
	}
	return wd, nil
}

// publishTo forwards store change events to the SSE broker.
func publishTo(broker *sse.Broker) func(wikidata.Event) {
	return func(ev wikidata.Event) {
		switch ev.Kind {
		case wikidata.EventBlockStored, wikidata.EventBlockDeleted:
			broker.PublishBlock(string(ev.Kind), ev.Name)
		case wikidata.EventGraphUpdated:
			broker.PublishLinks(ev.Word)
		default:
			broker.PublishPage(string(ev.Kind), ev.Word, ev.OldWord)
		}
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Wiki.DataDir),
		slog.String("backend", cfg.Wiki.Backend),
		slog.Bool("read_only", cfg.Wiki.ReadOnly),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	wikiOpts := append([]wikidata.Option{wikidata.WithListener(publishTo(broker))}, app.wikiOpts...)
	wd, err := OpenWiki(ctx, cfg.Wiki, logger, wikiOpts...)
	if err != nil {
		return err
	}
	defer wd.Close()

	ix := indexer.New(wd, logger)

	// Run initial sync.
	if !wd.ReadOnly() {
		rep, err := ix.Sync(ctx)
		if err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		} else {
			logger.Info("initial sync finished",
				slog.Int("imported", rep.Imported),
				slog.Int("changed", rep.Changed),
				slog.Int("removed", rep.Removed),
				slog.Int("refreshed", rep.Refreshed))
		}
	}

	// Build API service and router.
	svc := pageservice.NewService(wd, ix)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := wd.Stats(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; edits made outside the wiki reach SSE clients
	// through the store listener.
	if !wd.ReadOnly() {
		g.Go(func() error {
			err := ix.Watch(gCtx, func(kind, word string) {
				logger.Debug("watcher event", slog.String("kind", kind), slog.String("word", word))
			})
			if err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they
// do not corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	slog.SetDefault(logger)

	wd, err := OpenWiki(ctx, cfg.Wiki, logger, app.wikiOpts...)
	if err != nil {
		return err
	}
	defer wd.Close()

	ix := indexer.New(wd, logger)
	if !wd.ReadOnly() {
		if _, err := ix.Sync(ctx); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}
	return mcpserver.New(pageservice.NewService(wd, ix)).ServeStdio()
}
