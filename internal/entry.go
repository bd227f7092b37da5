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

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/embed"
	"github.com/starford/othala/internal/extract"
	"github.com/starford/othala/internal/fileops"
	"github.com/starford/othala/internal/match"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/organizer"
	"github.com/starford/othala/internal/rules"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/watch"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. In MCP mode stdout carries the
	// protocol, so logs go to stderr.
	logOut := os.Stdout
	if app.mcpMode {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("inbox", cfg.Folders.Inbox),
		slog.String("archive", cfg.Folders.Archive),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Load the embedding model unless a provider was injected.
	embedder := app.embedder
	if embedder == nil {
		fe, err := embed.NewFastEmbed(embed.FastEmbedConfig{
			Model:    cfg.Embedding.Model,
			CacheDir: cfg.Embedding.CacheDir,
		})
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}
		embedder = fe
	}
	defer embedder.Close()

	// Open the rule store.
	db, err := rules.Open(cfg.SQLite.Path, embedder)
	if err != nil {
		return fmt.Errorf("init rule store: %w", err)
	}
	defer db.Close()

	// Seed settings from config on first start.
	settings, err := db.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.InboxPath == "" {
		settings = &rules.Settings{
			InboxPath:         cfg.Folders.Inbox,
			ArchivePath:       cfg.Folders.Archive,
			MonitoringEnabled: cfg.Folders.Monitoring,
		}
		if err := db.SetSettings(ctx, settings); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		logger.Info("Settings seeded from config",
			slog.String("inbox", settings.InboxPath),
			slog.String("archive", settings.ArchivePath))
	}

	// Assemble the pipeline.
	var extractOpts []extract.Option
	if cfg.Extraction.MaxTextLen > 0 {
		extractOpts = append(extractOpts, extract.WithMaxTextLen(cfg.Extraction.MaxTextLen))
	}
	if cfg.Extraction.MaxFileSize > 0 {
		extractOpts = append(extractOpts, extract.WithMaxFileSize(cfg.Extraction.MaxFileSize))
	}
	extractor := extract.New(extractOpts...)

	var matchOpts []match.Option
	if cfg.Matching.KeywordFloor > 0 {
		matchOpts = append(matchOpts, match.WithKeywordFloor(cfg.Matching.KeywordFloor))
	}
	if cfg.Matching.RuleThreshold > 0 {
		matchOpts = append(matchOpts, match.WithRuleThreshold(cfg.Matching.RuleThreshold))
	}
	matcher := match.New(embedder, logger, matchOpts...)

	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	mover := fileops.New(db, logger)
	defer mover.Close()

	var org *organizer.Organizer
	watcher := watch.New(extractor, func(path string) {
		org.HandleDetected(path)
	}, logger)
	org = organizer.New(db, extractor, matcher, mover, watcher, broker, logger)

	if err := org.Start(ctx); err != nil {
		return err
	}
	defer org.Stop()

	if app.mcpMode {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(org, db).ServeStdio()
	}

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, SSE included.
	r.Mount("/api", api.NewRouter(org, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

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
