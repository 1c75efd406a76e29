package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skridlevsky/panel-vote/internal/api"
	"github.com/skridlevsky/panel-vote/internal/catalog"
	"github.com/skridlevsky/panel-vote/internal/config"
	"github.com/skridlevsky/panel-vote/internal/discord"
	"github.com/skridlevsky/panel-vote/internal/kv"
	"github.com/skridlevsky/panel-vote/internal/panel"
	"github.com/skridlevsky/panel-vote/internal/webflow"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the key-value store
	store, closeStore, err := kv.Open(ctx, kv.OpenConfig{
		Backend:        cfg.StoreBackend,
		DatabaseURL:    cfg.DatabaseURL,
		RedisURL:       cfg.RedisURL,
		RedisNamespace: cfg.RedisNamespace,
	})
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	// NOTE: closeStore() called explicitly in shutdown sequence below, no defer

	// External collaborators
	identities := discord.NewClient(cfg.Discord)
	projects := webflow.NewClient(cfg.Webflow)

	actor := panel.NewActor(panel.Options{
		Store:      store,
		Identities: identities,
		Catalog:    projects,
		Policy:     cfg.Policy,
		Logger:     slog.Default(),
	})

	// Hydrate eagerly so the first request doesn't pay for it. A failure here is
	// retried on the first request.
	if err := actor.Load(ctx); err != nil {
		slog.Warn("Initial load failed, will retry on first request", "error", err)
	}

	syncer := catalog.NewSyncer(actor, cfg.CatalogSyncInterval)
	syncer.Run(ctx)

	// Create router
	routerResult := api.NewRouter(&api.RouterConfig{
		Actor:              actor,
		Syncer:             syncer,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routerResult.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // catalog sync pages through the whole collection
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	syncer.Stop()
	routerResult.RateLimiters.Stop()
	identities.Stop()

	// Cancel context to stop all services
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Close the store last; in-flight requests may still be writing
	closeStore()

	slog.Info("Server exited")
}
