package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/aura/internal/account"
	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/config"
	"github.com/antoniostano/aura/internal/httpapi"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/kv"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/prefs"
	"github.com/antoniostano/aura/internal/session"
	"github.com/antoniostano/aura/internal/shell"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := i18n.Load()
	if err != nil {
		log.Fatalf("string tables: %v", err)
	}

	store, err := kv.NewStore(ctx, cfg.StoreURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer store.Close()
	log.Printf("store backend: %s", kv.Backend(cfg.StoreURL))

	provider, err := brain.NewProvider(ctx, brain.Config{
		Mode:          cfg.ModelProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
	})
	if err != nil {
		log.Fatalf("model provider init failed: %v", err)
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}
	if brain.IsConfigured(provider) {
		log.Printf("model provider: %s", provider.Name())
	} else {
		log.Printf("model provider: %s (no API key, replies will fail)", provider.Name())
	}

	app, err := shell.New(ctx, shell.Config{
		Catalog:  catalog,
		Prefs:    prefs.NewService(store),
		Accounts: account.NewStore(store, account.NewBcryptHasher(cfg.BcryptCost)),
		Provider: provider,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatalf("app init failed: %v", err)
	}
	defer app.Close()

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	api := httpapi.New(cfg, app, catalog, provider, sessions, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessions.RunJanitor(gctx, 5*time.Second)
	})
	g.Go(func() error {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
			_ = httpServer.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
	}
	log.Printf("shutdown complete")
}
