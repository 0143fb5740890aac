package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parlohq/parlo/backend/internal/config"
	"github.com/parlohq/parlo/backend/internal/handler"
	"github.com/parlohq/parlo/backend/internal/handler/ws"
	"github.com/parlohq/parlo/backend/internal/model/profile"
	"github.com/parlohq/parlo/backend/internal/model/scenario"
	"github.com/parlohq/parlo/backend/internal/quota"
	"github.com/parlohq/parlo/backend/internal/service/ai"
	"github.com/parlohq/parlo/backend/internal/session"
	"github.com/parlohq/parlo/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	profiles := newProfileStore(ctx, cfg.Store)
	scenarios := scenario.NewMemoryStore(scenario.Seed())
	engine := quota.NewEngine(cfg.Quota)
	registry := session.NewRegistry()

	// Initialize AI service
	var dialogues ws.DialogueService
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, scenarios, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without conversation relay - check the ARK_* environment variables")
		} else {
			dialogues = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("ark credentials not configured, conversation relay disabled")
	}

	router := handler.NewRouter(profiles, scenarios, engine, registry, dialogues, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)
}

// newProfileStore connects the durable store, falling back to the in-memory
// one when DATABASE_URL is not set.
func newProfileStore(ctx context.Context, cfg config.StoreConfig) profile.Store {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL not configured, using in-memory profile store")
		return store.NewMemory()
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect profile store: %v", err)
	}
	if err := pg.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to bootstrap profile store: %v", err)
	}

	log.Println("profile store connected")
	return pg
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Parlo backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
