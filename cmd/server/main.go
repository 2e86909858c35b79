package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/api"
	"github.com/unicproject/unic/internal/auth"
	"github.com/unicproject/unic/internal/config"
	"github.com/unicproject/unic/internal/core"
	"github.com/unicproject/unic/internal/embedding"
	"github.com/unicproject/unic/internal/ingest"
	"github.com/unicproject/unic/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	ingestPath := flag.String("ingest", "", "Ingest knowledge entries from a JSON Lines file and exit")
	flag.Parse()

	// Load .env if present; environment variables still apply without it.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Storage
	var db store.Store
	if cfg.Database.UseInMemory {
		logger.Info("using in-memory storage")
		db = store.NewMemoryStore()
	} else {
		logger.Info("using SQLite storage", zap.String("path", cfg.Database.Path))
		db, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}
	}
	defer db.Close()

	// Embedding provider
	embedder, cleanup, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("failed to initialize embedder", zap.Error(err))
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Knowledge index
	index, err := core.NewIndex(db, logger)
	if err != nil {
		logger.Fatal("failed to load knowledge index", zap.Error(err))
	}

	if *ingestPath != "" {
		ingester := ingest.New(index, embedder, logger)
		count, err := ingester.IngestFile(context.Background(), *ingestPath)
		if err != nil {
			logger.Fatal("ingestion failed", zap.Error(err))
		}
		logger.Info("ingestion finished, exiting", zap.Int("entries", count))
		return
	}

	// Core services
	credentials := auth.NewCredentialStore(db, cfg.Auth.MinPasswordLength, logger)
	sessions := auth.NewSessionManager(db, cfg.Auth.SessionTTL, logger)
	processor := core.NewProcessor(embedder, index, cfg.Search.TopK, logger)
	composer := core.NewComposer(nil)
	chatService := core.NewChatService(sessions, processor, composer, index, db, logger)

	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		if err := credentials.EnsureAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logger.Warn("failed to bootstrap admin account", zap.Error(err))
		}
	}

	// Background session sweep
	stopSweep := make(chan struct{})
	go sessions.RunSweeper(cfg.Auth.SweepInterval, stopSweep)

	// HTTP server
	handler := api.NewHandler(chatService, credentials, sessions, db, cfg.Search.SearchTimeout, logger)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")
	close(stopSweep)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// buildEmbedder picks the embedding provider from config. The local embedder
// needs no credentials and keeps the service usable offline.
func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, func(), error) {
	switch cfg.Provider {
	case "gemini":
		emb, err := embedding.NewGeminiEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using Gemini embeddings")
		return emb, func() { _ = emb.Close() }, nil
	case "openai":
		logger.Info("using OpenAI embeddings")
		return embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.Model), nil, nil
	default:
		logger.Info("using local embeddings")
		return embedding.NewLocalEmbedder(), nil, nil
	}
}
