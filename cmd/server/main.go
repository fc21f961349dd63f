package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gwi.com/kbchat/internal/api"
	"gwi.com/kbchat/internal/auth"
	"gwi.com/kbchat/internal/config"
	"gwi.com/kbchat/internal/core"
	"gwi.com/kbchat/internal/embedding"
	"gwi.com/kbchat/internal/store"
	"gwi.com/kbchat/internal/vector"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == config.StoreMemory {
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewMongoStore(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type searcher interface {
	vector.Searcher
	Close() error
}

func newSearcher(cfg *config.Config, logger *zap.Logger) (searcher, error) {
	if cfg.Vector.Backend == config.VectorSQLite {
		idx, err := vector.NewSQLiteIndex(cfg.Vector.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	pg, err := vector.NewPgVector(cfg.Vector.PostgresURL, cfg.Vector.Table)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (embedding.Embedder, func(), error) {
	var (
		inner   embedding.Embedder
		cleanup = func() {}
	)
	switch cfg.Embedding.Provider {
	case config.EmbeddingGemini:
		g, err := embedding.NewGeminiEmbedder(ctx, cfg.Keys.Gemini, cfg.Embedding.Model, logger)
		if err != nil {
			return nil, nil, err
		}
		inner, cleanup = g, g.Close
	default:
		inner = embedding.NewOpenAIEmbedder(cfg.Keys.OpenAI, cfg.Embedding.BaseURL, cfg.Embedding.Model, logger)
	}
	return embedding.NewRateLimited(inner, cfg.Embedding.RatePerSec, cfg.Embedding.Burst), cleanup, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.DotEnvLoaded {
		logger.Info("No .env file found, relying on environment variables")
	}

	ctx := context.Background()

	docStore, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize document store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer docStore.Close(ctx)

	vectors, err := newSearcher(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize vector store", zap.String("backend", cfg.Vector.Backend), zap.Error(err))
	}
	defer vectors.Close()

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedder", zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
	}
	defer closeEmbedder()

	slicers, err := core.NewSlicers()
	if err != nil {
		logger.Fatal("Failed to load tokenizers", zap.Error(err))
	}

	tokens := auth.NewTokenVerifier(cfg.Auth.TokenKey)
	entitlements := core.NewEntitlements(docStore, core.PlatformKeys{OpenAI: cfg.Keys.OpenAI, Claude: cfg.Keys.Claude}, logger)
	chatService := core.NewChatService(docStore, entitlements, tokens, cfg.Chat.HistoryLimit, logger)
	ragService := core.NewRAGService(embedder, vectors, slicers, core.RAGConfig{
		Similarity: cfg.Vector.Similarity,
		Limit:      cfg.Vector.Limit,
	}, logger)

	apiHandler := api.NewAPIHandler(chatService, ragService, entitlements, tokens, auth.NewAPIKeyAuthenticator(docStore, logger), logger)
	router := api.NewRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server exiting gracefully")
}
