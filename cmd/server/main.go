package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pdfchat/pdfchat/internal/api"
	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/core"
	"github.com/pdfchat/pdfchat/internal/store"
	"go.uber.org/zap"
)

// providers bundles whichever clients back completion and embedding, plus
// the cleanup they need.
type providers struct {
	completer core.Completer
	embedder  core.Embedder
	close     func()
}

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	// Command line flag for data ingestion
	ingestPath := flag.String("ingest", "", "Ingest the given PDF into the document collection and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err), zap.String("dbPath", cfg.DatabaseURL))
	}
	defer dbStore.Close()

	docStore := store.NewDocumentStore(cfg.IndexDir)

	p, err := newProviders(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model providers", zap.Error(err))
	}
	defer p.close()

	ingestService := core.NewIngestService(core.NewPDFExtractor(), p.embedder, docStore, cfg.ChunkSize, logger)

	// Handle data ingestion if flag is set
	if *ingestPath != "" {
		logger.Info("Starting document ingestion", zap.String("path", *ingestPath))
		res := ingestService.Ingest(context.Background(), cfg.DocumentCollection, *ingestPath, filepath.Base(*ingestPath))
		if !res.OK() {
			logger.Fatal("Document ingestion failed", zap.Error(res.Err))
		}
		logger.Info("Document ingestion complete", zap.Int("chunks", res.Chunks))
		return
	}

	ragService := core.NewRAGService(docStore, p.embedder, p.completer, cfg.RetrievalTopK, logger)
	chatService := core.NewChatService(dbStore, ingestService, ragService, cfg.UploadDir, cfg.DocumentCollection, logger)

	// Initialize Handler and Router
	handler := api.NewHandler(chatService, logger)
	router := api.NewRouter(handler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,  // PDF uploads can be large
		WriteTimeout: 120 * time.Second, // Ingestion plus an LLM call happen inside one request
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Starting server. Press Ctrl+C to quit.", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server exiting gracefully")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if strings.EqualFold(level, "DEBUG") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func newProviders(ctx context.Context, cfg config.Config, logger *zap.Logger) (*providers, error) {
	p := &providers{close: func() {}}

	var gemini *core.LLMService
	if cfg.LLMProvider == config.ProviderGemini || cfg.EmbeddingProvider == config.ProviderGemini {
		chatModel := ""
		if cfg.LLMProvider == config.ProviderGemini {
			chatModel = cfg.ChatModel
		}
		embeddingModel := ""
		if cfg.EmbeddingProvider == config.ProviderGemini {
			embeddingModel = cfg.EmbeddingModel
		}
		svc, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, chatModel, embeddingModel, logger)
		if err != nil {
			return nil, err
		}
		gemini = svc
		p.close = svc.Close
	}

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		p.completer = gemini
	case config.ProviderOpenAI:
		svc, err := core.NewOpenAIService(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel, "")
		if err != nil {
			return nil, err
		}
		p.completer = svc
	}

	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		p.embedder = gemini
	case config.ProviderOpenAI:
		svc, err := core.NewOpenAIService(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, "", cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		p.embedder = svc
	}

	logger.Info("Model providers ready",
		zap.String("llm", cfg.LLMProvider),
		zap.String("embedding", cfg.EmbeddingProvider))
	return p, nil
}
