// Package server provides the public entry point for initializing the
// AI core server.
//
// This package exists in pkg/ (not internal/) so that embedding
// deployments can compose the full server with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fusedchat/fusedchat/ai-core/internal/api"
	"github.com/fusedchat/fusedchat/ai-core/internal/api/handlers"
	"github.com/fusedchat/fusedchat/ai-core/internal/config"
	"github.com/fusedchat/fusedchat/ai-core/internal/embeddings"
	"github.com/fusedchat/fusedchat/ai-core/internal/llm"
	"github.com/fusedchat/fusedchat/ai-core/internal/rag"
	"github.com/fusedchat/fusedchat/ai-core/internal/store"
	"github.com/fusedchat/fusedchat/ai-core/internal/telemetry"
	"github.com/fusedchat/fusedchat/ai-core/internal/vectorstore"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized AI core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the metadata store.
	Store store.Store

	// Config is the resolved configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the AI core with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore := store.NewMemoryStore(cfg.DataDir)

	embRegistry := embeddings.NewRegistry()
	embKind, err := buildEmbeddings(cfg, embRegistry)
	if err != nil {
		return nil, err
	}
	embDriver, err := embRegistry.Get(embKind)
	if err != nil {
		return nil, err
	}

	vecRegistry := vectorstore.NewRegistry()
	vecKind, err := buildVectorStore(ctx, cfg, embDriver.Dimensions(), vecRegistry)
	if err != nil {
		return nil, err
	}
	vecDriver, err := vecRegistry.Get(vecKind)
	if err != nil {
		return nil, err
	}

	cache := llm.NewResponseCache(cfg.LLM.CacheSize, cfg.LLM.CacheTTL)
	gate := llm.NewAdmissionGate(cfg.LLM.MaxConcurrent)
	router := llm.NewRouter(cache, gate,
		llm.RouterOptions{
			FailFast:         cfg.LLM.GateFailFast,
			MaxAnalysisChars: cfg.LLM.MaxAnalysisChars,
		},
		llm.NewGeminiDriver("", cfg.LLM.GeminiModel),
		llm.NewGroqDriver("", cfg.LLM.GroqModel),
		llm.NewOllamaDriver(cfg.LLM.OllamaBaseURL, cfg.LLM.OllamaModel, cfg.LLM.OllamaProbeTimeout, cfg.LLM.RequestTimeout),
	)

	ingester := rag.NewIngester(embDriver, vecDriver, dataStore, rag.ChunkerConfig{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	})
	retriever := rag.NewRetriever(embDriver, vecDriver, router, rag.RetrieverOptions{
		DefaultTopK:   cfg.RAG.TopK,
		SubQueryCount: cfg.LLM.SubQueryCount,
	})

	log.Info().
		Strs("embedding", embRegistry.List()).
		Strs("vector", vecRegistry.List()).
		Strs("providers", router.Providers()).
		Msg("AI core initialized")

	h := handlers.New(dataStore, router, retriever, ingester, vecDriver, embRegistry, vecRegistry, cfg.Version)

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// buildEmbeddings registers the configured embedding driver and returns
// the name it was registered under.
func buildEmbeddings(cfg *config.Config, reg *embeddings.Registry) (string, error) {
	switch cfg.Embedding.Driver {
	case "", "ollama":
		endpoint := cfg.Embedding.Endpoint
		if endpoint == "" {
			// Share the LLM's Ollama instance unless pointed elsewhere.
			endpoint = cfg.LLM.OllamaBaseURL
		}
		reg.Register("ollama", embeddings.NewOllamaDriver(endpoint, cfg.Embedding.Model))
		return "ollama", nil
	case "openai":
		if cfg.Embedding.OpenAIKey == "" {
			return "", fmt.Errorf("embedding driver openai requires OPENAI_API_KEY")
		}
		var opts []embeddings.OpenAIOption
		if cfg.Embedding.Endpoint != "" {
			opts = append(opts, embeddings.WithOpenAIEndpoint(cfg.Embedding.Endpoint))
		}
		reg.Register("openai", embeddings.NewOpenAIDriver(cfg.Embedding.OpenAIKey, cfg.Embedding.Model, opts...))
		return "openai", nil
	default:
		return "", fmt.Errorf("unknown embedding driver: %s", cfg.Embedding.Driver)
	}
}

// buildVectorStore registers the configured vector store driver and
// returns the name it was registered under.
func buildVectorStore(ctx context.Context, cfg *config.Config, dimensions int, reg *vectorstore.Registry) (string, error) {
	switch cfg.Vector.Driver {
	case "", "embedded":
		var opts []vectorstore.EmbeddedOption
		if cfg.Vector.MaxVectors > 0 {
			opts = append(opts, vectorstore.WithMaxVectors(cfg.Vector.MaxVectors))
		}
		reg.Register("embedded", vectorstore.NewEmbeddedStore(opts...))
		return "embedded", nil
	case "pgvector":
		if cfg.Vector.PgvectorURL == "" {
			return "", fmt.Errorf("vector driver pgvector requires FUSEDCHAT_PGVECTOR_URL")
		}
		pg, err := vectorstore.NewPgvectorStore(ctx, cfg.Vector.PgvectorURL, dimensions)
		if err != nil {
			return "", err
		}
		reg.Register("pgvector", pg)
		return "pgvector", nil
	default:
		return "", fmt.Errorf("unknown vector store driver: %s", cfg.Vector.Driver)
	}
}
