package cli

import (
	"fmt"
	"log/slog"

	"rolerag/config"
	"rolerag/internal/adapter/cache"
	"rolerag/internal/adapter/chunker"
	"rolerag/internal/adapter/embedding"
	"rolerag/internal/adapter/fs"
	"rolerag/internal/adapter/memstore"
	"rolerag/internal/adapter/store"
	"rolerag/internal/adapter/summarizer"
	"rolerag/internal/port"
	"rolerag/internal/usecase"
)

const (
	defaultHashDimension = 384
	defaultOpenAIModel   = "text-embedding-3-small"
	defaultOllamaModel   = "nomic-embed-text"
)

// newEmbedder creates the configured embedding backend.
func newEmbedder(cfg config.EmbeddingConfig) (port.Embedder, error) {
	opts := embedding.HTTPOptions{
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	switch cfg.Provider {
	case "hash":
		dim := cfg.Dimension
		if dim == 0 {
			dim = defaultHashDimension
		}
		return embedding.NewHashEmbedder(dim, cfg.Stemming), nil
	case "openai":
		if opts.Model == "" {
			opts.Model = defaultOpenAIModel
		}
		e, err := embedding.NewOpenAIEmbedder(cfg.APIKeyEnv, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return e, nil
	case "ollama":
		if opts.Model == "" {
			opts.Model = defaultOllamaModel
		}
		return embedding.NewOllamaEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// newQueryEmbedder wraps the embedder with the query cache when enabled.
func newQueryEmbedder(embedder port.Embedder, cfg config.RetrieveConfig) port.Embedder {
	if cfg.CacheSize <= 0 {
		return embedder
	}
	return cache.NewCachedEmbedder(embedder, cache.NewEmbeddingCache(cfg.CacheSize, cfg.CacheTTL))
}

// newSummarizer returns nil when summarization is disabled.
func newSummarizer(cfg config.SummarizerConfig, logger *slog.Logger) port.Summarizer {
	switch cfg.Provider {
	case "frequency":
		return summarizer.NewFrequencySummarizer(cfg.MaxSentences)
	case "ollama":
		return summarizer.NewOllama(summarizer.OllamaConfig{
			APIBase: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
	default:
		return nil
	}
}

func openIndex(cfg *config.Config, embedder port.Embedder, logger *slog.Logger) (*store.BoltIndex, error) {
	idx, err := store.OpenBoltIndex(cfg.Index.Path, embedder.ModelName(), embedder.Dimension(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return idx, nil
}

// openServeIndex opens the index backend used by the HTTP server. The memory
// backend starts empty and is filled by the caller.
func openServeIndex(cfg *config.Config, embedder port.Embedder, logger *slog.Logger) (port.Index, error) {
	if cfg.Index.Backend == "memory" {
		return memstore.NewMemoryIndex(embedder.ModelName(), embedder.Dimension()), nil
	}
	return openIndex(cfg, embedder, logger)
}

func newIngestUseCase(cfg *config.Config, embedder port.Embedder, index port.Index, logger *slog.Logger) (*usecase.IngestUseCase, error) {
	wc, err := chunker.NewWindowChunker(cfg.Chunk.Size, cfg.Chunk.Overlap)
	if err != nil {
		return nil, err
	}
	loader := fs.NewLoader(cfg.Corpus.Includes, cfg.Corpus.Excludes, logger)
	return usecase.NewIngestUseCase(loader, wc, embedder, index, cfg.Embedding.BatchSize, cfg.Embedding.Workers, logger), nil
}

func retrieveOptions(cfg config.RetrieveConfig) usecase.RetrieveOptions {
	return usecase.RetrieveOptions{
		TopK:      cfg.TopK,
		FallbackK: cfg.FallbackK,
		MinScore:  cfg.MinScore,
		Timeout:   cfg.Timeout,
	}
}
