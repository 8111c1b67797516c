// Package bootstrap builds the clients shared by the binaries from a
// validated config.Config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/internal/storage"
	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	oai "github.com/OFFIS-RIT/lexgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/lexgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/loader"
	loaderio "github.com/OFFIS-RIT/lexgraph/pkg/loader/io"
	loaders3 "github.com/OFFIS-RIT/lexgraph/pkg/loader/s3"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger/console"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
	"github.com/OFFIS-RIT/lexgraph/pkg/store/badger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store/neo4j"
)

// InitLogger installs the console logger as the global logger.
func InitLogger(cfg config.Config, prefix string) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		JSON:   cfg.JSONLogs,
		Prefix: prefix,
	}))
}

// NewAIClient creates the chat backend selected by AI_ADAPTER.
func NewAIClient(cfg config.AIConfig) (ai.GraphAIClient, error) {
	switch cfg.Adapter {
	case config.AdapterOllama:
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			Model:                 cfg.Model,
			BaseURL:               cfg.BaseURL,
			ApiKey:                cfg.APIKey,
			MaxConcurrentRequests: int64(cfg.MaxConcurrentRequests),
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	case config.AdapterOpenAI:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			Model:          cfg.Model,
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			RequestTimeout: cfg.CallTimeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown AI adapter %q", cfg.Adapter)
}

// NewGenerator wraps the chat backend with timeouts and retries.
func NewGenerator(cfg config.AIConfig) (*ai.Extractor, ai.GraphAIClient, error) {
	client, err := NewAIClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	retry := util.DefaultBackoffPolicy()
	retry.MaxRetries = max(cfg.Retries, 0)
	gen := ai.NewExtractor(client, ai.ExtractorConfig{
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		SystemPrompts: []string{ai.ExtractionSystemPrompt},
		CallTimeout:   cfg.CallTimeout,
		Retry:         retry,
	})
	return gen, client, nil
}

// NewGraphStorage opens the configured graph backend.
func NewGraphStorage(ctx context.Context, cfg config.GraphConfig, sanitizer store.Sanitizer) (store.GraphStorage, error) {
	switch cfg.Backend {
	case config.GraphNeo4j:
		s, err := neo4j.New(ctx, neo4j.Config{
			URI:         cfg.Neo4jURI,
			User:        cfg.Neo4jUser,
			Password:    cfg.Neo4jPassword,
			Database:    cfg.Neo4jDatabase,
			Timeout:     cfg.Neo4jTimeout,
			MaxPoolSize: cfg.Neo4jPoolSize,
			BatchSize:   cfg.Neo4jBatch,
			Sanitizer:   sanitizer,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.GraphBadger:
		s, err := badger.Open(badger.Options{Dir: cfg.BadgerDir, Sanitizer: sanitizer})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
}

// SetupGraphSchema creates the graph constraints and indexes. A failure is
// logged and the store stays usable, so ingestion is never blocked by it.
func SetupGraphSchema(ctx context.Context, storage store.GraphStorage) {
	if err := storage.SetupSchema(ctx); err != nil {
		logger.Warn("[Graph] Schema setup failed, continuing", "err", err)
	}
}

// NewPool connects to Postgres and checks the connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRegistry loads the type catalog. pool is only used by the postgres
// source and may be nil otherwise.
func NewRegistry(ctx context.Context, cfg config.CatalogConfig, pool *pgxpool.Pool) (*catalog.Registry, error) {
	var source catalog.Source
	switch cfg.Source {
	case config.CatalogStatic, "":
		return catalog.NewStaticRegistry(), nil
	case config.CatalogFile:
		source = catalog.NewFileSource(cfg.Path)
	case config.CatalogPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres catalog needs a database connection")
		}
		source = catalog.NewPgSource(pool)
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
	}
	return catalog.NewRegistry(ctx, source)
}

// NewFileLoader reads local chunk files and, when S3 is configured, chunk
// files in object storage.
func NewFileLoader(ctx context.Context, cfg config.S3Config) (loader.FileLoader, error) {
	mux := loader.Mux{Local: loaderio.NewIOFileLoader()}
	if cfg.Endpoint == "" && cfg.Region == "" {
		return mux, nil
	}
	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mux.S3 = loaders3.NewS3FileLoaderWithClient(cfg.Bucket, client)
	return mux, nil
}
