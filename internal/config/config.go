// Package config gathers the environment into one Config and validates it
// before any work starts.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
)

const (
	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"

	GraphNeo4j  = "neo4j"
	GraphBadger = "badger"

	CatalogStatic   = "static"
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

type AIConfig struct {
	Adapter     string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	CallTimeout time.Duration
	// MaxConcurrentRequests caps in-flight requests to the backend.
	MaxConcurrentRequests int
	Retries               int
}

type GraphConfig struct {
	Backend string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	Neo4jTimeout  time.Duration
	Neo4jPoolSize int
	Neo4jBatch    int

	BadgerDir string
}

type CatalogConfig struct {
	Source         string
	Path           string
	ReloadInterval time.Duration
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string
	Port     string
}

// URL is the AMQP connection string.
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type ServerConfig struct {
	Port          string
	AuthURL       string
	MasterAPIKey  string
	MasterUserID  string
	MigrationsDir string
	AutoApply     bool
}

type Config struct {
	Debug     bool
	JSONLogs  bool
	Delimiter ai.Delimiters

	MaxGleaning    int
	ParallelChunks int
	CommitTimeout  time.Duration
	ForceRecreate  bool
	CheckpointDir  string

	DatabaseURL string

	AI       AIConfig
	Graph    GraphConfig
	Catalog  CatalogConfig
	S3       S3Config
	RabbitMQ RabbitMQConfig
	Server   ServerConfig
}

// Load reads the configuration from the environment. Call util.LoadEnv
// first to pick up a .env file.
func Load() Config {
	defaults := ai.DefaultDelimiters()
	return Config{
		Debug:    util.GetEnvBool("DEBUG", false),
		JSONLogs: util.GetEnvBool("LOG_JSON", false),
		Delimiter: ai.Delimiters{
			Tuple:      util.GetEnvString("TUPLE_DELIMITER", defaults.Tuple),
			Record:     util.GetEnvString("RECORD_DELIMITER", defaults.Record),
			Completion: util.GetEnvString("COMPLETION_DELIMITER", defaults.Completion),
		},

		MaxGleaning:    util.GetEnvInt("MAX_GLEANING", 1),
		ParallelChunks: util.GetEnvInt("PARALLEL_CHUNKS", 4),
		CommitTimeout:  util.GetEnvDuration("COMMIT_TIMEOUT", 2*time.Minute),
		ForceRecreate:  util.GetEnvBool("FORCE_RECREATE", false),
		CheckpointDir:  util.GetEnvString("CHECKPOINT_DIR", ".lexgraph"),

		DatabaseURL: util.GetEnv("DATABASE_URL"),

		AI: AIConfig{
			Adapter:               strings.ToLower(util.GetEnvString("AI_ADAPTER", AdapterOpenAI)),
			Model:                 util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			BaseURL:               util.GetEnv("AI_CHAT_URL"),
			APIKey:                util.GetEnv("AI_CHAT_KEY"),
			Temperature:           util.GetEnvNumeric("AI_TEMPERATURE", 0),
			MaxTokens:             util.GetEnvInt("AI_MAX_TOKENS", 4096),
			CallTimeout:           util.GetEnvDuration("AI_TIMEOUT", 2*time.Minute),
			MaxConcurrentRequests: util.GetEnvInt("AI_PARALLEL_REQ", 4),
			Retries:               util.GetEnvInt("AI_RETRIES", 3),
		},
		Graph: GraphConfig{
			Backend:       strings.ToLower(util.GetEnvString("GRAPH_BACKEND", GraphNeo4j)),
			Neo4jURI:      strings.TrimSpace(util.GetEnv("NEO4J_URI")),
			Neo4jUser:     util.GetEnvString("NEO4J_USER", "neo4j"),
			Neo4jPassword: util.GetEnv("NEO4J_PASSWORD"),
			Neo4jDatabase: util.GetEnv("NEO4J_DATABASE"),
			Neo4jTimeout:  util.GetEnvDuration("NEO4J_TIMEOUT", 30*time.Second),
			Neo4jPoolSize: util.GetEnvInt("NEO4J_MAX_POOL_SIZE", 50),
			Neo4jBatch:    util.GetEnvInt("NEO4J_BATCH_SIZE", 500),
			BadgerDir:     util.GetEnv("BADGER_DIR"),
		},
		Catalog: CatalogConfig{
			Source:         strings.ToLower(util.GetEnvString("CATALOG_SOURCE", CatalogStatic)),
			Path:           util.GetEnv("CATALOG_PATH"),
			ReloadInterval: util.GetEnvDuration("CATALOG_RELOAD_INTERVAL", time.Minute),
		},
		S3: S3Config{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
		},
		RabbitMQ: RabbitMQConfig{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},
		Server: ServerConfig{
			Port:          util.GetEnvString("PORT", "8080"),
			AuthURL:       util.GetEnv("AUTH_URL"),
			MasterAPIKey:  util.GetEnv("MASTER_API_KEY"),
			MasterUserID:  util.GetEnv("MASTER_USER_ID"),
			MigrationsDir: util.GetEnvString("MIGRATIONS_DIR", "migrations"),
			AutoApply:     util.GetEnvBool("AUTO_APPLY", false),
		},
	}
}

// Validate checks the settings every command needs: the LLM backend, the
// graph backend, the type catalog and the delimiters.
func (c Config) Validate() error {
	var errs []error
	if err := c.Delimiter.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxGleaning < 0 {
		errs = append(errs, errors.New("MAX_GLEANING must not be negative"))
	}
	if c.ParallelChunks <= 0 {
		errs = append(errs, errors.New("PARALLEL_CHUNKS must be positive"))
	}

	switch c.AI.Adapter {
	case AdapterOpenAI:
		if c.AI.APIKey == "" && c.AI.BaseURL == "" {
			errs = append(errs, errors.New("AI_CHAT_KEY or AI_CHAT_URL is required for the openai adapter"))
		}
	case AdapterOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown AI_ADAPTER %q", c.AI.Adapter))
	}
	if c.AI.Model == "" {
		errs = append(errs, errors.New("AI_CHAT_EXTRACT_MODEL is required"))
	}

	errs = append(errs, c.ValidateGraph())

	switch c.Catalog.Source {
	case CatalogStatic:
	case CatalogFile:
		if c.Catalog.Path == "" {
			errs = append(errs, errors.New("CATALOG_PATH is required for the file catalog"))
		}
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres catalog"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CATALOG_SOURCE %q", c.Catalog.Source))
	}
	return errors.Join(errs...)
}

// ValidateGraph checks the graph backend settings alone, for commands that
// never call the LLM.
func (c Config) ValidateGraph() error {
	switch c.Graph.Backend {
	case GraphNeo4j:
		if c.Graph.Neo4jURI == "" {
			return errors.New("NEO4J_URI is required for the neo4j backend")
		}
	case GraphBadger:
		if c.Graph.BadgerDir == "" {
			return errors.New("BADGER_DIR is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown GRAPH_BACKEND %q", c.Graph.Backend)
	}
	return nil
}

// ValidateServer checks what the validation API needs on top of the graph.
func (c Config) ValidateServer() error {
	var errs []error
	errs = append(errs, c.ValidateGraph())
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Server.AuthURL == "" && c.Server.MasterAPIKey == "" {
		errs = append(errs, errors.New("AUTH_URL or MASTER_API_KEY is required"))
	}
	return errors.Join(errs...)
}
