// Package neo4j implements store.GraphStorage on Neo4j.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
	// BatchSize bounds the rows sent per UNWIND statement.
	BatchSize int
	Sanitizer store.Sanitizer
}

// ConfigFromEnv reads NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD, NEO4J_DATABASE,
// NEO4J_TIMEOUT, NEO4J_MAX_POOL_SIZE and NEO4J_BATCH_SIZE.
func ConfigFromEnv() Config {
	return Config{
		URI:         strings.TrimSpace(util.GetEnvString("NEO4J_URI", "")),
		User:        util.GetEnvString("NEO4J_USER", "neo4j"),
		Password:    util.GetEnvString("NEO4J_PASSWORD", ""),
		Database:    util.GetEnvString("NEO4J_DATABASE", ""),
		Timeout:     util.GetEnvDuration("NEO4J_TIMEOUT", 30*time.Second),
		MaxPoolSize: util.GetEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		BatchSize:   util.GetEnvInt("NEO4J_BATCH_SIZE", 500),
	}
}

// Store implements store.GraphStorage on a Neo4j database.
type Store struct {
	driver    neo4j.DriverWithContext
	database  string
	timeout   time.Duration
	batchSize int
	sanitizer store.Sanitizer
}

// New connects to Neo4j, verifies connectivity and sets up the schema.
// Schema failures are logged and do not prevent use of the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j: URI is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = store.DefaultSanitizer
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	s := &Store{
		driver:    driver,
		database:  cfg.Database,
		timeout:   cfg.Timeout,
		batchSize: cfg.BatchSize,
		sanitizer: cfg.Sanitizer,
	}
	if err := s.SetupSchema(ctx); err != nil {
		logger.Warn("[Neo4j] Schema setup failed, continuing", "err", err)
	}
	logger.Info("[Neo4j] Connected", "uri", cfg.URI, "database", cfg.Database)
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// write runs fn in a managed write transaction. The driver retries
// transient failures; what is left after that is marked transient for the
// caller's own backoff.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, tx neo4j.ManagedTransaction) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(ctx, tx)
	}, neo4j.WithTxTimeout(s.timeout))
	return classify(err)
}

func read[T any](ctx context.Context, s *Store, fn func(ctx context.Context, tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fn(ctx, tx)
	}, neo4j.WithTxTimeout(s.timeout))
	if err != nil {
		var zero T
		return zero, classify(err)
	}
	v, _ := out.(T)
	return v, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNodeNotFound) || errors.Is(err, store.ErrInvalidIdentifier) {
		return err
	}
	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) {
		return store.Transient(err)
	}
	return err
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

var _ store.GraphStorage = (*Store)(nil)
