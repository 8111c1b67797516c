package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
)

// GraphClient turns chunks of legal text into graph mutations. It runs the
// gleaning loop per chunk, aggregates the results and commits them to a
// store.GraphStorage.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	generator      ai.TextGenerator
	registry       *catalog.Registry
	parser         RecordParser
	delimiters     ai.Delimiters
	maxGleaning    int
	parallelChunks int
	commitTimeout  time.Duration
	storeRetry     util.BackoffPolicy
	forceRecreate  bool
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Generator is required. Registry defaults to the built-in legal catalog
// and Delimiters to ai.DefaultDelimiters.
// MaxGleaning bounds the continue rounds after the initial extraction.
// ParallelChunks controls how many chunks are processed in parallel.
// CommitTimeout bounds a chunk commit, which runs detached from
// cancellation so a started commit is never cut short.
type NewGraphClientParams struct {
	Generator      ai.TextGenerator
	Registry       *catalog.Registry
	Delimiters     ai.Delimiters
	MaxGleaning    int
	ParallelChunks int
	CommitTimeout  time.Duration
	StoreRetry     *util.BackoffPolicy
	ForceRecreate  bool
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	params := graph.NewGraphClientParams{
//		Generator:      ai.NewExtractor(aiClient, ai.ExtractorConfig{Model: "gpt-4.1-mini"}),
//		Registry:       registry,
//		MaxGleaning:    1,
//		ParallelChunks: 4,
//	}
//	client, err := graph.NewGraphClient(params)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Returns a pointer to GraphClient and an error if the configuration is
// invalid.
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Generator == nil {
		return nil, errors.New("graph client: generator is required")
	}
	delimiters := params.Delimiters
	if delimiters == (ai.Delimiters{}) {
		delimiters = ai.DefaultDelimiters()
	}
	if err := delimiters.Validate(); err != nil {
		return nil, fmt.Errorf("graph client: %w", err)
	}
	registry := params.Registry
	if registry == nil {
		registry = catalog.NewStaticRegistry()
	}
	maxGleaning := params.MaxGleaning
	if maxGleaning < 0 {
		maxGleaning = 0
	}
	parallel := params.ParallelChunks
	if parallel <= 0 {
		parallel = 1
	}
	commitTimeout := params.CommitTimeout
	if commitTimeout <= 0 {
		commitTimeout = 2 * time.Minute
	}
	retry := util.DefaultBackoffPolicy()
	if params.StoreRetry != nil {
		retry = *params.StoreRetry
	}

	g := &GraphClient{
		generator:      params.Generator,
		registry:       registry,
		parser:         RecordParser{Delimiters: delimiters},
		delimiters:     delimiters,
		maxGleaning:    maxGleaning,
		parallelChunks: parallel,
		commitTimeout:  commitTimeout,
		storeRetry:     retry,
		forceRecreate:  params.ForceRecreate,
	}
	return g, nil
}
