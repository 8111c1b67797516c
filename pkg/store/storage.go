package store

import (
	"context"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

// GraphStorage persists the knowledge graph. Implementations must make every
// write idempotent: applying the same Mutation twice leaves the graph as
// after the first application, and provenance lists only ever grow.
//
// Labels and relationship types are sanitized through the configured
// Sanitizer before they reach a query.
type GraphStorage interface {
	// SetupSchema creates constraints and indexes. It is safe to call more
	// than once.
	SetupSchema(ctx context.Context) error

	UpsertNode(ctx context.Context, node NodeUpsert) error
	UpsertEdge(ctx context.Context, edge EdgeUpsert) error

	// Apply writes all parts of m in a single transaction, in the order node
	// upserts, edge upserts, edge deletes, node deletes.
	Apply(ctx context.Context, m Mutation) error

	// GetNeighborhood returns the seed node followed by its direct neighbors
	// and every edge between the seed and a neighbor. ErrNodeNotFound is
	// returned when the seed does not exist.
	GetNeighborhood(ctx context.Context, seedID string) (*common.Neighborhood, error)

	// ListNodeIDs returns the ids of all nodes carrying label, sorted.
	ListNodeIDs(ctx context.Context, label string) ([]string, error)
	ListLabels(ctx context.Context) ([]string, error)
	ListRelationshipTypes(ctx context.Context) ([]string, error)

	// DropAll deletes every node and relationship.
	DropAll(ctx context.Context) error
	Close(ctx context.Context) error
}

// Sanitizer turns free-form labels and relationship types into safe
// identifiers. *catalog.Registry implements it.
type Sanitizer interface {
	SanitizeLabel(label string) string
	SanitizeRelationType(relType string) string
	IsGenericLabel(label string) bool
}
