package common

// Chunk is a bounded unit of source text submitted for extraction. Chunks
// are produced by an external chunker and are immutable inside the pipeline.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
	SourcePath string `json:"relative_path"`
}

// CandidateEntity is a single entity mention parsed from one extraction
// round. It only lives until it is merged into an Aggregator.
type CandidateEntity struct {
	Name         string `json:"name"`
	TypeOriginal string `json:"type_original"`
	TypeLabel    string `json:"type_label"`
	Description  string `json:"description"`
	SourcePath   string `json:"source_path"`
	ChunkID      string `json:"chunk_id"`
}

// CandidateRelationship is a single relationship mention parsed from one
// extraction round.
type CandidateRelationship struct {
	SourceName       string  `json:"source_name"`
	TargetName       string  `json:"target_name"`
	Description      string  `json:"description"`
	RelationKeywords string  `json:"relation_keywords"`
	RelationType     string  `json:"relation_type"`
	Weight           float64 `json:"weight"`
	SourcePath       string  `json:"source_path"`
	ChunkID          string  `json:"chunk_id"`
}

type RecordKind string

const (
	RecordEntity       RecordKind = "entity"
	RecordRelationship RecordKind = "relationship"
)

// Record holds exactly one of Entity or Relationship, selected by Kind.
type Record struct {
	Kind         RecordKind
	Entity       *CandidateEntity
	Relationship *CandidateRelationship
}

// EntityRecord wraps a candidate entity into a Record.
func EntityRecord(e CandidateEntity) Record {
	return Record{Kind: RecordEntity, Entity: &e}
}

// RelationshipRecord wraps a candidate relationship into a Record.
func RelationshipRecord(r CandidateRelationship) Record {
	return Record{Kind: RecordRelationship, Relationship: &r}
}

// AggregatedNode is the deduplicated view of every mention of one entity.
// Provenance sets are kept sorted and only ever grow.
//
// Label is fixed at first sight and only changes through an explicit
// correction. Description is the first non-empty description observed.
type AggregatedNode struct {
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Description    string   `json:"description"`
	SourceDocPaths []string `json:"source_doc_paths"`
	ChunkIDs       []string `json:"chunk_ids"`
	AllTypeNames   []string `json:"all_type_names"`
}

// AggregatedEdge is the deduplicated view of every mention of one
// (source, relation type, target) triple. Weight is the maximum observed
// weight and Description the most recent non-empty description.
type AggregatedEdge struct {
	SourceKey      string   `json:"source_key"`
	TargetKey      string   `json:"target_key"`
	RelationType   string   `json:"relation_type"`
	Description    string   `json:"description"`
	Keywords       []string `json:"keywords"`
	Weight         float64  `json:"weight"`
	SourceDocPaths []string `json:"source_doc_paths"`
	ChunkIDs       []string `json:"chunk_ids"`
}

// GraphNode is a node as persisted in the graph store.
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge is a relationship as persisted in the graph store. RelationType
// always matches [A-Z0-9_]+.
type GraphEdge struct {
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	RelationType string         `json:"relation_type"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Neighborhood is the one-hop subgraph around a seed node. The seed node is
// always the first entry of Nodes.
type Neighborhood struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ChangeSet is the payload carried by proposals. Original holds what the
// reviewer saw, Proposed what should be in the graph after applying.
type ChangeSet struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}
