package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
)

// Property names shared by all backends.
const (
	PropID             = "id"
	PropName           = "name"
	PropDescription    = "description"
	PropWeight         = "weight"
	PropPlaceholder    = "is_placeholder"
	PropSourceDocPaths = "source_doc_paths"
	PropChunkIDs       = "chunk_ids"
	PropTypeNames      = "type_names"
	PropKeywords       = "keywords"
	PropCreatedAt      = "created_at"
	PropUpdatedAt      = "updated_at"
)

// Set keys become property names inside queries.
var propKeyRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var reservedProps = map[string]struct{}{
	PropID: {}, PropName: {}, PropDescription: {}, PropWeight: {},
	PropPlaceholder: {}, PropCreatedAt: {}, PropUpdatedAt: {},
}

// SetProps are list properties that are set-unioned on every write.
var SetProps = []string{PropSourceDocPaths, PropChunkIDs, PropTypeNames, PropKeywords}

// NodeUpsert creates or updates a node identified by ID.
//
// Name and Description are only written while the stored value is empty,
// unless Replace is set. The first specific Label sticks; Replace swaps it.
type NodeUpsert struct {
	ID          string
	Label       string
	Name        string
	Description string
	Sets        map[string][]string
	Props       map[string]any
	Replace     bool
}

// EdgeUpsert creates or updates the edge (SourceID)-[RelationType]->(TargetID).
// Missing endpoints are created as generic placeholders.
//
// Description is last-non-empty-wins and Weight keeps the maximum, unless
// Replace is set, in which case both are overwritten.
type EdgeUpsert struct {
	SourceID     string
	TargetID     string
	RelationType string
	Description  string
	Weight       float64
	Sets         map[string][]string
	Props        map[string]any
	Replace      bool
}

type EdgeRef struct {
	SourceID     string
	TargetID     string
	RelationType string
}

func (r EdgeRef) Key() string {
	return r.SourceID + "\x00" + r.RelationType + "\x00" + r.TargetID
}

func (e EdgeUpsert) Ref() EdgeRef {
	return EdgeRef{SourceID: e.SourceID, TargetID: e.TargetID, RelationType: e.RelationType}
}

// Mutation is everything one chunk commit or one proposal writes.
type Mutation struct {
	Nodes       []NodeUpsert
	Edges       []EdgeUpsert
	DeleteEdges []EdgeRef
	DeleteNodes []string
}

func (m Mutation) Empty() bool {
	return len(m.Nodes) == 0 && len(m.Edges) == 0 && len(m.DeleteEdges) == 0 && len(m.DeleteNodes) == 0
}

type defaultSanitizer struct{}

func (defaultSanitizer) SanitizeLabel(l string) string        { return catalog.SanitizeLabel(l) }
func (defaultSanitizer) SanitizeRelationType(r string) string { return catalog.SanitizeRelationType(r) }
func (defaultSanitizer) IsGenericLabel(l string) bool         { return catalog.IsGenericLabel(l) }

// DefaultSanitizer applies the catalog sanitization rules without a
// registry.
var DefaultSanitizer Sanitizer = defaultSanitizer{}

func validID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.ContainsRune(id, 0)
}

// PrepareLabel sanitizes label. Generic or empty labels become the generic
// label.
func PrepareLabel(s Sanitizer, label string) (string, error) {
	if s == nil {
		s = DefaultSanitizer
	}
	if s.IsGenericLabel(label) {
		return catalog.GenericLabel, nil
	}
	clean := s.SanitizeLabel(label)
	if clean == "" || s.IsGenericLabel(clean) {
		return catalog.GenericLabel, nil
	}
	if !catalog.ValidLabel(clean) || clean == catalog.AnchorLabel {
		return "", fmt.Errorf("%w: label %q", ErrInvalidIdentifier, label)
	}
	return clean, nil
}

func PrepareRelationType(s Sanitizer, relType string) (string, error) {
	if s == nil {
		s = DefaultSanitizer
	}
	clean := s.SanitizeRelationType(relType)
	if !catalog.ValidRelationType(clean) {
		return "", fmt.Errorf("%w: relationship type %q", ErrInvalidIdentifier, relType)
	}
	return clean, nil
}

// Prepare returns a copy of m with sanitized labels, relationship types and
// property values. It fails with ErrInvalidIdentifier before anything is
// written.
func Prepare(m Mutation, s Sanitizer) (Mutation, error) {
	out := Mutation{
		Nodes:       make([]NodeUpsert, 0, len(m.Nodes)),
		Edges:       make([]EdgeUpsert, 0, len(m.Edges)),
		DeleteEdges: make([]EdgeRef, 0, len(m.DeleteEdges)),
		DeleteNodes: make([]string, 0, len(m.DeleteNodes)),
	}
	for _, n := range m.Nodes {
		if !validID(n.ID) {
			return Mutation{}, fmt.Errorf("%w: node id %q", ErrInvalidIdentifier, n.ID)
		}
		label, err := PrepareLabel(s, n.Label)
		if err != nil {
			return Mutation{}, err
		}
		n.Label = label
		n.Sets = cleanSets(n.Sets)
		n.Props = cleanProps(n.Props)
		out.Nodes = append(out.Nodes, n)
	}
	for _, e := range m.Edges {
		if !validID(e.SourceID) || !validID(e.TargetID) {
			return Mutation{}, fmt.Errorf("%w: edge %q -> %q", ErrInvalidIdentifier, e.SourceID, e.TargetID)
		}
		relType, err := PrepareRelationType(s, e.RelationType)
		if err != nil {
			return Mutation{}, err
		}
		e.RelationType = relType
		e.Sets = cleanSets(e.Sets)
		e.Props = cleanProps(e.Props)
		out.Edges = append(out.Edges, e)
	}
	for _, r := range m.DeleteEdges {
		if !validID(r.SourceID) || !validID(r.TargetID) {
			return Mutation{}, fmt.Errorf("%w: edge %q -> %q", ErrInvalidIdentifier, r.SourceID, r.TargetID)
		}
		relType, err := PrepareRelationType(s, r.RelationType)
		if err != nil {
			return Mutation{}, err
		}
		r.RelationType = relType
		out.DeleteEdges = append(out.DeleteEdges, r)
	}
	for _, id := range m.DeleteNodes {
		if !validID(id) {
			return Mutation{}, fmt.Errorf("%w: node id %q", ErrInvalidIdentifier, id)
		}
		out.DeleteNodes = append(out.DeleteNodes, id)
	}
	return out, nil
}

func cleanSets(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		if !propKeyRe.MatchString(k) {
			continue
		}
		if vals := DedupeStrings(v); len(vals) > 0 {
			out[k] = vals
		}
	}
	return out
}

// cleanProps drops reserved keys and flattens values a graph property
// cannot hold into JSON strings.
func cleanProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == "" || v == nil {
			continue
		}
		if _, ok := reservedProps[k]; ok {
			continue
		}
		if slices.Contains(SetProps, k) {
			continue
		}
		out[k] = propValue(v)
	}
	return out
}

func propValue(v any) any {
	switch val := v.(type) {
	case string, bool, int, int32, int64, float32, float64, []string, []int64, []float64:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		strs := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return jsonString(val)
			}
			strs = append(strs, s)
		}
		return strs
	default:
		return jsonString(val)
	}
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// UnionSorted merges b into a and returns the sorted union without empty
// values.
func UnionSorted(a, b []string) []string {
	out := DedupeStrings(append(slices.Clone(a), b...))
	slices.Sort(out)
	return out
}

// CopyProps returns a shallow copy of props; nil stays nil.
func CopyProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	return maps.Clone(props)
}
