package graph

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

type stringSet map[string]struct{}

func (s stringSet) add(values ...string) {
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
}

func (s stringSet) sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

type nodeState struct {
	name        string
	label       string
	description string
	docs        stringSet
	chunks      stringSet
	types       stringSet
}

type edgeState struct {
	source      string
	target      string
	relType     string
	description string
	weight      float64
	keywords    stringSet
	docs        stringSet
	chunks      stringSet
}

// Aggregator deduplicates candidate records into nodes keyed by
// case-normalized name and edges keyed by (source, relation type, target).
//
// Node descriptions are first-non-empty-wins while edge descriptions are
// last-non-empty-wins. Edge weight is the maximum observed. Provenance sets
// only grow. A node's label is the first specific label seen and changes
// only through CorrectLabel.
//
// An Aggregator is safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	nodes map[string]*nodeState
	edges map[string]*edgeState
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		nodes: make(map[string]*nodeState),
		edges: make(map[string]*edgeState),
	}
}

// EdgeKey identifies an aggregated edge.
func EdgeKey(sourceKey, relationType, targetKey string) string {
	return sourceKey + "\x00" + relationType + "\x00" + targetKey
}

// Merge folds one record into the aggregate. It returns the record's key and
// whether the key was new. Records without a usable name return "", false.
func (a *Aggregator) Merge(rec common.Record) (string, bool) {
	switch rec.Kind {
	case common.RecordEntity:
		if rec.Entity != nil {
			return a.MergeEntity(*rec.Entity)
		}
	case common.RecordRelationship:
		if rec.Relationship != nil {
			return a.MergeRelationship(*rec.Relationship)
		}
	}
	return "", false
}

func (a *Aggregator) MergeEntity(e common.CandidateEntity) (string, bool) {
	key := catalog.NameKey(e.Name)
	if key == "" {
		return "", false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.nodes[key]
	if !ok {
		n = &nodeState{
			name:   catalog.NormalizeName(e.Name),
			label:  catalog.GenericLabel,
			docs:   stringSet{},
			chunks: stringSet{},
			types:  stringSet{},
		}
		a.nodes[key] = n
	}
	if catalog.IsGenericLabel(n.label) && !catalog.IsGenericLabel(e.TypeLabel) {
		n.label = e.TypeLabel
	}
	if n.description == "" {
		n.description = strings.TrimSpace(e.Description)
	}
	n.docs.add(e.SourcePath)
	n.chunks.add(e.ChunkID)
	n.types.add(strings.TrimSpace(e.TypeOriginal))
	return key, !ok
}

func (a *Aggregator) MergeRelationship(r common.CandidateRelationship) (string, bool) {
	src, tgt := catalog.NameKey(r.SourceName), catalog.NameKey(r.TargetName)
	if src == "" || tgt == "" {
		return "", false
	}
	relType := r.RelationType
	if relType == "" {
		relType = catalog.DefaultRelation
	}
	key := EdgeKey(src, relType, tgt)

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.edges[key]
	if !ok {
		e = &edgeState{
			source:   src,
			target:   tgt,
			relType:  relType,
			weight:   r.Weight,
			keywords: stringSet{},
			docs:     stringSet{},
			chunks:   stringSet{},
		}
		a.edges[key] = e
	}
	if r.Weight > e.weight {
		e.weight = r.Weight
	}
	if d := strings.TrimSpace(r.Description); d != "" {
		e.description = d
	}
	e.keywords.add(splitKeywords(r.RelationKeywords)...)
	e.docs.add(r.SourcePath)
	e.chunks.add(r.ChunkID)
	return key, !ok
}

func splitKeywords(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MergeFrom folds other into a, as if other's records had been merged after
// a's. other is not modified.
func (a *Aggregator) MergeFrom(other *Aggregator) {
	if other == nil || other == a {
		return
	}
	nodes, edges := other.Nodes(), other.Edges()

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, on := range nodes {
		n, ok := a.nodes[on.Key]
		if !ok {
			n = &nodeState{
				name:   on.Name,
				label:  on.Label,
				docs:   stringSet{},
				chunks: stringSet{},
				types:  stringSet{},
			}
			a.nodes[on.Key] = n
		}
		if catalog.IsGenericLabel(n.label) && !catalog.IsGenericLabel(on.Label) {
			n.label = on.Label
		}
		if n.description == "" {
			n.description = on.Description
		}
		n.docs.add(on.SourceDocPaths...)
		n.chunks.add(on.ChunkIDs...)
		n.types.add(on.AllTypeNames...)
	}

	for _, oe := range edges {
		key := EdgeKey(oe.SourceKey, oe.RelationType, oe.TargetKey)
		e, ok := a.edges[key]
		if !ok {
			e = &edgeState{
				source:   oe.SourceKey,
				target:   oe.TargetKey,
				relType:  oe.RelationType,
				weight:   oe.Weight,
				keywords: stringSet{},
				docs:     stringSet{},
				chunks:   stringSet{},
			}
			a.edges[key] = e
		}
		if oe.Weight > e.weight {
			e.weight = oe.Weight
		}
		if oe.Description != "" {
			e.description = oe.Description
		}
		e.keywords.add(oe.Keywords...)
		e.docs.add(oe.SourceDocPaths...)
		e.chunks.add(oe.ChunkIDs...)
	}
}

// CorrectLabel overrides the label of the node named name. It reports
// whether the node exists.
func (a *Aggregator) CorrectLabel(name, label string) bool {
	key := catalog.NameKey(name)
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.nodes[key]
	if !ok {
		return false
	}
	if catalog.IsGenericLabel(label) {
		label = catalog.GenericLabel
	}
	n.label = label
	return true
}

// Nodes returns all aggregated nodes sorted by key.
func (a *Aggregator) Nodes() []common.AggregatedNode {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]common.AggregatedNode, 0, len(a.nodes))
	for _, key := range slices.Sorted(maps.Keys(a.nodes)) {
		n := a.nodes[key]
		out = append(out, common.AggregatedNode{
			Key:            key,
			Name:           n.name,
			Label:          n.label,
			Description:    n.description,
			SourceDocPaths: n.docs.sorted(),
			ChunkIDs:       n.chunks.sorted(),
			AllTypeNames:   n.types.sorted(),
		})
	}
	return out
}

// Edges returns all aggregated edges sorted by (source, relation type,
// target).
func (a *Aggregator) Edges() []common.AggregatedEdge {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]common.AggregatedEdge, 0, len(a.edges))
	for _, key := range slices.Sorted(maps.Keys(a.edges)) {
		e := a.edges[key]
		out = append(out, common.AggregatedEdge{
			SourceKey:      e.source,
			TargetKey:      e.target,
			RelationType:   e.relType,
			Description:    e.description,
			Keywords:       e.keywords.sorted(),
			Weight:         e.weight,
			SourceDocPaths: e.docs.sorted(),
			ChunkIDs:       e.chunks.sorted(),
		})
	}
	return out
}

func (a *Aggregator) HasNode(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.nodes[catalog.NameKey(name)]
	return ok
}

func (a *Aggregator) HasEdge(sourceName, relationType, targetName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.edges[EdgeKey(catalog.NameKey(sourceName), relationType, catalog.NameKey(targetName))]
	return ok
}

// Len returns the number of nodes and edges.
func (a *Aggregator) Len() (nodes, edges int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nodes), len(a.edges)
}
