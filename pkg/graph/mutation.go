package graph

import (
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// BuildMutation converts an aggregate into the store mutation committing
// it. Node ids are the case-normalized entity names, so the same entity
// seen in different chunks or runs maps to the same node.
func BuildMutation(agg *Aggregator) store.Mutation {
	nodes := agg.Nodes()
	edges := agg.Edges()

	m := store.Mutation{
		Nodes: make([]store.NodeUpsert, 0, len(nodes)),
		Edges: make([]store.EdgeUpsert, 0, len(edges)),
	}
	for _, n := range nodes {
		m.Nodes = append(m.Nodes, store.NodeUpsert{
			ID:          n.Key,
			Label:       n.Label,
			Name:        n.Name,
			Description: n.Description,
			Sets: map[string][]string{
				store.PropSourceDocPaths: n.SourceDocPaths,
				store.PropChunkIDs:       n.ChunkIDs,
				store.PropTypeNames:      n.AllTypeNames,
			},
		})
	}
	for _, e := range edges {
		m.Edges = append(m.Edges, store.EdgeUpsert{
			SourceID:     e.SourceKey,
			TargetID:     e.TargetKey,
			RelationType: e.RelationType,
			Description:  e.Description,
			Weight:       e.Weight,
			Sets: map[string][]string{
				store.PropSourceDocPaths: e.SourceDocPaths,
				store.PropChunkIDs:       e.ChunkIDs,
				store.PropKeywords:       e.Keywords,
			},
		})
	}
	return m
}
