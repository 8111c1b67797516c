package validation

import (
	"fmt"

	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// BuildProposalMutation translates a proposal into one store mutation.
//
//   - add merges the proposed items into the graph like an extraction would.
//   - modify overwrites the proposed items and deletes original items that
//     are missing from the proposal.
//   - delete removes every listed item, taken from ProposedData or, when
//     that is empty, from OriginalData.
func BuildProposalMutation(p common.Proposal) (store.Mutation, error) {
	var m store.Mutation
	switch p.ProposalType {
	case common.ProposalAdd:
		m = upserts(p.ProposedData, false)
	case common.ProposalModify:
		m = upserts(p.ProposedData, true)
		m.DeleteEdges, m.DeleteNodes = removed(p.OriginalData, p.ProposedData)
	case common.ProposalDelete:
		target := p.ProposedData
		if len(target.Nodes) == 0 && len(target.Edges) == 0 {
			target = p.OriginalData
		}
		for _, e := range target.Edges {
			m.DeleteEdges = append(m.DeleteEdges, store.EdgeRefFromGraph(e))
		}
		for _, n := range target.Nodes {
			m.DeleteNodes = append(m.DeleteNodes, n.ID)
		}
	default:
		return store.Mutation{}, fmt.Errorf("%w: unknown proposal type %q", ErrInvalidProposal, p.ProposalType)
	}

	if m.Empty() {
		return store.Mutation{}, fmt.Errorf("%w: proposal changes nothing", ErrInvalidProposal)
	}
	if _, err := store.Prepare(m, store.DefaultSanitizer); err != nil {
		return store.Mutation{}, fmt.Errorf("%w: %w", ErrInvalidProposal, err)
	}
	return m, nil
}

func upserts(cs common.ChangeSet, replace bool) store.Mutation {
	var m store.Mutation
	for _, n := range cs.Nodes {
		m.Nodes = append(m.Nodes, store.NodeFromGraph(n, replace))
	}
	for _, e := range cs.Edges {
		m.Edges = append(m.Edges, store.EdgeFromGraph(e, replace))
	}
	return m
}

// removed lists the items of original that proposed no longer contains.
// Relation types are compared in their sanitized form.
func removed(original, proposed common.ChangeSet) ([]store.EdgeRef, []string) {
	keep := make(map[string]struct{}, len(proposed.Edges))
	for _, e := range proposed.Edges {
		keep[edgeKey(e)] = struct{}{}
	}
	var edges []store.EdgeRef
	for _, e := range original.Edges {
		if _, ok := keep[edgeKey(e)]; !ok {
			edges = append(edges, store.EdgeRefFromGraph(e))
		}
	}

	keepNodes := make(map[string]struct{}, len(proposed.Nodes))
	for _, n := range proposed.Nodes {
		keepNodes[n.ID] = struct{}{}
	}
	var nodes []string
	for _, n := range original.Nodes {
		if _, ok := keepNodes[n.ID]; !ok {
			nodes = append(nodes, n.ID)
		}
	}
	return edges, nodes
}

func edgeKey(e common.GraphEdge) string {
	ref := store.EdgeRefFromGraph(e)
	ref.RelationType = catalog.SanitizeRelationType(ref.RelationType)
	return ref.Key()
}

// touchedNodes lists the node ids a mutation writes or deletes.
func touchedNodes(m store.Mutation) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, n := range m.Nodes {
		add(n.ID)
	}
	for _, e := range m.Edges {
		add(e.SourceID)
		add(e.TargetID)
	}
	for _, e := range m.DeleteEdges {
		add(e.SourceID)
		add(e.TargetID)
	}
	for _, id := range m.DeleteNodes {
		add(id)
	}
	return out
}
