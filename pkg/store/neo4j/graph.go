package neo4j

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

func (s *Store) SetupSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	var firstErr error
	for _, q := range schemaStatements() {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			logger.Warn("[Neo4j] Schema statement failed", "query", q, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Store) UpsertNode(ctx context.Context, node store.NodeUpsert) error {
	return s.Apply(ctx, store.Mutation{Nodes: []store.NodeUpsert{node}})
}

func (s *Store) UpsertEdge(ctx context.Context, edge store.EdgeUpsert) error {
	return s.Apply(ctx, store.Mutation{Edges: []store.EdgeUpsert{edge}})
}

func (s *Store) Apply(ctx context.Context, m store.Mutation) error {
	prepared, err := store.Prepare(m, s.sanitizer)
	if err != nil {
		return err
	}
	if prepared.Empty() {
		return nil
	}

	err = s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := s.upsertNodes(ctx, tx, prepared.Nodes); err != nil {
			return fmt.Errorf("upsert nodes: %w", err)
		}
		if err := s.upsertEdges(ctx, tx, prepared.Edges); err != nil {
			return fmt.Errorf("upsert edges: %w", err)
		}
		if err := s.deleteEdges(ctx, tx, prepared.DeleteEdges); err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		if len(prepared.DeleteNodes) > 0 {
			if err := run(ctx, tx, nodeDeleteQuery, map[string]any{"ids": prepared.DeleteNodes}); err != nil {
				return fmt.Errorf("delete nodes: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply mutation: %w", err)
	}
	return nil
}

func (s *Store) upsertNodes(ctx context.Context, tx neo4j.ManagedTransaction, nodes []store.NodeUpsert) error {
	var merge, replace []store.NodeUpsert
	for _, n := range nodes {
		if n.Replace {
			replace = append(replace, n)
		} else {
			merge = append(merge, n)
		}
	}

	order, groups := groupBy(merge, func(n store.NodeUpsert) string { return n.Label })
	for _, label := range order {
		rows := groups[label]
		q, err := nodeUpsertQuery(label, setKeys(rows, func(n store.NodeUpsert) map[string][]string { return n.Sets }))
		if err != nil {
			return err
		}
		err = store.ChunkRange(len(rows), s.batchSize, func(start, end int) error {
			params := make([]map[string]any, 0, end-start)
			for _, n := range rows[start:end] {
				params = append(params, nodeRow(n))
			}
			return run(ctx, tx, q, map[string]any{"rows": params})
		})
		if err != nil {
			return err
		}
	}

	for _, n := range replace {
		current, err := nodeLabels(ctx, tx, n.ID)
		if err != nil {
			return err
		}
		q, err := nodeReplaceQuery(n.Label, current, slices.Sorted(maps.Keys(n.Sets)))
		if err != nil {
			return err
		}
		if err := run(ctx, tx, q, map[string]any{"row": nodeRow(n)}); err != nil {
			return err
		}
	}
	return nil
}

func nodeLabels(ctx context.Context, tx neo4j.ManagedTransaction, id string) ([]string, error) {
	res, err := tx.Run(ctx, nodeLabelsQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	raw, _ := records[0].Get("labels")
	return toStrings(raw), nil
}

func (s *Store) upsertEdges(ctx context.Context, tx neo4j.ManagedTransaction, edges []store.EdgeUpsert) error {
	order, groups := groupBy(edges, func(e store.EdgeUpsert) string { return e.RelationType })
	for _, relType := range order {
		rows := groups[relType]
		q, err := edgeUpsertQuery(relType, setKeys(rows, func(e store.EdgeUpsert) map[string][]string { return e.Sets }))
		if err != nil {
			return err
		}
		err = store.ChunkRange(len(rows), s.batchSize, func(start, end int) error {
			params := make([]map[string]any, 0, end-start)
			for _, e := range rows[start:end] {
				params = append(params, edgeRow(e))
			}
			return run(ctx, tx, q, map[string]any{"rows": params})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteEdges(ctx context.Context, tx neo4j.ManagedTransaction, refs []store.EdgeRef) error {
	order, groups := groupBy(refs, func(r store.EdgeRef) string { return r.RelationType })
	for _, relType := range order {
		q, err := edgeDeleteQuery(relType)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(groups[relType]))
		for _, r := range groups[relType] {
			rows = append(rows, map[string]any{"source": r.SourceID, "target": r.TargetID})
		}
		if err := run(ctx, tx, q, map[string]any{"rows": rows}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetNeighborhood(ctx context.Context, seedID string) (*common.Neighborhood, error) {
	out, err := read(ctx, s, func(ctx context.Context, tx neo4j.ManagedTransaction) (*common.Neighborhood, error) {
		res, err := tx.Run(ctx, neighborhoodQuery, map[string]any{"id": seedID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, store.ErrNodeNotFound
		}
		rec := records[0]

		seedRaw, _ := rec.Get("s")
		seed, ok := seedRaw.(neo4j.Node)
		if !ok {
			return nil, store.ErrNodeNotFound
		}
		ids := map[string]string{seed.ElementId: nodeID(seed)}
		n := &common.Neighborhood{Nodes: []common.GraphNode{toGraphNode(seed)}}

		nbrsRaw, _ := rec.Get("nbrs")
		nbrs, _ := nbrsRaw.([]any)
		for _, raw := range nbrs {
			node, ok := raw.(neo4j.Node)
			if !ok || node.ElementId == seed.ElementId {
				continue
			}
			ids[node.ElementId] = nodeID(node)
			n.Nodes = append(n.Nodes, toGraphNode(node))
		}
		slices.SortFunc(n.Nodes[1:], func(a, b common.GraphNode) int { return strings.Compare(a.ID, b.ID) })

		relsRaw, _ := rec.Get("rels")
		rels, _ := relsRaw.([]any)
		for _, raw := range rels {
			r, ok := raw.(neo4j.Relationship)
			if !ok {
				continue
			}
			n.Edges = append(n.Edges, common.GraphEdge{
				SourceID:     ids[r.StartElementId],
				TargetID:     ids[r.EndElementId],
				RelationType: r.Type,
				Properties:   normalizeProps(r.Props),
			})
		}
		slices.SortFunc(n.Edges, func(a, b common.GraphEdge) int {
			return strings.Compare(a.SourceID+"\x00"+a.RelationType+"\x00"+a.TargetID, b.SourceID+"\x00"+b.RelationType+"\x00"+b.TargetID)
		})
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get neighborhood %q: %w", seedID, err)
	}
	return out, nil
}

func (s *Store) ListNodeIDs(ctx context.Context, label string) ([]string, error) {
	clean, err := store.PrepareLabel(s.sanitizer, label)
	if err != nil {
		return nil, err
	}
	q, err := listNodeIDsQuery(clean)
	if err != nil {
		return nil, err
	}
	return s.listStrings(ctx, q, "id")
}

func (s *Store) ListLabels(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, listLabelsQuery, "label")
}

func (s *Store) ListRelationshipTypes(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, listRelationshipTypesQuery, "relationshipType")
}

func (s *Store) listStrings(ctx context.Context, q, key string) ([]string, error) {
	return read(ctx, s, func(ctx context.Context, tx neo4j.ManagedTransaction) ([]string, error) {
		res, err := tx.Run(ctx, q, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(records))
		for _, r := range records {
			v, _ := r.Get(key)
			if str, ok := v.(string); ok {
				out = append(out, str)
			}
		}
		return out, nil
	})
}

// DropAll deletes in batches so large graphs do not exceed the transaction
// memory limit.
func (s *Store) DropAll(ctx context.Context) error {
	total := int64(0)
	for {
		var deleted int64
		err := s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
			res, err := tx.Run(ctx, dropBatchQuery, map[string]any{"limit": 10000})
			if err != nil {
				return err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return err
			}
			v, _ := rec.Get("deleted")
			deleted, _ = v.(int64)
			return nil
		})
		if err != nil {
			return fmt.Errorf("drop all: %w", err)
		}
		total += deleted
		if deleted == 0 {
			break
		}
	}
	logger.Info("[Neo4j] Dropped all graph data", "nodes", total)
	return nil
}

func nodeID(n neo4j.Node) string {
	id, _ := n.Props[store.PropID].(string)
	return id
}

func toGraphNode(n neo4j.Node) common.GraphNode {
	label := catalog.GenericLabel
	labels := slices.Clone(n.Labels)
	slices.Sort(labels)
	for _, l := range labels {
		if l != catalog.AnchorLabel && l != catalog.GenericLabel {
			label = l
			break
		}
	}
	props := normalizeProps(n.Props)
	delete(props, store.PropID)
	return common.GraphNode{ID: nodeID(n), Label: label, Properties: props}
}

// normalizeProps turns driver lists of strings into []string so reads look
// the same across backends. Write timestamps are bookkeeping and are left
// out, so repeating an upsert does not change what is read back.
func normalizeProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == store.PropCreatedAt || k == store.PropUpdatedAt {
			continue
		}
		if list, ok := v.([]any); ok {
			if strs := toStrings(list); len(strs) == len(list) {
				out[k] = strs
				continue
			}
		}
		out[k] = v
	}
	return out
}

func toStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
