package neo4j

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// Identifiers reaching these builders have been through store.Prepare and
// are validated again here before being quoted.

func quote(ident string) string {
	return "`" + ident + "`"
}

func schemaStatements() []string {
	return []string{
		`CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX node_name IF NOT EXISTS FOR (n:Node) ON (n.name)`,
		`CREATE INDEX node_placeholder IF NOT EXISTS FOR (n:Node) ON (n.is_placeholder)`,
	}
}

// setUnion renders "<v>.<key> = <v>.<key> + new values" for every set key.
func setUnion(v string, keys []string) string {
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, ",\n    %[1]s.%[2]s = reduce(acc = coalesce(%[1]s.%[2]s, []), x IN coalesce(row.sets.%[2]s, []) | CASE WHEN x IN acc THEN acc ELSE acc + x END)", v, quote(k))
	}
	return b.String()
}

func setKeys[T any](rows []T, sets func(T) map[string][]string) []string {
	keys := map[string]struct{}{}
	for _, r := range rows {
		for k := range sets(r) {
			keys[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(keys))
}

// nodeUpsertQuery merges nodes without replacing existing values. The
// specific label is only applied to nodes that do not carry one yet.
func nodeUpsertQuery(label string, keys []string) (string, error) {
	if !catalog.ValidLabel(label) || label == catalog.AnchorLabel {
		return "", fmt.Errorf("%w: label %q", store.ErrInvalidIdentifier, label)
	}
	q := `UNWIND $rows AS row
MERGE (n:Node {id: row.id})
ON CREATE SET n:Entity, n.created_at = timestamp()
SET n += row.props,
    n.name = CASE WHEN coalesce(n.name, '') = '' AND row.name <> '' THEN row.name ELSE n.name END,
    n.description = CASE WHEN coalesce(n.description, '') = '' AND row.description <> '' THEN row.description ELSE n.description END,
    n.is_placeholder = false,
    n.updated_at = timestamp()` + setUnion("n", keys)
	if label == catalog.GenericLabel {
		return q, nil
	}
	q += `
WITH n
WHERE all(l IN labels(n) WHERE l IN ['Node', 'Entity'])
SET n:` + quote(label) + `
REMOVE n:Entity`
	return q, nil
}

// nodeReplaceQuery overwrites a single node's label, name and description.
// current holds the labels the node has now.
func nodeReplaceQuery(label string, current []string, keys []string) (string, error) {
	if !catalog.ValidLabel(label) || label == catalog.AnchorLabel {
		return "", fmt.Errorf("%w: label %q", store.ErrInvalidIdentifier, label)
	}
	q := `WITH $row AS row
MERGE (n:Node {id: row.id})
ON CREATE SET n.created_at = timestamp()
SET n += row.props,
    n.name = CASE WHEN row.name <> '' THEN row.name ELSE n.name END,
    n.description = CASE WHEN row.description <> '' THEN row.description ELSE n.description END,
    n.is_placeholder = false,
    n.updated_at = timestamp()` + setUnion("n", keys)

	var remove []string
	for _, l := range current {
		if l == catalog.AnchorLabel || l == label || !catalog.ValidLabel(l) {
			continue
		}
		remove = append(remove, quote(l))
	}
	if len(remove) > 0 {
		q += "\nREMOVE n:" + strings.Join(remove, ":")
	}
	q += "\nSET n:" + quote(label)
	return q, nil
}

func edgeUpsertQuery(relType string, keys []string) (string, error) {
	if !catalog.ValidRelationType(relType) {
		return "", fmt.Errorf("%w: relationship type %q", store.ErrInvalidIdentifier, relType)
	}
	return `UNWIND $rows AS row
MERGE (s:Node {id: row.source})
ON CREATE SET s:Entity, s.is_placeholder = true, s.created_at = timestamp()
MERGE (t:Node {id: row.target})
ON CREATE SET t:Entity, t.is_placeholder = true, t.created_at = timestamp()
MERGE (s)-[r:` + quote(relType) + `]->(t)
ON CREATE SET r.created_at = timestamp(), r.weight = row.weight
SET r += row.props,
    r.weight = CASE WHEN row.replace OR r.weight IS NULL OR row.weight > r.weight THEN row.weight ELSE r.weight END,
    r.description = CASE WHEN row.replace OR row.description <> '' THEN row.description ELSE r.description END,
    r.updated_at = timestamp()` + setUnion("r", keys), nil
}

func edgeDeleteQuery(relType string) (string, error) {
	if !catalog.ValidRelationType(relType) {
		return "", fmt.Errorf("%w: relationship type %q", store.ErrInvalidIdentifier, relType)
	}
	return `UNWIND $rows AS row
MATCH (:Node {id: row.source})-[r:` + quote(relType) + `]->(:Node {id: row.target})
DELETE r`, nil
}

const nodeDeleteQuery = `UNWIND $ids AS id
MATCH (n:Node {id: id})
DETACH DELETE n`

const nodeLabelsQuery = `MATCH (n:Node {id: $id}) RETURN labels(n) AS labels`

const neighborhoodQuery = `MATCH (s:Node {id: $id})
OPTIONAL MATCH (s)-[r]-(m:Node)
RETURN s, collect(DISTINCT r) AS rels, collect(DISTINCT m) AS nbrs`

func listNodeIDsQuery(label string) (string, error) {
	if !catalog.ValidLabel(label) {
		return "", fmt.Errorf("%w: label %q", store.ErrInvalidIdentifier, label)
	}
	return `MATCH (n:` + quote(label) + `) RETURN n.id AS id ORDER BY id`, nil
}

const listLabelsQuery = `CALL db.labels() YIELD label
WHERE label <> 'Node'
RETURN label ORDER BY label`

const listRelationshipTypesQuery = `CALL db.relationshipTypes() YIELD relationshipType
RETURN relationshipType ORDER BY relationshipType`

const dropBatchQuery = `MATCH (n) WITH n LIMIT $limit DETACH DELETE n RETURN count(*) AS deleted`

func nodeRow(n store.NodeUpsert) map[string]any {
	return map[string]any{
		"id":          n.ID,
		"name":        n.Name,
		"description": n.Description,
		"props":       n.Props,
		"sets":        setsParam(n.Sets),
	}
}

func edgeRow(e store.EdgeUpsert) map[string]any {
	return map[string]any{
		"source":      e.SourceID,
		"target":      e.TargetID,
		"description": e.Description,
		"weight":      e.Weight,
		"replace":     e.Replace,
		"props":       e.Props,
		"sets":        setsParam(e.Sets),
	}
}

func setsParam(sets map[string][]string) map[string]any {
	out := make(map[string]any, len(sets))
	for k, v := range sets {
		out[k] = v
	}
	return out
}

// groupBy partitions items by key, keeping first-seen key order.
func groupBy[T any](items []T, key func(T) string) ([]string, map[string][]T) {
	var order []string
	groups := map[string][]T{}
	for _, it := range items {
		k := key(it)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}
	return order, groups
}
