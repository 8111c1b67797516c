// Package badger is an embedded GraphStorage on BadgerDB. It mirrors the
// semantics of the Neo4j store and backs dry runs, local development and
// tests.
//
// Key layout (ids never contain NUL):
//
//	n\x00<id>                      node record (JSON)
//	l\x00<label>\x00<id>           label index
//	e\x00<src>\x00<rel>\x00<tgt>   edge record (JSON)
//	r\x00<tgt>\x00<rel>\x00<src>   reverse edge index
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

const sep = "\x00"

type nodeRecord struct {
	ID          string              `json:"id"`
	Label       string              `json:"label"`
	Placeholder bool                `json:"is_placeholder"`
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Sets        map[string][]string `json:"sets,omitempty"`
	Props       map[string]any      `json:"props,omitempty"`
	CreatedAt   int64               `json:"created_at"`
	UpdatedAt   int64               `json:"updated_at"`
}

type edgeRecord struct {
	SourceID     string              `json:"source_id"`
	TargetID     string              `json:"target_id"`
	RelationType string              `json:"relation_type"`
	Description  string              `json:"description,omitempty"`
	Weight       float64             `json:"weight"`
	Sets         map[string][]string `json:"sets,omitempty"`
	Props        map[string]any      `json:"props,omitempty"`
	CreatedAt    int64               `json:"created_at"`
	UpdatedAt    int64               `json:"updated_at"`
}

// Store implements store.GraphStorage on BadgerDB.
type Store struct {
	db        *badger.DB
	sanitizer store.Sanitizer
	now       func() time.Time
}

type Options struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
	// Sanitizer defaults to the catalog rules.
	Sanitizer store.Sanitizer
}

func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger store: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s := opts.Sanitizer
	if s == nil {
		s = store.DefaultSanitizer
	}
	return &Store{db: db, sanitizer: s, now: time.Now}, nil
}

func nodeKey(id string) []byte {
	return []byte("n" + sep + id)
}

func labelKey(label, id string) []byte {
	return []byte("l" + sep + label + sep + id)
}

func labelPrefix(label string) []byte {
	return []byte("l" + sep + label + sep)
}

func edgeKey(src, rel, tgt string) []byte {
	return []byte("e" + sep + src + sep + rel + sep + tgt)
}

func reverseKey(tgt, rel, src string) []byte {
	return []byte("r" + sep + tgt + sep + rel + sep + src)
}

// splitKey returns the parts after the one-letter prefix.
func splitKey(key []byte) []string {
	parts := strings.Split(string(key), sep)
	return parts[1:]
}

func (s *Store) SetupSchema(context.Context) error {
	logger.Debug("[Badger] No schema setup required")
	return nil
}

func (s *Store) UpsertNode(ctx context.Context, node store.NodeUpsert) error {
	return s.Apply(ctx, store.Mutation{Nodes: []store.NodeUpsert{node}})
}

func (s *Store) UpsertEdge(ctx context.Context, edge store.EdgeUpsert) error {
	return s.Apply(ctx, store.Mutation{Edges: []store.EdgeUpsert{edge}})
}

func (s *Store) Apply(ctx context.Context, m store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared, err := store.Prepare(m, s.sanitizer)
	if err != nil {
		return err
	}
	if prepared.Empty() {
		return nil
	}

	now := s.now().UnixMilli()
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, n := range prepared.Nodes {
			if err := upsertNode(txn, n, now); err != nil {
				return err
			}
		}
		for _, e := range prepared.Edges {
			if err := upsertEdge(txn, e, now); err != nil {
				return err
			}
		}
		for _, r := range prepared.DeleteEdges {
			if err := deleteEdge(txn, r.SourceID, r.RelationType, r.TargetID); err != nil {
				return err
			}
		}
		for _, id := range prepared.DeleteNodes {
			if err := deleteNode(txn, id); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return store.Transient(err)
	}
	if err != nil {
		return fmt.Errorf("apply mutation: %w", err)
	}
	return nil
}

func getJSON[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func unionSets(dst map[string][]string, src map[string][]string) map[string][]string {
	if dst == nil {
		dst = map[string][]string{}
	}
	for k, v := range src {
		dst[k] = store.UnionSorted(dst[k], v)
	}
	return dst
}

func mergeProps(dst map[string]any, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = map[string]any{}
	}
	maps.Copy(dst, src)
	return dst
}

func upsertNode(txn *badger.Txn, n store.NodeUpsert, now int64) error {
	rec, err := getJSON[nodeRecord](txn, nodeKey(n.ID))
	if err != nil {
		return err
	}
	oldLabel := ""
	if rec == nil {
		rec = &nodeRecord{ID: n.ID, Label: catalog.GenericLabel, CreatedAt: now}
	} else {
		oldLabel = rec.Label
	}

	switch {
	case n.Replace:
		rec.Label = n.Label
	case rec.Label == catalog.GenericLabel:
		rec.Label = n.Label
	}
	rec.Placeholder = false
	if n.Name != "" && (rec.Name == "" || n.Replace) {
		rec.Name = n.Name
	}
	if n.Description != "" && (rec.Description == "" || n.Replace) {
		rec.Description = n.Description
	}
	rec.Sets = unionSets(rec.Sets, n.Sets)
	rec.Props = mergeProps(rec.Props, n.Props)
	rec.UpdatedAt = now

	if oldLabel != "" && oldLabel != rec.Label {
		if err := txn.Delete(labelKey(oldLabel, n.ID)); err != nil {
			return err
		}
	}
	if err := txn.Set(labelKey(rec.Label, n.ID), []byte{}); err != nil {
		return err
	}
	return setJSON(txn, nodeKey(n.ID), rec)
}

// ensurePlaceholder creates a generic node for id unless one exists.
func ensurePlaceholder(txn *badger.Txn, id string, now int64) error {
	_, err := txn.Get(nodeKey(id))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	rec := nodeRecord{ID: id, Label: catalog.GenericLabel, Placeholder: true, CreatedAt: now, UpdatedAt: now}
	if err := txn.Set(labelKey(rec.Label, id), []byte{}); err != nil {
		return err
	}
	return setJSON(txn, nodeKey(id), rec)
}

func upsertEdge(txn *badger.Txn, e store.EdgeUpsert, now int64) error {
	if err := ensurePlaceholder(txn, e.SourceID, now); err != nil {
		return err
	}
	if err := ensurePlaceholder(txn, e.TargetID, now); err != nil {
		return err
	}

	key := edgeKey(e.SourceID, e.RelationType, e.TargetID)
	rec, err := getJSON[edgeRecord](txn, key)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &edgeRecord{
			SourceID:     e.SourceID,
			TargetID:     e.TargetID,
			RelationType: e.RelationType,
			Weight:       e.Weight,
			CreatedAt:    now,
		}
	}
	if e.Replace || e.Weight > rec.Weight {
		rec.Weight = e.Weight
	}
	if e.Replace || e.Description != "" {
		rec.Description = e.Description
	}
	rec.Sets = unionSets(rec.Sets, e.Sets)
	rec.Props = mergeProps(rec.Props, e.Props)
	rec.UpdatedAt = now

	if err := txn.Set(reverseKey(e.TargetID, e.RelationType, e.SourceID), []byte{}); err != nil {
		return err
	}
	return setJSON(txn, key, rec)
}

func deleteEdge(txn *badger.Txn, src, rel, tgt string) error {
	if err := txn.Delete(edgeKey(src, rel, tgt)); err != nil {
		return err
	}
	return txn.Delete(reverseKey(tgt, rel, src))
}

func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func deleteNode(txn *badger.Txn, id string) error {
	rec, err := getJSON[nodeRecord](txn, nodeKey(id))
	if err != nil || rec == nil {
		return err
	}
	for _, k := range collectKeys(txn, []byte("e"+sep+id+sep)) {
		parts := splitKey(k)
		if err := deleteEdge(txn, parts[0], parts[1], parts[2]); err != nil {
			return err
		}
	}
	for _, k := range collectKeys(txn, []byte("r"+sep+id+sep)) {
		parts := splitKey(k)
		if err := deleteEdge(txn, parts[2], parts[1], parts[0]); err != nil {
			return err
		}
	}
	if err := txn.Delete(labelKey(rec.Label, id)); err != nil {
		return err
	}
	return txn.Delete(nodeKey(id))
}

func toGraphNode(rec *nodeRecord) common.GraphNode {
	props := store.MergeProps(rec.Name, rec.Description, rec.Sets, rec.Props)
	props[store.PropPlaceholder] = rec.Placeholder
	return common.GraphNode{ID: rec.ID, Label: rec.Label, Properties: props}
}

func toGraphEdge(rec *edgeRecord) common.GraphEdge {
	props := store.MergeProps("", rec.Description, rec.Sets, rec.Props)
	props[store.PropWeight] = rec.Weight
	return common.GraphEdge{
		SourceID:     rec.SourceID,
		TargetID:     rec.TargetID,
		RelationType: rec.RelationType,
		Properties:   props,
	}
}

func (s *Store) GetNeighborhood(ctx context.Context, seedID string) (*common.Neighborhood, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out common.Neighborhood
	err := s.db.View(func(txn *badger.Txn) error {
		seed, err := getJSON[nodeRecord](txn, nodeKey(seedID))
		if err != nil {
			return err
		}
		if seed == nil {
			return store.ErrNodeNotFound
		}
		out.Nodes = append(out.Nodes, toGraphNode(seed))

		edgeKeys := map[string][]byte{}
		for _, k := range collectKeys(txn, []byte("e"+sep+seedID+sep)) {
			edgeKeys[string(k)] = k
		}
		for _, k := range collectKeys(txn, []byte("r"+sep+seedID+sep)) {
			parts := splitKey(k)
			ek := edgeKey(parts[2], parts[1], parts[0])
			edgeKeys[string(ek)] = ek
		}

		neighbors := map[string]struct{}{}
		for _, name := range slices.Sorted(maps.Keys(edgeKeys)) {
			rec, err := getJSON[edgeRecord](txn, edgeKeys[name])
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			out.Edges = append(out.Edges, toGraphEdge(rec))
			for _, id := range []string{rec.SourceID, rec.TargetID} {
				if id != seedID {
					neighbors[id] = struct{}{}
				}
			}
		}
		for _, id := range slices.Sorted(maps.Keys(neighbors)) {
			rec, err := getJSON[nodeRecord](txn, nodeKey(id))
			if err != nil {
				return err
			}
			if rec != nil {
				out.Nodes = append(out.Nodes, toGraphNode(rec))
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNodeNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrNodeNotFound, seedID)
		}
		return nil, fmt.Errorf("get neighborhood: %w", err)
	}
	return &out, nil
}

func (s *Store) ListNodeIDs(ctx context.Context, label string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := store.PrepareLabel(s.sanitizer, label)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	err = s.db.View(func(txn *badger.Txn) error {
		for _, k := range collectKeys(txn, labelPrefix(clean)) {
			ids = append(ids, splitKey(k)[1])
		}
		return nil
	})
	return ids, err
}

func (s *Store) ListLabels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range collectKeys(txn, []byte("l"+sep)) {
			seen[splitKey(k)[0]] = struct{}{}
		}
		return nil
	})
	return slices.Sorted(maps.Keys(seen)), err
}

func (s *Store) ListRelationshipTypes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range collectKeys(txn, []byte("e"+sep)) {
			seen[splitKey(k)[1]] = struct{}{}
		}
		return nil
	})
	return slices.Sorted(maps.Keys(seen)), err
}

func (s *Store) DropAll(context.Context) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("drop all: %w", err)
	}
	logger.Info("[Badger] Dropped all graph data")
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// badgerLogger forwards badger warnings and errors to the global logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any) {
	logger.Error("[Badger] " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Warningf(f string, v ...any) {
	logger.Warn("[Badger] " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}

var _ store.GraphStorage = (*Store)(nil)
