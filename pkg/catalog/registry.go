package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

// genericTypeKeys are type names that say nothing about the entity.
var genericTypeKeys = map[string]struct{}{
	"entity": {}, "entita": {}, "unknown": {}, "other": {}, "altro": {},
	"generic": {}, "none": {}, "node": {}, "na": {},
}

type relationMatcher struct {
	pattern string
	relType string
}

type snapshot struct {
	catalog     *Catalog
	labels      map[string]string
	dateLabels  map[string]struct{}
	dateLabel   string
	relations   []relationMatcher
	entityNames []string
	loadedAt    time.Time
}

func buildSnapshot(c *Catalog) *snapshot {
	s := &snapshot{
		catalog:    c,
		labels:     make(map[string]string),
		dateLabels: make(map[string]struct{}),
		loadedAt:   time.Now(),
	}

	for _, et := range c.EntityTypes {
		label := SanitizeLabel(et.Label)
		if label == "" {
			label = SanitizeLabel(et.Name)
		}
		if label == "" || IsGenericLabel(label) {
			continue
		}
		for _, alias := range []string{et.Name, et.DisplayName, et.Label, label} {
			key := normalizeTypeKey(alias)
			if key == "" {
				continue
			}
			if _, taken := s.labels[key]; !taken {
				s.labels[key] = label
			}
		}
		if et.IsDate {
			s.dateLabels[label] = struct{}{}
			if s.dateLabel == "" {
				s.dateLabel = label
			}
		}
		s.entityNames = append(s.entityNames, strings.TrimSpace(et.Name))
	}

	for _, rt := range c.RelationTypes {
		typ := rt.Type
		if typ == "" {
			typ = rt.Name
		}
		relType := SanitizeRelationType(typ)
		for _, p := range append([]string{typ, rt.Name}, rt.Aliases...) {
			pattern := relationPattern(p)
			if pattern == "" {
				continue
			}
			s.relations = append(s.relations, relationMatcher{pattern: pattern, relType: relType})
		}
	}
	// Longest pattern first; stable so catalog order breaks ties.
	sort.SliceStable(s.relations, func(i, j int) bool {
		return len(s.relations[i].pattern) > len(s.relations[j].pattern)
	})
	return s
}

// relationPattern uppercases s and turns separators into single spaces so
// "REFERS_TO" matches the keywords "refers to".
func relationPattern(s string) string {
	s = strings.ToUpper(foldAccents(s))
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == ',' || r == ';' || r == '/' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Registry resolves type names against the current catalog snapshot. It is
// safe for concurrent use.
type Registry struct {
	source Source
	snap   atomic.Pointer[snapshot]
}

// NewRegistry loads the initial catalog from source.
func NewRegistry(ctx context.Context, source Source) (*Registry, error) {
	r := &Registry{source: source}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry returns a registry over the built-in legal catalog.
func NewStaticRegistry() *Registry {
	r := &Registry{source: StaticSource{}}
	r.snap.Store(buildSnapshot(DefaultCatalog()))
	return r
}

// NewRegistryFromCatalog wraps an already loaded catalog.
func NewRegistryFromCatalog(c *Catalog) *Registry {
	r := &Registry{source: StaticSource{Catalog: c}}
	r.snap.Store(buildSnapshot(c))
	return r
}

// Reload loads the source again and swaps the snapshot. On failure the
// previous snapshot stays active.
func (r *Registry) Reload(ctx context.Context) error {
	c, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog from %s: %w", r.source.Name(), err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid catalog from %s: %w", r.source.Name(), err)
	}
	r.snap.Store(buildSnapshot(c))
	logger.Debug("[Catalog] Loaded type catalog",
		"source", r.source.Name(),
		"entity_types", len(c.EntityTypes),
		"relation_types", len(c.RelationTypes),
	)
	return nil
}

// Poll reloads the catalog every interval until ctx is done.
func (r *Registry) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				logger.Warn("[Catalog] Reload failed, keeping previous catalog", "err", err)
			}
		}
	}
}

// Watch reloads on change notifications when the source supports them and
// falls back to polling otherwise. It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context, fallbackInterval time.Duration) error {
	w, ok := r.source.(Watcher)
	if !ok {
		r.Poll(ctx, fallbackInterval)
		return nil
	}
	return w.Watch(ctx, func() {
		if err := r.Reload(ctx); err != nil {
			logger.Warn("[Catalog] Reload failed, keeping previous catalog", "err", err)
			return
		}
		logger.Info("[Catalog] Type catalog reloaded", "source", r.source.Name())
	})
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Catalog returns the active catalog. Callers must not modify it.
func (r *Registry) Catalog() *Catalog {
	return r.current().catalog
}

// LoadedAt returns when the active snapshot was built.
func (r *Registry) LoadedAt() time.Time {
	return r.current().loadedAt
}

// EntityTypeNames lists the entity type names in catalog order, for use in
// extraction prompts.
func (r *Registry) EntityTypeNames() []string {
	names := r.current().entityNames
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// ResolveLabel maps an extracted type name to a graph label. Unknown names
// fall back to their sanitized form; empty or generic names resolve to
// GenericLabel.
func (r *Registry) ResolveLabel(typeName string) string {
	key := normalizeTypeKey(typeName)
	if key == "" {
		return GenericLabel
	}
	if label, ok := r.current().labels[key]; ok {
		return label
	}
	if _, ok := genericTypeKeys[key]; ok {
		return GenericLabel
	}
	label := SanitizeLabel(typeName)
	if IsGenericLabel(label) {
		return GenericLabel
	}
	return label
}

// ResolveRelation maps free-form relationship keywords to a relationship
// type. The longest canonical type or alias contained in the keywords wins.
func (r *Registry) ResolveRelation(keywords string) string {
	text := relationPattern(keywords)
	if text == "" {
		return DefaultRelation
	}
	padded := " " + text + " "
	for _, m := range r.current().relations {
		if strings.Contains(padded, " "+m.pattern+" ") {
			return m.relType
		}
	}
	for _, m := range r.current().relations {
		if strings.Contains(text, m.pattern) {
			return m.relType
		}
	}
	return SanitizeRelationType(keywords)
}

// IsDateLabel reports whether nodes with label hold dates.
func (r *Registry) IsDateLabel(label string) bool {
	_, ok := r.current().dateLabels[label]
	return ok
}

// DateLabel returns the first date label of the catalog, or "" when the
// catalog has none.
func (r *Registry) DateLabel() string {
	return r.current().dateLabel
}

// SanitizeLabel delegates to the package function; it lets storage adapters
// depend on the registry alone.
func (r *Registry) SanitizeLabel(label string) string {
	if s := SanitizeLabel(label); s != "" {
		return s
	}
	return GenericLabel
}

func (r *Registry) SanitizeRelationType(relType string) string {
	return SanitizeRelationType(relType)
}

func (r *Registry) IsGenericLabel(label string) bool {
	return IsGenericLabel(label)
}
