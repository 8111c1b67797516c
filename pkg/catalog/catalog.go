// Package catalog maps the free-form type names produced during extraction
// to the labels and relationship types used in the graph.
//
// A Registry holds an immutable snapshot of a Catalog loaded from a Source.
// Reloading swaps the snapshot atomically, so resolution never observes a
// half-updated catalog.
package catalog

import (
	"context"
	"fmt"
)

const (
	// GenericLabel is carried by nodes whose type is unknown.
	GenericLabel = "Entity"
	// AnchorLabel is carried by every node and backs the id constraint.
	AnchorLabel = "Node"
	// DefaultRelation is used when keywords sanitize to nothing.
	DefaultRelation = "RELATED_TO"
)

// EntityType describes one kind of node.
type EntityType struct {
	Name           string         `json:"name" yaml:"name" jsonschema:"required,description=Type name as used in extraction prompts"`
	Label          string         `json:"label,omitempty" yaml:"label,omitempty" jsonschema:"description=Graph label, derived from name when empty"`
	DisplayName    string         `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Color          string         `json:"color,omitempty" yaml:"color,omitempty" jsonschema:"pattern=^#[0-9A-Fa-f]{6}$"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	IsDate         bool           `json:"is_date,omitempty" yaml:"is_date,omitempty" jsonschema:"description=Names of this type are normalized to ISO dates"`
	MetadataSchema map[string]any `json:"metadata_schema,omitempty" yaml:"metadata_schema,omitempty"`
}

// RelationType describes one canonical relationship type. Keywords match
// when they contain Type or one of the Aliases.
type RelationType struct {
	Name        string   `json:"name" yaml:"name" jsonschema:"required"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty" jsonschema:"description=Relationship type, derived from name when empty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Catalog is the serialized form of the type catalog.
type Catalog struct {
	Version       string         `json:"version,omitempty" yaml:"version,omitempty"`
	EntityTypes   []EntityType   `json:"entity_types" yaml:"entity_types"`
	RelationTypes []RelationType `json:"relation_types" yaml:"relation_types"`
}

// Validate reports duplicate or unusable entries.
func (c *Catalog) Validate() error {
	seen := make(map[string]string)
	for _, et := range c.EntityTypes {
		key := normalizeTypeKey(et.Name)
		if key == "" {
			return fmt.Errorf("entity type %q has an empty name", et.Name)
		}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("entity type %q duplicates %q", et.Name, prev)
		}
		seen[key] = et.Name
	}
	rels := make(map[string]string)
	for _, rt := range c.RelationTypes {
		typ := rt.Type
		if typ == "" {
			typ = rt.Name
		}
		sanitized := SanitizeRelationType(typ)
		if sanitized == DefaultRelation && normalizeTypeKey(typ) == "" {
			return fmt.Errorf("relation type %q has an empty name", rt.Name)
		}
		if prev, ok := rels[sanitized]; ok {
			return fmt.Errorf("relation type %q duplicates %q", rt.Name, prev)
		}
		rels[sanitized] = rt.Name
	}
	return nil
}

// Source loads a catalog.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
	Name() string
}

// Watcher is implemented by sources that can notify about changes.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}
