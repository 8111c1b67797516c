package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSource reads the catalog from the entity_types and relation_types
// tables.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (p *PgSource) Name() string { return "postgres" }

func (p *PgSource) Load(ctx context.Context) (*Catalog, error) {
	c := &Catalog{Version: "postgres"}

	rows, err := p.pool.Query(ctx, `
		SELECT name, COALESCE(label, ''), COALESCE(display_name, ''),
		       COALESCE(color, ''), COALESCE(description, ''), is_date, metadata_schema
		FROM entity_types
		ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("query entity types: %w", err)
	}
	for rows.Next() {
		var et EntityType
		var schema []byte
		if err := rows.Scan(&et.Name, &et.Label, &et.DisplayName, &et.Color, &et.Description, &et.IsDate, &schema); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		if len(schema) > 0 {
			if err := json.Unmarshal(schema, &et.MetadataSchema); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode metadata schema of %s: %w", et.Name, err)
			}
		}
		c.EntityTypes = append(c.EntityTypes, et)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read entity types: %w", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT name, COALESCE(relation_type, ''), COALESCE(aliases, '{}'), COALESCE(description, '')
		FROM relation_types
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query relation types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt RelationType
		if err := rows.Scan(&rt.Name, &rt.Type, &rt.Aliases, &rt.Description); err != nil {
			return nil, fmt.Errorf("scan relation type: %w", err)
		}
		c.RelationTypes = append(c.RelationTypes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read relation types: %w", err)
	}
	return c, nil
}
