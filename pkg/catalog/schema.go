package catalog

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// JSONSchema returns the JSON Schema of a catalog file.
func JSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Catalog{})
	schema.Title = "lexgraph type catalog"
	return json.MarshalIndent(schema, "", "  ")
}
