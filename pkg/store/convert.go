package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

// NodeFromGraph converts a node payload, as carried by proposals, into an
// upsert. Set properties become Sets, name and description their dedicated
// fields, everything else Props.
func NodeFromGraph(n common.GraphNode, replace bool) NodeUpsert {
	up := NodeUpsert{
		ID:      n.ID,
		Label:   n.Label,
		Replace: replace,
		Sets:    map[string][]string{},
		Props:   map[string]any{},
	}
	for k, v := range n.Properties {
		switch {
		case k == PropName:
			up.Name = stringValue(v)
		case k == PropDescription:
			up.Description = stringValue(v)
		case slices.Contains(SetProps, k):
			up.Sets[k] = stringsValue(v)
		default:
			up.Props[k] = v
		}
	}
	return up
}

// EdgeFromGraph is NodeFromGraph for edges. A missing weight defaults to 1.
func EdgeFromGraph(e common.GraphEdge, replace bool) EdgeUpsert {
	up := EdgeUpsert{
		SourceID:     e.SourceID,
		TargetID:     e.TargetID,
		RelationType: e.RelationType,
		Weight:       1,
		Replace:      replace,
		Sets:         map[string][]string{},
		Props:        map[string]any{},
	}
	for k, v := range e.Properties {
		switch {
		case k == PropDescription:
			up.Description = stringValue(v)
		case k == PropWeight:
			if w, ok := floatValue(v); ok {
				up.Weight = w
			}
		case slices.Contains(SetProps, k):
			up.Sets[k] = stringsValue(v)
		default:
			up.Props[k] = v
		}
	}
	return up
}

func EdgeRefFromGraph(e common.GraphEdge) EdgeRef {
	return EdgeRef{SourceID: e.SourceID, TargetID: e.TargetID, RelationType: e.RelationType}
}

// MergeProps flattens the dedicated fields of an upsert back into one
// property map, the shape returned by reads.
func MergeProps(name, description string, sets map[string][]string, props map[string]any) map[string]any {
	out := maps.Clone(props)
	if out == nil {
		out = map[string]any{}
	}
	if name != "" {
		out[PropName] = name
	}
	if description != "" {
		out[PropDescription] = description
	}
	for k, v := range sets {
		out[k] = slices.Clone(v)
	}
	return out
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func stringsValue(v any) []string {
	switch val := v.(type) {
	case []string:
		return slices.Clone(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}

func floatValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
