package graph

import (
	"math"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

const (
	minEntityAttrs       = 4
	minRelationshipAttrs = 5
	defaultWeight        = 1.0
)

// RecordParser splits delimited extraction output into candidate records.
type RecordParser struct {
	Delimiters ai.Delimiters
}

// ParseRecords parses raw with the given delimiters and the default
// completion delimiter. It never fails: malformed records are skipped.
func ParseRecords(raw, recordDelimiter, tupleDelimiter string) []common.Record {
	p := RecordParser{Delimiters: ai.Delimiters{
		Record:     recordDelimiter,
		Tuple:      tupleDelimiter,
		Completion: ai.DefaultDelimiters().Completion,
	}}
	return p.Parse(raw)
}

// Parse returns the entity and relationship records found in raw. Names,
// descriptions and keywords are trimmed but otherwise returned as written;
// type resolution and name normalization happen later.
func (p RecordParser) Parse(raw string) []common.Record {
	d := p.Delimiters
	if d.Completion != "" {
		raw = strings.ReplaceAll(raw, d.Completion, "")
	}
	if strings.TrimSpace(raw) == "" || d.Tuple == "" {
		return nil
	}

	var segments []string
	if d.Record != "" {
		segments = strings.Split(raw, d.Record)
	} else {
		segments = []string{raw}
	}

	records := make([]common.Record, 0, len(segments))
	for _, seg := range segments {
		for _, line := range splitRecordLines(seg) {
			if rec, ok := parseRecord(line, d.Tuple); ok {
				records = append(records, rec)
			}
		}
	}
	return records
}

// splitRecordLines handles output where the model separated records with
// newlines instead of the record delimiter.
func splitRecordLines(seg string) []string {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return nil
	}
	if !strings.Contains(seg, "\n(") {
		return []string{seg}
	}
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(seg, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "(") && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(trimmed)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func cleanAttr(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

func parseRecord(s, tupleDelimiter string) (common.Record, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		s = strings.TrimPrefix(s, "(")
		s = strings.TrimSuffix(strings.TrimSpace(s), ")")
	}
	if s == "" {
		return common.Record{}, false
	}

	parts := strings.Split(s, tupleDelimiter)
	attrs := make([]string, 0, len(parts))
	for _, part := range parts {
		if a := cleanAttr(part); a != "" {
			attrs = append(attrs, a)
		}
	}
	if len(attrs) == 0 {
		return common.Record{}, false
	}

	tag := strings.ToLower(attrs[0])
	switch {
	case strings.Contains(tag, "relationship"):
		if len(attrs) < minRelationshipAttrs {
			logger.Warn("[Graph] Skipping truncated relationship record", "attributes", len(attrs), "record", s)
			return common.Record{}, false
		}
		return common.RelationshipRecord(common.CandidateRelationship{
			SourceName:       attrs[1],
			TargetName:       attrs[2],
			Description:      attrs[3],
			RelationKeywords: attrs[4],
			Weight:           parseWeight(attrs[5:]),
		}), true
	case strings.Contains(tag, "entity"):
		if len(attrs) < minEntityAttrs {
			logger.Warn("[Graph] Skipping truncated entity record", "attributes", len(attrs), "record", s)
			return common.Record{}, false
		}
		return common.EntityRecord(common.CandidateEntity{
			Name:         attrs[1],
			TypeOriginal: attrs[2],
			Description:  attrs[3],
		}), true
	default:
		logger.Debug("[Graph] Ignoring untagged output", "record", s)
		return common.Record{}, false
	}
}

func parseWeight(rest []string) float64 {
	if len(rest) == 0 {
		return defaultWeight
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(rest[0]), 64)
	if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
		return defaultWeight
	}
	return w
}
