package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

// chunkResult is what the gleaning loop produced for one chunk.
type chunkResult struct {
	graph  *Aggregator
	rounds int
}

// extractChunk runs the initial extraction and up to maxGleaning continue
// rounds. Gleaning stops early once a round adds neither a new entity nor a
// new relationship.
//
// A failed initial round fails the chunk. A failed continue round ends
// gleaning with what was collected, unless ctx is done, in which case the
// chunk fails so it is retried on resume.
func (g *GraphClient) extractChunk(ctx context.Context, chunk common.Chunk) (*chunkResult, error) {
	prompt := ai.BuildExtractionPrompt(chunk.Text, g.registry.EntityTypeNames(), g.delimiters)
	raw, err := g.generator.Extract(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("initial extraction: %w", err)
	}

	res := &chunkResult{graph: NewAggregator(), rounds: 1}
	added := g.mergeOutput(res.graph, raw, chunk)
	history := ai.NewConversation(prompt).WithAssistant(raw)

	for round := 0; round < g.maxGleaning && added > 0; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		history = history.WithUser(ai.BuildContinuePrompt(g.delimiters))
		raw, err := g.generator.Continue(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("[Graph] Gleaning round failed, keeping collected records", "chunk", chunk.ChunkID, "round", res.rounds+1, "err", err)
			break
		}
		res.rounds++
		history = history.WithAssistant(raw)
		added = g.mergeOutput(res.graph, raw, chunk)
		logger.Debug("[Graph] Gleaning round finished", "chunk", chunk.ChunkID, "round", res.rounds, "new", added)
	}
	return res, nil
}

// mergeOutput parses raw, normalizes each record for chunk and merges it
// into agg. It returns how many new entity or relationship keys were added.
func (g *GraphClient) mergeOutput(agg *Aggregator, raw string, chunk common.Chunk) int {
	added := 0
	for _, rec := range g.parser.Parse(raw) {
		rec, ok := g.normalizeRecord(rec, chunk)
		if !ok {
			continue
		}
		if _, isNew := agg.Merge(rec); isNew {
			added++
		}
	}
	return added
}

// normalizeRecord resolves types through the registry, cleans names and
// attaches chunk provenance. Names that are entirely a date are rewritten to
// ISO form so entity records and relationship endpoints agree.
func (g *GraphClient) normalizeRecord(rec common.Record, chunk common.Chunk) (common.Record, bool) {
	switch rec.Kind {
	case common.RecordEntity:
		e := *rec.Entity
		e.Name = catalog.NormalizeName(e.Name)
		if e.Name == "" {
			return common.Record{}, false
		}
		e.TypeOriginal = strings.TrimSpace(catalog.CleanText(e.TypeOriginal))
		e.Description = catalog.CleanText(e.Description)
		e.TypeLabel = g.registry.ResolveLabel(e.TypeOriginal)
		if iso, ok := catalog.NormalizeDate(e.Name); ok {
			e.Name = iso
			if catalog.IsGenericLabel(e.TypeLabel) {
				if label := g.registry.DateLabel(); label != "" {
					e.TypeLabel = label
				}
			}
		}
		e.SourcePath = chunk.SourcePath
		e.ChunkID = chunk.ChunkID
		return common.EntityRecord(e), true

	case common.RecordRelationship:
		r := *rec.Relationship
		r.SourceName = normalizeEndpoint(r.SourceName)
		r.TargetName = normalizeEndpoint(r.TargetName)
		if r.SourceName == "" || r.TargetName == "" {
			return common.Record{}, false
		}
		r.Description = catalog.CleanText(r.Description)
		r.RelationKeywords = catalog.CleanText(r.RelationKeywords)
		r.RelationType = g.registry.ResolveRelation(r.RelationKeywords)
		r.SourcePath = chunk.SourcePath
		r.ChunkID = chunk.ChunkID
		return common.RelationshipRecord(r), true
	}
	return common.Record{}, false
}

func normalizeEndpoint(name string) string {
	name = catalog.NormalizeName(name)
	if iso, ok := catalog.NormalizeDate(name); ok {
		return iso
	}
	return name
}
