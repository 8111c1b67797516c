package loader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

const maxLineBytes = 64 << 20

// LoadChunks fetches and parses the chunk file at raw.
func LoadChunks(ctx context.Context, l FileLoader, raw string) ([]common.Chunk, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	data, err := l.GetFileText(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", loc, err)
	}
	chunks, err := ParseChunks(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", loc, err)
	}
	logger.Info("[Loader] Loaded chunks", "input", loc.String(), "chunks", len(chunks))
	return chunks, nil
}

// ParseChunks decodes JSON Lines. Broken lines are repaired where possible
// and skipped with a warning otherwise, as are lines without chunk_id or
// text and repeated chunk ids.
func ParseChunks(data []byte) ([]common.Chunk, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var chunks []common.Chunk
	seen := map[string]struct{}{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var c common.Chunk
		if err := util.UnmarshalFlexible(line, &c); err != nil {
			logger.Warn("[Loader] Skipping malformed line", "line", lineNo, "err", err)
			continue
		}
		c.ChunkID = strings.TrimSpace(c.ChunkID)
		if c.ChunkID == "" || strings.TrimSpace(c.Text) == "" {
			logger.Warn("[Loader] Skipping line without chunk_id or text", "line", lineNo)
			continue
		}
		if _, dup := seen[c.ChunkID]; dup {
			logger.Warn("[Loader] Skipping duplicate chunk", "line", lineNo, "chunk", c.ChunkID)
			continue
		}
		seen[c.ChunkID] = struct{}{}
		chunks = append(chunks, c)
	}
	if err := sc.Err(); err != nil {
		return chunks, err
	}
	return chunks, nil
}
