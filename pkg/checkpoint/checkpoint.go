// Package checkpoint records which chunks have been durably committed to
// the graph so a batch run can resume where it stopped.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

// Suffix is appended to the input file name to build the checkpoint path.
const Suffix = ".processed"

// Store is a file-backed set of processed chunk ids. The whole set is
// rewritten atomically on every MarkProcessed.
type Store struct {
	mu        sync.Mutex
	path      string
	processed map[string]struct{}
}

// PathFor returns the checkpoint file used for an input file.
func PathFor(inputPath string) string {
	return inputPath + Suffix
}

// Open loads the checkpoint belonging to inputPath. A missing or unreadable
// file yields an empty store; Open never fails.
func Open(inputPath string) *Store {
	return OpenFile(PathFor(inputPath))
}

// OpenFile loads a checkpoint from an explicit path.
func OpenFile(path string) *Store {
	s := &Store{path: path, processed: make(map[string]struct{})}
	for _, id := range load(path) {
		s.processed[id] = struct{}{}
	}
	if n := len(s.processed); n > 0 {
		logger.Info("[Checkpoint] Loaded processed chunks", "path", path, "count", n)
	}
	return s
}

func load(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("[Checkpoint] Failed to read checkpoint, starting empty", "path", path, "err", err)
		}
		return nil
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		return ids
	}

	ids = nil
	if err := util.UnmarshalFlexible(string(data), &ids); err != nil {
		logger.Warn("[Checkpoint] Corrupt checkpoint, starting empty", "path", path, "err", err)
		return nil
	}
	logger.Warn("[Checkpoint] Repaired corrupt checkpoint", "path", path, "count", len(ids))
	return ids
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) IsProcessed(chunkID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[chunkID]
	return ok
}

// MarkProcessed adds chunkID to the set and persists it. The id stays in
// the in-memory set even if the write fails, so a later Flush can retry.
func (s *Store) MarkProcessed(chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[chunkID] = struct{}{}
	return s.writeLocked()
}

// All returns the processed ids in sorted order.
func (s *Store) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// Reset forgets every processed id and removes the file.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = make(map[string]struct{})
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Flush writes the current set to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

func (s *Store) sortedLocked() []string {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) writeLocked() error {
	data, err := json.Marshal(s.sortedLocked())
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeAtomic(s.path, data)
}

// writeAtomic replaces path with data via a synced temp file in the same
// directory followed by a rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
