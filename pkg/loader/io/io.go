package io

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/OFFIS-RIT/lexgraph/pkg/loader"
)

// IOFileLoader reads chunk files from the local filesystem. Contents are
// cached per path.
type IOFileLoader struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewIOFileLoader() *IOFileLoader {
	return &IOFileLoader{
		cache: make(map[string][]byte),
	}
}

// GetFileText reads the file at loc.Path.
func (l *IOFileLoader) GetFileText(ctx context.Context, loc loader.Location) ([]byte, error) {
	if loc.IsS3() {
		return nil, fmt.Errorf("%s is not a local file", loc)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := loc.Path

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		result, err := os.ReadFile(loc.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
