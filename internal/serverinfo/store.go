// Package serverinfo caches the media server identity and the per-library
// reclaimed sizes reported by the backend.
package serverinfo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eargollo/reclaim/internal/backend"
)

// Source is the part of the backend the store reads.
type Source interface {
	ServerInfo(ctx context.Context) (backend.ServerInfo, error)
	DeletedSizes(ctx context.Context) (map[string]int64, error)
}

// LibrarySize is the number of bytes reclaimed in one library.
type LibrarySize struct {
	Library string `json:"library"`
	Bytes   int64  `json:"bytes"`
}

// Store holds the last successfully loaded values. Failed loads keep the
// previous snapshot.
type Store struct {
	src Source

	mu     sync.RWMutex
	info   backend.ServerInfo
	loaded bool
	sizes  map[string]int64
}

// New creates an empty Store.
func New(src Source) *Store {
	return &Store{src: src, sizes: map[string]int64{}}
}

// Load fetches the server name and URL.
func (s *Store) Load(ctx context.Context) error {
	info, err := s.src.ServerInfo(ctx)
	if err != nil {
		return fmt.Errorf("load server info: %w", err)
	}
	s.mu.Lock()
	s.info = info
	s.loaded = true
	s.mu.Unlock()
	slog.Debug("server info loaded", "name", info.Name, "url", info.URL)
	return nil
}

// LoadDeletedSizes fetches the bytes reclaimed per library.
func (s *Store) LoadDeletedSizes(ctx context.Context) error {
	sizes, err := s.src.DeletedSizes(ctx)
	if err != nil {
		return fmt.Errorf("load deleted sizes: %w", err)
	}
	next := make(map[string]int64, len(sizes))
	for k, v := range sizes {
		next[k] = v
	}
	s.mu.Lock()
	s.sizes = next
	s.mu.Unlock()
	return nil
}

// Info returns the server identity and whether it was ever loaded.
func (s *Store) Info() (backend.ServerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info, s.loaded
}

// DeletedSizes returns the reclaimed bytes per library, largest first.
func (s *Store) DeletedSizes() []LibrarySize {
	s.mu.RLock()
	out := make([]LibrarySize, 0, len(s.sizes))
	for lib, n := range s.sizes {
		out = append(out, LibrarySize{Library: lib, Bytes: n})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Library < out[j].Library
	})
	return out
}

// TotalDeleted sums DeletedSizes.
func (s *Store) TotalDeleted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, n := range s.sizes {
		total += n
	}
	return total
}
