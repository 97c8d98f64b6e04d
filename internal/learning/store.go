// Package learning keeps per-position memories of moves that worked out badly or well for the bot.
package learning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/park285/chess-arena/internal/rules"
)

// Store records moves by canonical position key. Moves are UCI strings.
type Store interface {
	RecordBad(ctx context.Context, key, move string) error
	RecordGood(ctx context.Context, key, move string) error
	Bad(ctx context.Context, key string) ([]string, error)
	Good(ctx context.Context, key string) ([]string, error)
}

// PositionKey drops the move counters from a FEN so transpositions share memories.
func PositionKey(fen string) string { return rules.PositionKey(fen) }

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	bad  map[string][]string
	good map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bad: make(map[string][]string), good: make(map[string][]string)}
}

func (s *MemoryStore) RecordBad(_ context.Context, key, move string) error {
	s.add(s.bad, key, move)
	return nil
}

func (s *MemoryStore) RecordGood(_ context.Context, key, move string) error {
	s.add(s.good, key, move)
	return nil
}

func (s *MemoryStore) Bad(_ context.Context, key string) ([]string, error) {
	return s.list(s.bad, key), nil
}

func (s *MemoryStore) Good(_ context.Context, key string) ([]string, error) {
	return s.list(s.good, key), nil
}

func (s *MemoryStore) add(m map[string][]string, key, move string) {
	key = PositionKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(m[key], move) {
		return
	}
	m[key] = append(m[key], move)
}

func (s *MemoryStore) list(m map[string][]string, key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), m[PositionKey(key)]...)
}
