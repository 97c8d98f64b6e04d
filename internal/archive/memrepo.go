package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/chess-arena/pkg/chessdto"
)

// memrepo keeps everything in process; used when DATABASE_URL is unset.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	games    map[string]*chessdto.GameRecord   // game id -> record
	byPlayer map[string][]*chessdto.GameRecord // player id -> records, latest last
	profiles map[string]*chessdto.PlayerProfile
}

func NewMemoryRepository() Repository {
	return &memrepo{
		games:    make(map[string]*chessdto.GameRecord),
		byPlayer: make(map[string][]*chessdto.GameRecord),
		profiles: make(map[string]*chessdto.PlayerProfile),
	}
}

func (m *memrepo) SaveResult(_ context.Context, rec *chessdto.GameRecord) (int64, error) {
	if rec == nil {
		return 0, ErrDuplicateGame
	}
	key := strings.TrimSpace(rec.GameID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	rec.ID = m.nextID
	stored := *rec
	m.games[key] = &stored
	for _, p := range []chessdto.Player{rec.White, rec.Black} {
		if p.IsBot || p.ID == "" {
			continue
		}
		m.byPlayer[p.ID] = append(m.byPlayer[p.ID], &stored)
	}
	return stored.ID, nil
}

func (m *memrepo) GetGame(_ context.Context, gameID string) (*chessdto.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(gameID)]
	if !ok {
		return nil, nil
	}
	out := *g
	return &out, nil
}

func (m *memrepo) RecentGames(_ context.Context, playerID string, limit int) ([]*chessdto.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*chessdto.GameRecord, 0, len(m.byPlayer[playerID]))
	for _, g := range m.byPlayer[playerID] {
		out := *g
		items = append(items, &out)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetProfile(_ context.Context, playerID string) (*chessdto.PlayerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[strings.TrimSpace(playerID)]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (m *memrepo) UpsertProfile(_ context.Context, p *chessdto.PlayerProfile) error {
	if p == nil {
		return nil
	}
	stored := *p
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.LastPlayedAt
	}
	stored.UpdatedAt = stored.LastPlayedAt
	m.mu.Lock()
	m.profiles[strings.TrimSpace(p.PlayerID)] = &stored
	m.mu.Unlock()
	return nil
}

func (m *memrepo) Close() error { return nil }
