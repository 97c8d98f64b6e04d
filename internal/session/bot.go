package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine/search"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
)

// BotController drives a bot seat. The personality used for a decision is a value copied
// at the start of Decide; Advance replaces it between decisions.
type BotController struct {
	selector *search.Selector
	delay    time.Duration

	mu   sync.Mutex
	pers search.Personality
	rng  *rand.Rand
}

func NewBotController(sel *search.Selector, pers search.Personality, delay time.Duration, seed int64) *BotController {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &BotController{
		selector: sel,
		delay:    delay,
		pers:     pers.Normalized(),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// NewBotSeat builds the seat descriptor for a bot opponent.
func NewBotSeat(name string, rating int) Seat {
	return Seat{PlayerID: "bot-" + uuid.NewString()[:8], Username: name, Rating: rating, Bot: true}
}

func (b *BotController) Delay() time.Duration { return b.delay }

// Personality returns the personality the next decision will use.
func (b *BotController) Personality() search.Personality {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pers
}

// Decide selects a move for p and then advances the personality.
func (b *BotController) Decide(ctx context.Context, p rules.Position) (*rules.Move, search.Decision) {
	pers := b.Personality()
	m, d := b.selector.SelectMove(ctx, p, pers)
	b.Advance()
	return m, d
}

// Advance lets the personality drift before the next decision.
func (b *BotController) Advance() {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.pers.Drift(b.rng)
	if next.Style != b.pers.Style {
		obslog.L().Debug("bot_style_drift",
			zap.String("from", string(b.pers.Style)),
			zap.String("to", string(next.Style)),
		)
	}
	b.pers = next
}
