// Package progression applies finished fights to persistent player records:
// rewards, click totals, bosses defeated and the deepest dungeon reached.
package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

// ErrPlayerNotFound is returned when no player has the requested ID.
var ErrPlayerNotFound = errors.New("player not found")

// Player is the persistent progression record of one player.
type Player struct {
	ID                  int64
	Username            string
	Level               int
	Score               int64
	Gold                int64
	AttackPower         float64
	CritChance          float64
	CritMultiplier      float64
	MaxDungeonLevel     int
	TotalClicks         int64
	TotalBossesDefeated int
}

// Delta is the change one fight makes to a Player.
type Delta struct {
	Gold           int64
	Score          int64
	Clicks         int64
	BossesDefeated int
	// DungeonLevel raises MaxDungeonLevel when greater; zero leaves it alone.
	DungeonLevel int
}

// DeltaFor computes the progression change of a finished fight.
//
// Postcondition: Rewards, the boss count and the dungeon level are set only
// for a victory; clicks are counted for both results.
func DeltaFor(o combat.FightOutcome) Delta {
	d := Delta{Clicks: int64(o.Clicks)}
	if o.Result == combat.ResultVictory {
		d.Gold = int64(o.GoldReward)
		d.Score = int64(o.ScoreReward)
		d.BossesDefeated = 1
		d.DungeonLevel = o.DungeonLevel
	}
	return d
}

// Apply returns p with d applied.
func (p Player) Apply(d Delta) Player {
	p.Gold += d.Gold
	p.Score += d.Score
	p.TotalClicks += d.Clicks
	p.TotalBossesDefeated += d.BossesDefeated
	if d.DungeonLevel > p.MaxDungeonLevel {
		p.MaxDungeonLevel = d.DungeonLevel
	}
	return p
}

// Store persists progression changes atomically.
type Store interface {
	// ApplyOutcome applies d to the player and returns the updated record,
	// or an error wrapping ErrPlayerNotFound.
	ApplyOutcome(ctx context.Context, playerID int64, d Delta) (Player, error)
}

// Service records fight outcomes against a Store.
type Service struct {
	store   Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewService creates a Service.
//
// Precondition: store and logger must be non-nil; timeout > 0.
func NewService(store Store, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{store: store, timeout: timeout, logger: logger}
}

// RecordOutcome applies a finished fight to the player's record.
//
// Precondition: outcome comes from a fight that reached PhaseVictory or PhaseDefeat.
// Postcondition: Returns an error wrapping ErrPlayerNotFound for unknown players;
// the store is not called for an empty delta.
func (s *Service) RecordOutcome(ctx context.Context, playerID int64, outcome combat.FightOutcome) error {
	d := DeltaFor(outcome)
	if d == (Delta{}) {
		s.logger.Debug("empty fight outcome skipped", zap.Int64("player_id", playerID))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.store.ApplyOutcome(ctx, playerID, d)
	if err != nil {
		return fmt.Errorf("recording outcome for player %d: %w", playerID, err)
	}
	s.logger.Info("fight outcome recorded",
		zap.Int64("player_id", playerID),
		zap.Int64("dungeon_id", outcome.DungeonID),
		zap.Stringer("result", outcome.Result),
		zap.Int64("gold", p.Gold),
		zap.Int64("score", p.Score),
		zap.Int("max_dungeon_level", p.MaxDungeonLevel),
	)
	return nil
}

// MemoryStore is a Store kept in memory, for tests and database-less runs.
// It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	players map[int64]Player
}

// NewMemoryStore creates a MemoryStore holding players.
func NewMemoryStore(players ...Player) *MemoryStore {
	m := &MemoryStore{players: make(map[int64]Player, len(players))}
	for _, p := range players {
		m.players[p.ID] = p
	}
	return m
}

// ApplyOutcome implements Store.
func (m *MemoryStore) ApplyOutcome(_ context.Context, playerID int64, d Delta) (Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return Player{}, fmt.Errorf("player %d: %w", playerID, ErrPlayerNotFound)
	}
	p = p.Apply(d)
	m.players[playerID] = p
	return p, nil
}

// Player returns the stored record.
func (m *MemoryStore) Player(playerID int64) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	return p, ok
}

// Combatant returns the player's fight snapshot without equipment modifiers.
func (m *MemoryStore) Combatant(_ context.Context, playerID int64) (combat.Combatant, error) {
	p, ok := m.Player(playerID)
	if !ok {
		return combat.Combatant{}, fmt.Errorf("player %d: %w", playerID, ErrPlayerNotFound)
	}
	return combat.Combatant{
		PlayerID: p.ID,
		Level:    p.Level,
		Stats: combat.CombatantStats{
			BaseAttackPower:    p.AttackPower,
			BaseCritChance:     p.CritChance,
			BaseCritMultiplier: p.CritMultiplier,
		},
	}, nil
}
