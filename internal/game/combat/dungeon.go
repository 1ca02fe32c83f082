package combat

import (
	"errors"
	"fmt"
)

// Dungeon is the immutable definition of a dungeon and its boss, supplied by
// the content catalog once per selection.
type Dungeon struct {
	ID                  int64
	Level               int
	Name                string
	Description         string
	RequiredPlayerLevel int
	TimeLimitSeconds    int
	BossID              int64
	BossName            string
	BossMaxHealth       int
	BossGoldReward      int
	BossScoreReward     int
}

// Validate checks that every required field is present and in range.
//
// Postcondition: Returns nil, or an error wrapping ErrInvalidDungeonDefinition
// that lists every violation.
func (d Dungeon) Validate() error {
	var errs []error
	if d.ID <= 0 {
		errs = append(errs, fmt.Errorf("id must be > 0, got %d", d.ID))
	}
	if d.Level < 1 {
		errs = append(errs, fmt.Errorf("level must be >= 1, got %d", d.Level))
	}
	if d.RequiredPlayerLevel < 0 {
		errs = append(errs, fmt.Errorf("required_player_level must be >= 0, got %d", d.RequiredPlayerLevel))
	}
	if d.TimeLimitSeconds <= 0 {
		errs = append(errs, fmt.Errorf("time_limit_seconds must be > 0, got %d", d.TimeLimitSeconds))
	}
	if d.BossID <= 0 {
		errs = append(errs, fmt.Errorf("boss_id must be > 0, got %d", d.BossID))
	}
	if d.BossMaxHealth <= 0 {
		errs = append(errs, fmt.Errorf("boss_max_health must be > 0, got %d", d.BossMaxHealth))
	}
	if d.BossGoldReward < 0 {
		errs = append(errs, fmt.Errorf("boss_gold_reward must be >= 0, got %d", d.BossGoldReward))
	}
	if d.BossScoreReward < 0 {
		errs = append(errs, fmt.Errorf("boss_score_reward must be >= 0, got %d", d.BossScoreReward))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDungeonDefinition, errors.Join(errs...))
	}
	return nil
}
