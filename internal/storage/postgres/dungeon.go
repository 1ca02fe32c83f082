package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
	"github.com/cory-johannsen/dungeonclicker/internal/game/dungeon"
)

const selectDungeon = `
	SELECT d.id, d.level, d.name, d.description, d.required_player_level, d.time_limit_seconds,
	       b.id, b.name, b.max_health, b.gold_reward, b.score_reward
	FROM dungeons d
	JOIN bosses b ON b.dungeon_id = d.id`

// DungeonRepository stores dungeon and boss definitions.
// It implements dungeon.Repository.
type DungeonRepository struct {
	db *pgxpool.Pool
}

// NewDungeonRepository creates a DungeonRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewDungeonRepository(db *pgxpool.Pool) *DungeonRepository {
	return &DungeonRepository{db: db}
}

// GetDungeon retrieves a dungeon and its boss by dungeon ID.
//
// Precondition: id must be > 0.
// Postcondition: Returns the dungeon or an error wrapping dungeon.ErrDungeonNotFound.
func (r *DungeonRepository) GetDungeon(ctx context.Context, id int64) (combat.Dungeon, error) {
	d, err := scanDungeon(r.db.QueryRow(ctx, selectDungeon+` WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return combat.Dungeon{}, fmt.Errorf("dungeon %d: %w", id, dungeon.ErrDungeonNotFound)
		}
		return combat.Dungeon{}, fmt.Errorf("querying dungeon %d: %w", id, err)
	}
	return d, nil
}

// ListDungeons returns every dungeon that has a boss, ordered by level.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *DungeonRepository) ListDungeons(ctx context.Context) ([]combat.Dungeon, error) {
	rows, err := r.db.Query(ctx, selectDungeon+` ORDER BY d.level ASC, d.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing dungeons: %w", err)
	}
	defer rows.Close()

	out := make([]combat.Dungeon, 0)
	for rows.Next() {
		d, err := scanDungeon(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning dungeon row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDungeon inserts or replaces a dungeon and its boss in one transaction.
//
// Precondition: d must pass Validate.
// Postcondition: Returns an error wrapping combat.ErrInvalidDungeonDefinition
// without touching the database when d is invalid.
func (r *DungeonRepository) UpsertDungeon(ctx context.Context, d combat.Dungeon) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("upserting dungeon %d: %w", d.ID, err)
	}
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO dungeons (id, level, name, description, required_player_level, time_limit_seconds)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				level = EXCLUDED.level,
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				required_player_level = EXCLUDED.required_player_level,
				time_limit_seconds = EXCLUDED.time_limit_seconds,
				updated_at = NOW()`,
			d.ID, d.Level, d.Name, d.Description, d.RequiredPlayerLevel, d.TimeLimitSeconds,
		)
		if err != nil {
			return fmt.Errorf("upserting dungeon %d: %w", d.ID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bosses (id, dungeon_id, name, max_health, gold_reward, score_reward)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				dungeon_id = EXCLUDED.dungeon_id,
				name = EXCLUDED.name,
				max_health = EXCLUDED.max_health,
				gold_reward = EXCLUDED.gold_reward,
				score_reward = EXCLUDED.score_reward`,
			d.BossID, d.ID, d.BossName, d.BossMaxHealth, d.BossGoldReward, d.BossScoreReward,
		)
		if err != nil {
			return fmt.Errorf("upserting boss %d: %w", d.BossID, err)
		}
		return nil
	})
}

func scanDungeon(row pgx.Row) (combat.Dungeon, error) {
	var d combat.Dungeon
	err := row.Scan(
		&d.ID, &d.Level, &d.Name, &d.Description, &d.RequiredPlayerLevel, &d.TimeLimitSeconds,
		&d.BossID, &d.BossName, &d.BossMaxHealth, &d.BossGoldReward, &d.BossScoreReward,
	)
	return d, err
}
