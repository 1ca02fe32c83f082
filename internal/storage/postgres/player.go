package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
	"github.com/cory-johannsen/dungeonclicker/internal/game/progression"
)

// ErrUsernameTaken is returned when creating a player with a name already in use.
var ErrUsernameTaken = errors.New("username already taken")

// ErrItemNameTaken is returned when creating an item with a name already in use.
var ErrItemNameTaken = errors.New("item name already taken")

const playerColumns = `id, username, level, score, gold, attack_power, crit_chance, crit_multiplier,
	max_dungeon_level, total_clicks, total_bosses_defeated`

// Item is a purchasable item whose effect may modify combat stats.
type Item struct {
	ID          int64
	Name        string
	Description string
	Price       int
	// Effect is the item effect name, e.g. "attack_power" or "gold_bonus".
	Effect string
	Value  float64
}

// PlayerRepository provides player persistence. It implements
// progression.Store and supplies fight combatant snapshots.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// CreatePlayer inserts a player with default stats.
//
// Precondition: username must be non-empty.
// Postcondition: Returns the created player, or ErrUsernameTaken on duplicate.
func (r *PlayerRepository) CreatePlayer(ctx context.Context, username string) (progression.Player, error) {
	p, err := scanPlayer(r.db.QueryRow(ctx,
		`INSERT INTO players (username) VALUES ($1) RETURNING `+playerColumns, username))
	if err != nil {
		if isDuplicateKeyError(err) {
			return progression.Player{}, ErrUsernameTaken
		}
		return progression.Player{}, fmt.Errorf("inserting player: %w", err)
	}
	return p, nil
}

// GetPlayer retrieves a player by primary key.
//
// Postcondition: Returns the player or an error wrapping progression.ErrPlayerNotFound.
func (r *PlayerRepository) GetPlayer(ctx context.Context, id int64) (progression.Player, error) {
	p, err := scanPlayer(r.db.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progression.Player{}, fmt.Errorf("player %d: %w", id, progression.ErrPlayerNotFound)
		}
		return progression.Player{}, fmt.Errorf("querying player %d: %w", id, err)
	}
	return p, nil
}

// SetLevel updates a player's level.
//
// Postcondition: Returns an error wrapping progression.ErrPlayerNotFound when no row matched.
func (r *PlayerRepository) SetLevel(ctx context.Context, id int64, level int) error {
	tag, err := r.db.Exec(ctx, `UPDATE players SET level = $2, last_active = NOW() WHERE id = $1`, id, level)
	if err != nil {
		return fmt.Errorf("updating player %d level: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %d: %w", id, progression.ErrPlayerNotFound)
	}
	return nil
}

// Combatant returns the player's level and stats snapshot. Equipped items
// whose effect is a combat stat become modifiers; other effects are skipped.
//
// Postcondition: Returns an error wrapping progression.ErrPlayerNotFound for unknown players.
func (r *PlayerRepository) Combatant(ctx context.Context, id int64) (combat.Combatant, error) {
	p, err := r.GetPlayer(ctx, id)
	if err != nil {
		return combat.Combatant{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT i.effect, i.value
		FROM player_items pi
		JOIN items i ON i.id = pi.item_id
		WHERE pi.player_id = $1 AND pi.is_equipped
		ORDER BY pi.id ASC`, id)
	if err != nil {
		return combat.Combatant{}, fmt.Errorf("listing equipped items for player %d: %w", id, err)
	}
	defer rows.Close()

	var mods []combat.Modifier
	for rows.Next() {
		var effect string
		var value float64
		if err := rows.Scan(&effect, &value); err != nil {
			return combat.Combatant{}, fmt.Errorf("scanning equipped item row: %w", err)
		}
		kind, ok := combat.ParseModifierKind(effect)
		if !ok {
			continue
		}
		mods = append(mods, combat.Modifier{Kind: kind, Amount: value})
	}
	if err := rows.Err(); err != nil {
		return combat.Combatant{}, err
	}

	return combat.Combatant{
		PlayerID: p.ID,
		Level:    p.Level,
		Stats: combat.CombatantStats{
			BaseAttackPower:    p.AttackPower,
			BaseCritChance:     p.CritChance,
			BaseCritMultiplier: p.CritMultiplier,
			Modifiers:          mods,
		},
	}, nil
}

// ApplyOutcome implements progression.Store with a single UPDATE, so
// concurrent outcomes for the same player never lose an increment.
//
// Postcondition: Returns the updated player or an error wrapping progression.ErrPlayerNotFound.
func (r *PlayerRepository) ApplyOutcome(ctx context.Context, id int64, d progression.Delta) (progression.Player, error) {
	p, err := scanPlayer(r.db.QueryRow(ctx, `
		UPDATE players SET
			gold = gold + $2,
			score = score + $3,
			total_clicks = total_clicks + $4,
			total_bosses_defeated = total_bosses_defeated + $5,
			max_dungeon_level = GREATEST(max_dungeon_level, $6),
			last_active = NOW()
		WHERE id = $1
		RETURNING `+playerColumns,
		id, d.Gold, d.Score, d.Clicks, d.BossesDefeated, d.DungeonLevel,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progression.Player{}, fmt.Errorf("player %d: %w", id, progression.ErrPlayerNotFound)
		}
		return progression.Player{}, fmt.Errorf("applying outcome to player %d: %w", id, err)
	}
	return p, nil
}

// CreateItem inserts an item definition.
//
// Precondition: it.Name and it.Effect must be non-empty.
// Postcondition: Returns the item with ID set, or ErrItemNameTaken on duplicate.
func (r *PlayerRepository) CreateItem(ctx context.Context, it Item) (Item, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO items (name, description, price, effect, value)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		it.Name, it.Description, it.Price, it.Effect, it.Value,
	).Scan(&it.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Item{}, ErrItemNameTaken
		}
		return Item{}, fmt.Errorf("inserting item: %w", err)
	}
	return it, nil
}

// GrantItem adds an item to a player's inventory.
//
// Precondition: playerID and itemID must reference existing rows.
// Postcondition: Returns the new inventory row ID.
func (r *PlayerRepository) GrantItem(ctx context.Context, playerID, itemID int64, equipped bool) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO player_items (player_id, item_id, is_equipped)
		VALUES ($1, $2, $3)
		RETURNING id`,
		playerID, itemID, equipped,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("granting item %d to player %d: %w", itemID, playerID, err)
	}
	return id, nil
}

// SetEquipped toggles the equipped flag of an inventory row owned by playerID.
//
// Postcondition: Returns an error when no matching row exists.
func (r *PlayerRepository) SetEquipped(ctx context.Context, playerID, inventoryID int64, equipped bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE player_items SET is_equipped = $3 WHERE id = $1 AND player_id = $2`,
		inventoryID, playerID, equipped)
	if err != nil {
		return fmt.Errorf("updating inventory row %d: %w", inventoryID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory row %d not found for player %d", inventoryID, playerID)
	}
	return nil
}

func scanPlayer(row pgx.Row) (progression.Player, error) {
	var p progression.Player
	err := row.Scan(
		&p.ID, &p.Username, &p.Level, &p.Score, &p.Gold,
		&p.AttackPower, &p.CritChance, &p.CritMultiplier,
		&p.MaxDungeonLevel, &p.TotalClicks, &p.TotalBossesDefeated,
	)
	return p, err
}
