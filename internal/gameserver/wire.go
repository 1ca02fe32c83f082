package gameserver

import (
	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

// The wire maps below are shared by the gRPC service (as structpb.Struct)
// and the websocket feed (as JSON), so both transports carry identical keys.

func dungeonMap(d combat.Dungeon) map[string]any {
	return map[string]any{
		"id":                    d.ID,
		"level":                 d.Level,
		"name":                  d.Name,
		"description":           d.Description,
		"required_player_level": d.RequiredPlayerLevel,
		"time_limit_seconds":    d.TimeLimitSeconds,
		"boss": map[string]any{
			"id":           d.BossID,
			"name":         d.BossName,
			"max_health":   d.BossMaxHealth,
			"gold_reward":  d.BossGoldReward,
			"score_reward": d.BossScoreReward,
		},
	}
}

func viewMap(v FightView) map[string]any {
	return map[string]any{
		"fight_id":        v.FightID,
		"player_id":       v.PlayerID,
		"selected":        v.Selected,
		"dungeon_id":      v.DungeonID,
		"dungeon_name":    v.DungeonName,
		"boss_name":       v.BossName,
		"phase":           v.Phase.String(),
		"boss_health":     v.BossHealth,
		"boss_max_health": v.BossMaxHealth,
		"time_remaining":  v.TimeRemaining,
		"time_limit":      v.TimeLimit,
		"generation":      v.Generation,
		"clicks":          v.Clicks,
	}
}

func attackMap(a combat.AttackOutcome) map[string]any {
	return map[string]any{
		"damage":      a.Damage,
		"is_critical": a.IsCritical,
	}
}

func outcomeMap(o combat.FightOutcome) map[string]any {
	return map[string]any{
		"dungeon_id":      o.DungeonID,
		"dungeon_level":   o.DungeonLevel,
		"boss_id":         o.BossID,
		"result":          o.Result.String(),
		"gold_reward":     o.GoldReward,
		"score_reward":    o.ScoreReward,
		"clicks":          o.Clicks,
		"elapsed_seconds": o.ElapsedSeconds,
	}
}

func eventMap(e FightEvent) map[string]any {
	m := map[string]any{
		"kind":            e.Kind.String(),
		"fight_id":        e.FightID,
		"player_id":       e.PlayerID,
		"generation":      e.Generation,
		"dungeon_id":      e.DungeonID,
		"phase":           e.Phase.String(),
		"boss_health":     e.BossHealth,
		"boss_max_health": e.BossMaxHealth,
		"time_remaining":  e.TimeRemaining,
	}
	if e.Attack != nil {
		m["attack"] = attackMap(*e.Attack)
	}
	if e.Outcome != nil {
		m["outcome"] = outcomeMap(*e.Outcome)
	}
	if e.Narrative != "" {
		m["narrative"] = e.Narrative
	}
	return m
}

// snapshotEvent opens every watch stream with the current state.
func snapshotEvent(v FightView) map[string]any {
	m := viewMap(v)
	m["kind"] = "snapshot"
	return m
}
