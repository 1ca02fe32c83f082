package combat

// ModifierKind identifies which combat stat a modifier adjusts.
type ModifierKind int

const (
	ModAttackPower ModifierKind = iota + 1
	ModCritChance
	ModCritMultiplier
)

// String returns the item-effect name of the kind.
func (k ModifierKind) String() string {
	switch k {
	case ModAttackPower:
		return "attack_power"
	case ModCritChance:
		return "crit_chance"
	case ModCritMultiplier:
		return "crit_multiplier"
	default:
		return "unknown"
	}
}

// ParseModifierKind maps an item effect name to a ModifierKind.
//
// Postcondition: ok is false for effects that are not combat modifiers
// (gold_bonus, score_bonus, click_efficiency, ...).
func ParseModifierKind(effect string) (kind ModifierKind, ok bool) {
	switch effect {
	case "attack_power":
		return ModAttackPower, true
	case "crit_chance":
		return ModCritChance, true
	case "crit_multiplier":
		return ModCritMultiplier, true
	default:
		return 0, false
	}
}

// Modifier is a flat bonus from one equipped item.
type Modifier struct {
	Kind   ModifierKind
	Amount float64
}

// CombatantStats is a read-only snapshot of the attacker's stats.
type CombatantStats struct {
	// BaseAttackPower is >= 1.
	BaseAttackPower float64
	// BaseCritChance is a percentage in [0, 100].
	BaseCritChance float64
	// BaseCritMultiplier is >= 1.
	BaseCritMultiplier float64
	// Modifiers are summed per kind; order is irrelevant.
	Modifiers []Modifier
}

// EffectiveStats are base stats with every modifier applied.
type EffectiveStats struct {
	AttackPower    float64
	CritChancePct  float64
	CritMultiplier float64
}

// Resolve folds the modifiers into the base stats.
//
// Postcondition: CritChancePct is clamped to [0, 100]; the other fields are
// base plus the sum of their modifiers.
func Resolve(stats CombatantStats) EffectiveStats {
	eff := EffectiveStats{
		AttackPower:    stats.BaseAttackPower,
		CritChancePct:  stats.BaseCritChance,
		CritMultiplier: stats.BaseCritMultiplier,
	}
	for _, m := range stats.Modifiers {
		switch m.Kind {
		case ModAttackPower:
			eff.AttackPower += m.Amount
		case ModCritChance:
			eff.CritChancePct += m.Amount
		case ModCritMultiplier:
			eff.CritMultiplier += m.Amount
		}
	}
	eff.CritChancePct = clamp(eff.CritChancePct, 0, 100)
	return eff
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Combatant is the attacker as seen by a fight: the player's level for the
// dungeon gate and the stats snapshot used for damage.
type Combatant struct {
	PlayerID int64
	Level    int
	Stats    CombatantStats
}
