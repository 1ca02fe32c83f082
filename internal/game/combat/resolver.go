package combat

import "math"

// RNG returns a uniformly distributed value in [0, 1).
// Sources are injected so attack outcomes can be replayed under test.
type RNG func() float64

// AttackOutcome holds the result of a single attack.
type AttackOutcome struct {
	// Damage is >= 0.
	Damage     int
	IsCritical bool
	// Roll is the raw draw in [0, 1) the outcome was derived from.
	Roll float64
}

// ResolveAttack draws once from rng and computes the damage of one attack.
// The hit is critical when roll*100 < CritChancePct, so a chance of 100 always
// crits and a chance of 0 never does.
//
// Precondition: rng must be non-nil and return values in [0, 1).
// Postcondition: Damage == floor(AttackPower * multiplier), floored at 0 and
// capped at math.MaxInt. A NaN product deals 0.
func ResolveAttack(eff EffectiveStats, rng RNG) AttackOutcome {
	r := rng()
	crit := r*100 < eff.CritChancePct
	mult := 1.0
	if crit {
		mult = eff.CritMultiplier
	}
	return AttackOutcome{Damage: damage(eff.AttackPower * mult), IsCritical: crit, Roll: r}
}

// damage floors v into [0, math.MaxInt]. Float to int conversion of an out
// of range value is implementation defined, so the bounds are checked first.
func damage(v float64) int {
	v = math.Floor(v)
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxInt:
		return math.MaxInt
	}
	return int(v)
}
