// Package combat implements the boss fight engine: stat resolution, damage
// resolution, the fight countdown timer and the per-fight session state machine.
package combat

import (
	"errors"
	"fmt"
)

// Phase is the discrete state of a fight session.
type Phase int

const (
	PhaseSelect Phase = iota
	PhaseFighting
	PhaseVictory
	PhaseDefeat
)

// String returns the lowercase phase label used on the wire.
func (p Phase) String() string {
	switch p {
	case PhaseSelect:
		return "select"
	case PhaseFighting:
		return "fighting"
	case PhaseVictory:
		return "victory"
	case PhaseDefeat:
		return "defeat"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a fight.
func (p Phase) Terminal() bool {
	return p == PhaseVictory || p == PhaseDefeat
}

// allowedTransitions is the complete phase graph. Select→Select is the
// re-selection edge used by SelectDungeon.
var allowedTransitions = map[Phase][]Phase{
	PhaseSelect:   {PhaseSelect, PhaseFighting},
	PhaseFighting: {PhaseVictory, PhaseDefeat, PhaseSelect},
	PhaseVictory:  {PhaseSelect},
	PhaseDefeat:   {PhaseSelect},
}

// CanTransition reports whether the phase graph has an edge from → to.
//
// Postcondition: Returns true iff to is listed as a successor of from.
func CanTransition(from, to Phase) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Result is the final result of a fight.
type Result int

const (
	ResultVictory Result = iota + 1
	ResultDefeat
)

// String returns a human-readable result label.
func (r Result) String() string {
	switch r {
	case ResultVictory:
		return "victory"
	case ResultDefeat:
		return "defeat"
	default:
		return "unknown"
	}
}

// ErrInvalidDungeonDefinition is returned by SelectDungeon when the definition
// is malformed. The previously selected fight is left untouched.
var ErrInvalidDungeonDefinition = errors.New("invalid dungeon definition")

// ErrInvalidStateTransition is returned when an operation is attempted from a
// phase that does not permit it. Session state is unchanged.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrStaleTimerSignal marks a timer callback that belongs to a superseded
// countdown. It is never returned to callers.
var ErrStaleTimerSignal = errors.New("stale timer signal")

// TransitionError describes a rejected operation.
type TransitionError struct {
	// Op is the rejected operation, e.g. "attack".
	Op string
	// From is the phase the session was in.
	From Phase
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed in phase %s", e.Op, e.From)
}

// Unwrap lets errors.Is match ErrInvalidStateTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// FightOutcome is emitted once per fight when it reaches Victory or Defeat.
// It is consumed by the progression service; the session never touches
// player gold or score itself.
type FightOutcome struct {
	DungeonID    int64
	DungeonLevel int
	BossID       int64
	Result       Result
	// GoldReward and ScoreReward are zero on defeat.
	GoldReward  int
	ScoreReward int
	// Clicks is the number of attacks landed during the fight.
	Clicks int
	// ElapsedSeconds is the time limit minus the time remaining at the end.
	ElapsedSeconds int
}

// EventKind distinguishes the notifications a session publishes.
type EventKind int

const (
	EventAttack EventKind = iota + 1
	EventTick
	EventPhase
	EventOutcome
)

// String returns the event kind label used on the wire.
func (k EventKind) String() string {
	switch k {
	case EventAttack:
		return "attack"
	case EventTick:
		return "tick"
	case EventPhase:
		return "phase"
	case EventOutcome:
		return "outcome"
	default:
		return "unknown"
	}
}

// Event is a presentation-layer notification. Every event carries the
// session's health, time and phase after the change it reports.
type Event struct {
	Kind          EventKind
	Generation    uint64
	DungeonID     int64
	Phase         Phase
	BossHealth    int
	BossMaxHealth int
	TimeRemaining int
	// Attack is set for EventAttack.
	Attack *AttackOutcome
	// Outcome is set for EventOutcome.
	Outcome *FightOutcome
	// Narrative is optional flavor text attached by the server layer.
	Narrative string
}
