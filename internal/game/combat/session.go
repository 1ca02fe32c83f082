package combat

import (
	"fmt"

	"go.uber.org/zap"
)

// AttackResult is returned by Session.Attack.
type AttackResult struct {
	Outcome AttackOutcome
	// BossHealth is the boss health after the attack was applied.
	BossHealth int
	// Phase is the phase after the attack; PhaseVictory on a killing blow.
	Phase Phase
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	Selected      bool
	DungeonID     int64
	DungeonName   string
	BossName      string
	Phase         Phase
	BossHealth    int
	BossMaxHealth int
	TimeRemaining int
	TimeLimit     int
	Generation    uint64
	Clicks        int
}

// Session is the state machine of one boss fight.
//
// Session is NOT safe for concurrent use. Attacks, timer ticks and control
// operations must be delivered from a single sequential event queue; the
// Timer's Scheduler should dispatch ticks into that same queue.
//
// Invariant: 0 <= bossHealth <= dungeon.BossMaxHealth.
// Invariant: 0 <= timeRemaining <= dungeon.TimeLimitSeconds.
// Invariant: bossHealth and timeRemaining only decrease while phase == PhaseFighting.
type Session struct {
	timer  *Timer
	emit   func(Event)
	logger *zap.Logger

	dungeon       Dungeon
	selected      bool
	phase         Phase
	bossHealth    int
	timeRemaining int
	generation    uint64
	clicks        int
}

// NewSession creates a session in PhaseSelect with no dungeon selected.
//
// Precondition: timer and logger must be non-nil. emit may be nil.
// Postcondition: Returns a session whose Start fails until SelectDungeon succeeds.
func NewSession(timer *Timer, emit func(Event), logger *zap.Logger) *Session {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Session{timer: timer, emit: emit, logger: logger}
}

// SelectDungeon discards the current fight and prepares a fresh one for d.
//
// Postcondition: On success phase is PhaseSelect, boss health is
// d.BossMaxHealth and time remaining is d.TimeLimitSeconds. On an invalid
// definition the error wraps ErrInvalidDungeonDefinition and nothing changes.
func (s *Session) SelectDungeon(d Dungeon) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("selecting dungeon %d: %w", d.ID, err)
	}
	s.timer.Stop()
	s.generation++
	s.dungeon = d
	s.selected = true
	s.refill()

	from := s.phase
	s.phase = PhaseSelect
	s.logger.Info("dungeon selected",
		zap.Int64("dungeon_id", d.ID),
		zap.Stringer("from", from),
		zap.Uint64("generation", s.generation),
	)
	s.publish(Event{Kind: EventPhase})
	return nil
}

// Start enters PhaseFighting and starts the countdown.
//
// Precondition: a dungeon is selected and phase == PhaseSelect.
// Postcondition: Returns a *TransitionError otherwise, leaving state unchanged.
func (s *Session) Start() error {
	if !s.selected {
		return &TransitionError{Op: "start without a selected dungeon", From: s.phase}
	}
	if s.phase != PhaseSelect {
		return &TransitionError{Op: "start", From: s.phase}
	}
	s.generation++
	gen := s.generation
	s.transition(PhaseFighting)
	s.timer.Start(s.timeRemaining,
		func(remaining int) { _ = s.OnTimerTick(gen, remaining) },
		func() { _ = s.OnTimerExpire(gen) },
	)
	return nil
}

// Attack resolves one attack against the boss. A killing blow ends the fight
// in PhaseVictory and stops the timer before Attack returns, so a tick
// queued after the attack can no longer produce a defeat.
//
// Precondition: phase == PhaseFighting; rng must be non-nil.
// Postcondition: Returns a *TransitionError from any other phase, leaving
// boss health unchanged.
func (s *Session) Attack(eff EffectiveStats, rng RNG) (AttackResult, error) {
	if s.phase != PhaseFighting {
		return AttackResult{BossHealth: s.bossHealth, Phase: s.phase},
			&TransitionError{Op: "attack", From: s.phase}
	}
	out := ResolveAttack(eff, rng)
	s.bossHealth -= out.Damage
	if s.bossHealth < 0 {
		s.bossHealth = 0
	}
	s.clicks++
	s.publish(Event{Kind: EventAttack, Attack: &out})

	if s.bossHealth == 0 {
		s.finish(ResultVictory)
	}
	return AttackResult{Outcome: out, BossHealth: s.bossHealth, Phase: s.phase}, nil
}

// OnTimerTick is the timer's per-tick entry point.
//
// Postcondition: Returns an error wrapping ErrStaleTimerSignal, with no state
// change, if generation is superseded or the fight is no longer running.
func (s *Session) OnTimerTick(generation uint64, remaining int) error {
	if err := s.checkSignal(generation); err != nil {
		return err
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining < s.timeRemaining {
		s.timeRemaining = remaining
	}
	s.publish(Event{Kind: EventTick})
	return nil
}

// OnTimerExpire is the timer's expiry entry point. It ends a running fight
// in PhaseDefeat.
//
// Postcondition: Returns an error wrapping ErrStaleTimerSignal, with no state
// change, if generation is superseded or the fight is no longer running.
func (s *Session) OnTimerExpire(generation uint64) error {
	if err := s.checkSignal(generation); err != nil {
		return err
	}
	s.timeRemaining = 0
	s.finish(ResultDefeat)
	return nil
}

func (s *Session) checkSignal(generation uint64) error {
	if generation != s.generation || s.phase != PhaseFighting {
		err := fmt.Errorf("%w: signal generation %d, session generation %d, phase %s",
			ErrStaleTimerSignal, generation, s.generation, s.phase)
		s.logger.Debug("discarding timer signal", zap.Error(err))
		return err
	}
	return nil
}

// Reset abandons the current attempt and returns to PhaseSelect with full
// boss health and the full time limit.
//
// Precondition: phase is PhaseFighting, PhaseVictory or PhaseDefeat.
// Postcondition: Returns a *TransitionError from PhaseSelect, leaving state
// unchanged, so repeated resets are idempotent.
func (s *Session) Reset() error {
	switch s.phase {
	case PhaseFighting, PhaseVictory, PhaseDefeat:
	default:
		return &TransitionError{Op: "reset", From: s.phase}
	}
	s.timer.Stop()
	s.generation++
	s.refill()
	s.transition(PhaseSelect)
	return nil
}

// Discard stops the timer and forgets the selected dungeon. Any in-flight
// timer callback becomes stale.
func (s *Session) Discard() {
	s.timer.Stop()
	s.generation++
	s.selected = false
	s.dungeon = Dungeon{}
	s.phase = PhaseSelect
	s.bossHealth = 0
	s.timeRemaining = 0
	s.clicks = 0
	s.logger.Debug("fight discarded", zap.Uint64("generation", s.generation))
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// BossHealth returns the boss's current health.
func (s *Session) BossHealth() int { return s.bossHealth }

// TimeRemaining returns the seconds left on the countdown.
func (s *Session) TimeRemaining() int { return s.timeRemaining }

// Generation returns the current countdown generation.
func (s *Session) Generation() uint64 { return s.generation }

// Dungeon returns the selected dungeon and whether one is selected.
func (s *Session) Dungeon() (Dungeon, bool) { return s.dungeon, s.selected }

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Selected:      s.selected,
		DungeonID:     s.dungeon.ID,
		DungeonName:   s.dungeon.Name,
		BossName:      s.dungeon.BossName,
		Phase:         s.phase,
		BossHealth:    s.bossHealth,
		BossMaxHealth: s.dungeon.BossMaxHealth,
		TimeRemaining: s.timeRemaining,
		TimeLimit:     s.dungeon.TimeLimitSeconds,
		Generation:    s.generation,
		Clicks:        s.clicks,
	}
}

func (s *Session) refill() {
	s.bossHealth = s.dungeon.BossMaxHealth
	s.timeRemaining = s.dungeon.TimeLimitSeconds
	s.clicks = 0
}

// finish ends a running fight and emits the outcome.
func (s *Session) finish(result Result) {
	s.timer.Stop()
	to := PhaseDefeat
	if result == ResultVictory {
		to = PhaseVictory
	}
	s.transition(to)

	outcome := FightOutcome{
		DungeonID:      s.dungeon.ID,
		DungeonLevel:   s.dungeon.Level,
		BossID:         s.dungeon.BossID,
		Result:         result,
		Clicks:         s.clicks,
		ElapsedSeconds: s.dungeon.TimeLimitSeconds - s.timeRemaining,
	}
	if result == ResultVictory {
		outcome.GoldReward = s.dungeon.BossGoldReward
		outcome.ScoreReward = s.dungeon.BossScoreReward
	}
	s.logger.Info("fight finished",
		zap.Int64("dungeon_id", s.dungeon.ID),
		zap.Stringer("result", result),
		zap.Int("clicks", outcome.Clicks),
		zap.Int("elapsed_seconds", outcome.ElapsedSeconds),
	)
	s.publish(Event{Kind: EventOutcome, Outcome: &outcome})
}

// transition moves along the phase graph and emits a phase event.
// An edge outside the graph is a programming error.
func (s *Session) transition(to Phase) {
	from := s.phase
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("combat: illegal phase transition %s -> %s", from, to))
	}
	s.phase = to
	s.logger.Info("fight phase changed",
		zap.Int64("dungeon_id", s.dungeon.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Uint64("generation", s.generation),
	)
	s.publish(Event{Kind: EventPhase})
}

func (s *Session) publish(e Event) {
	e.Generation = s.generation
	e.DungeonID = s.dungeon.ID
	e.Phase = s.phase
	e.BossHealth = s.bossHealth
	e.BossMaxHealth = s.dungeon.BossMaxHealth
	e.TimeRemaining = s.timeRemaining
	s.emit(e)
}
