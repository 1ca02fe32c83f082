package combat_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

type recorder struct {
	events []combat.Event
}

func (r *recorder) emit(e combat.Event) { r.events = append(r.events, e) }

func (r *recorder) outcomes() []combat.FightOutcome {
	var out []combat.FightOutcome
	for _, e := range r.events {
		if e.Kind == combat.EventOutcome {
			out = append(out, *e.Outcome)
		}
	}
	return out
}

func (r *recorder) phases() []combat.Phase {
	var out []combat.Phase
	for _, e := range r.events {
		if e.Kind == combat.EventPhase {
			out = append(out, e.Phase)
		}
	}
	return out
}

func testDungeon() combat.Dungeon {
	return combat.Dungeon{
		ID:                  1,
		Level:               1,
		Name:                "Goblin Cave",
		RequiredPlayerLevel: 1,
		TimeLimitSeconds:    10,
		BossID:              7,
		BossName:            "Goblin King",
		BossMaxHealth:       100,
		BossGoldReward:      25,
		BossScoreReward:     50,
	}
}

func newTestSession(t testing.TB) (*combat.Session, *combat.ManualScheduler, *recorder) {
	t.Helper()
	sched := combat.NewManualScheduler()
	rec := &recorder{}
	s := combat.NewSession(combat.NewTimer(sched, time.Second), rec.emit, zap.NewNop())
	return s, sched, rec
}

func plain(atk float64) combat.EffectiveStats {
	return combat.EffectiveStats{AttackPower: atk, CritChancePct: 0, CritMultiplier: 2}
}

func never() float64 { return 0.5 }

func TestSession_SelectDungeon_InitializesFight(t *testing.T) {
	s, _, rec := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))

	snap := s.Snapshot()
	assert.True(t, snap.Selected)
	assert.Equal(t, combat.PhaseSelect, snap.Phase)
	assert.Equal(t, 100, snap.BossHealth)
	assert.Equal(t, 10, snap.TimeRemaining)
	assert.Equal(t, []combat.Phase{combat.PhaseSelect}, rec.phases())
}

func TestSession_SelectDungeon_InvalidKeepsPriorSession(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	before := s.Snapshot()

	bad := testDungeon()
	bad.BossMaxHealth = 0
	bad.TimeLimitSeconds = -1
	err := s.SelectDungeon(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, combat.ErrInvalidDungeonDefinition)
	assert.Equal(t, before, s.Snapshot())
}

func TestSession_SelectDungeon_WhileFightingDiscardsOldFight(t *testing.T) {
	s, sched, _ := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	sched.Advance(3)

	next := testDungeon()
	next.ID = 2
	next.TimeLimitSeconds = 20
	require.NoError(t, s.SelectDungeon(next))
	assert.Equal(t, 0, sched.Active(), "old countdown must be cancelled")

	sched.Advance(30)
	assert.Equal(t, combat.PhaseSelect, s.Phase())
	assert.Equal(t, 20, s.TimeRemaining())
}

func TestSession_Start_WithoutDungeon_Fails(t *testing.T) {
	s, _, _ := newTestSession(t)
	err := s.Start()
	assert.ErrorIs(t, err, combat.ErrInvalidStateTransition)
	assert.Equal(t, combat.PhaseSelect, s.Phase())
}

func TestSession_Start_FromFighting_Fails(t *testing.T) {
	s, sched, _ := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())

	err := s.Start()
	var terr *combat.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, combat.PhaseFighting, terr.From)
	assert.Equal(t, 1, sched.Active(), "no duplicate ticker")
}

// Scenario A.
func TestSession_Attack_ReducesHealth(t *testing.T) {
	s, _, rec := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())

	res, err := s.Attack(plain(30), never)
	require.NoError(t, err)
	assert.False(t, res.Outcome.IsCritical)
	assert.Equal(t, 30, res.Outcome.Damage)
	assert.Equal(t, 70, res.BossHealth)
	assert.Equal(t, combat.PhaseFighting, res.Phase)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, combat.EventAttack, last.Kind)
	assert.Equal(t, 70, last.BossHealth)
}

// Scenario B.
func TestSession_Attack_KillingBlowWins(t *testing.T) {
	for _, chance := range []float64{0, 100} {
		s, sched, rec := newTestSession(t)
		d := testDungeon()
		d.BossMaxHealth = 50
		require.NoError(t, s.SelectDungeon(d))
		require.NoError(t, s.Start())
		sched.Advance(4)

		res, err := s.Attack(combat.EffectiveStats{AttackPower: 60, CritChancePct: chance, CritMultiplier: 2}, never)
		require.NoError(t, err)
		assert.Equal(t, 0, res.BossHealth)
		assert.Equal(t, combat.PhaseVictory, res.Phase)
		assert.Equal(t, 0, sched.Active(), "victory must stop the timer")

		require.Len(t, rec.outcomes(), 1)
		out := rec.outcomes()[0]
		assert.Equal(t, combat.ResultVictory, out.Result)
		assert.Equal(t, 25, out.GoldReward)
		assert.Equal(t, 50, out.ScoreReward)
		assert.Equal(t, 1, out.Clicks)
		assert.Equal(t, 4, out.ElapsedSeconds)
		assert.Equal(t, int64(7), out.BossID)
	}
}

func TestSession_Attack_HugeAttackPowerWins(t *testing.T) {
	s, _, rec := newTestSession(t)
	d := testDungeon()
	d.BossMaxHealth = 50
	require.NoError(t, s.SelectDungeon(d))
	require.NoError(t, s.Start())

	res, err := s.Attack(plain(1e19), never)
	require.NoError(t, err)
	assert.Equal(t, 0, res.BossHealth)
	assert.Equal(t, combat.PhaseVictory, res.Phase)
	require.Len(t, rec.outcomes(), 1)
	assert.Equal(t, combat.ResultVictory, rec.outcomes()[0].Result)
}

// Scenario C.
func TestSession_TimerExpiry_Defeat(t *testing.T) {
	s, sched, rec := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())

	sched.Advance(9)
	assert.Equal(t, combat.PhaseFighting, s.Phase())
	assert.Equal(t, 1, s.TimeRemaining())

	sched.Advance(1)
	assert.Equal(t, combat.PhaseDefeat, s.Phase())
	assert.Equal(t, 0, s.TimeRemaining())

	require.Len(t, rec.outcomes(), 1)
	out := rec.outcomes()[0]
	assert.Equal(t, combat.ResultDefeat, out.Result)
	assert.Zero(t, out.GoldReward)
	assert.Zero(t, out.ScoreReward)
	assert.Equal(t, 10, out.ElapsedSeconds)

	sched.Advance(5)
	assert.Len(t, rec.outcomes(), 1, "expiry fires exactly once")
}

// Scenario E.
func TestSession_Attack_OutsideFighting_Rejected(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))

	res, err := s.Attack(plain(30), never)
	assert.ErrorIs(t, err, combat.ErrInvalidStateTransition)
	assert.Equal(t, 100, res.BossHealth)
	assert.Equal(t, 100, s.BossHealth())
	assert.Equal(t, combat.PhaseSelect, s.Phase())
}

func TestSession_Attack_AfterVictory_Rejected(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	_, err := s.Attack(plain(500), never)
	require.NoError(t, err)

	_, err = s.Attack(plain(10), never)
	assert.ErrorIs(t, err, combat.ErrInvalidStateTransition)
	assert.Equal(t, combat.PhaseVictory, s.Phase())
}

func TestSession_LethalAttackBeforeFinalTick_Victory(t *testing.T) {
	s, sched, rec := newTestSession(t)
	d := testDungeon()
	d.TimeLimitSeconds = 1
	require.NoError(t, s.SelectDungeon(d))
	require.NoError(t, s.Start())

	_, err := s.Attack(plain(100), never)
	require.NoError(t, err)
	sched.Advance(1)

	assert.Equal(t, combat.PhaseVictory, s.Phase())
	require.Len(t, rec.outcomes(), 1)
	assert.Equal(t, combat.ResultVictory, rec.outcomes()[0].Result)
}

func TestSession_StaleExpiry_Discarded(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sched := combat.NewManualScheduler()
	s := combat.NewSession(combat.NewTimer(sched, time.Second), nil, zap.New(core))
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	stale := s.Generation()

	require.NoError(t, s.Reset())
	require.NoError(t, s.Start())

	err := s.OnTimerExpire(stale)
	assert.ErrorIs(t, err, combat.ErrStaleTimerSignal)
	assert.Equal(t, combat.PhaseFighting, s.Phase())
	assert.Equal(t, 1, logs.FilterMessage("discarding timer signal").Len())

	err = s.OnTimerTick(stale, 0)
	assert.ErrorIs(t, err, combat.ErrStaleTimerSignal)
	assert.Equal(t, 10, s.TimeRemaining())
}

func TestSession_ExpiryAfterVictory_Discarded(t *testing.T) {
	s, _, rec := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	gen := s.Generation()
	_, err := s.Attack(plain(100), never)
	require.NoError(t, err)

	assert.ErrorIs(t, s.OnTimerExpire(gen), combat.ErrStaleTimerSignal)
	assert.Equal(t, combat.PhaseVictory, s.Phase())
	assert.Len(t, rec.outcomes(), 1)
}

func TestSession_Reset_RestoresFight(t *testing.T) {
	for name, finish := range map[string]func(*combat.Session, *combat.ManualScheduler){
		"fighting": func(s *combat.Session, _ *combat.ManualScheduler) { _, _ = s.Attack(plain(10), never) },
		"victory":  func(s *combat.Session, _ *combat.ManualScheduler) { _, _ = s.Attack(plain(100), never) },
		"defeat":   func(_ *combat.Session, sched *combat.ManualScheduler) { sched.Advance(10) },
	} {
		t.Run(name, func(t *testing.T) {
			s, sched, _ := newTestSession(t)
			require.NoError(t, s.SelectDungeon(testDungeon()))
			require.NoError(t, s.Start())
			sched.Advance(2)
			finish(s, sched)

			require.NoError(t, s.Reset())
			assert.Equal(t, combat.PhaseSelect, s.Phase())
			assert.Equal(t, 100, s.BossHealth())
			assert.Equal(t, 10, s.TimeRemaining())
			assert.Equal(t, 0, sched.Active())
			assert.Equal(t, 0, s.Snapshot().Clicks)
		})
	}
}

func TestSession_Reset_Idempotent(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	_, err := s.Attack(plain(40), never)
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	once := s.Snapshot()
	err = s.Reset()
	assert.ErrorIs(t, err, combat.ErrInvalidStateTransition)
	assert.Equal(t, once, s.Snapshot())
}

func TestSession_Discard_InvalidatesTimer(t *testing.T) {
	s, sched, rec := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	s.Discard()

	sched.Advance(20)
	assert.Empty(t, rec.outcomes())
	_, selected := s.Dungeon()
	assert.False(t, selected)
	assert.ErrorIs(t, s.Start(), combat.ErrInvalidStateTransition)
}

func TestSession_TickEventsReportTimeRemaining(t *testing.T) {
	s, sched, rec := newTestSession(t)
	require.NoError(t, s.SelectDungeon(testDungeon()))
	require.NoError(t, s.Start())
	sched.Advance(3)

	var times []int
	for _, e := range rec.events {
		if e.Kind == combat.EventTick {
			times = append(times, e.TimeRemaining)
		}
	}
	assert.Equal(t, []int{9, 8, 7}, times)
}

func TestPhase_Transitions(t *testing.T) {
	assert.True(t, combat.CanTransition(combat.PhaseSelect, combat.PhaseFighting))
	assert.True(t, combat.CanTransition(combat.PhaseFighting, combat.PhaseVictory))
	assert.True(t, combat.CanTransition(combat.PhaseFighting, combat.PhaseDefeat))
	assert.True(t, combat.CanTransition(combat.PhaseVictory, combat.PhaseSelect))
	assert.True(t, combat.CanTransition(combat.PhaseDefeat, combat.PhaseSelect))
	assert.False(t, combat.CanTransition(combat.PhaseSelect, combat.PhaseVictory))
	assert.False(t, combat.CanTransition(combat.PhaseSelect, combat.PhaseDefeat))
	assert.False(t, combat.CanTransition(combat.PhaseVictory, combat.PhaseDefeat))
	assert.False(t, combat.CanTransition(combat.PhaseDefeat, combat.PhaseFighting))
}

// TestPropertySession_Invariants drives a session with random operations and
// checks the health bounds and the phase graph after every step.
func TestPropertySession_Invariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sched := combat.NewManualScheduler()
		var phases []combat.Phase
		emit := func(e combat.Event) {
			if e.Kind == combat.EventPhase {
				phases = append(phases, e.Phase)
			}
		}
		s := combat.NewSession(combat.NewTimer(sched, time.Second), emit, zap.NewNop())
		d := testDungeon()
		d.BossMaxHealth = rapid.IntRange(1, 300).Draw(rt, "max_health")
		d.TimeLimitSeconds = rapid.IntRange(1, 15).Draw(rt, "limit")
		if err := s.SelectDungeon(d); err != nil {
			rt.Fatalf("select: %v", err)
		}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				_ = s.Start()
			case 1:
				eff := combat.EffectiveStats{
					AttackPower:    float64(rapid.IntRange(0, 80).Draw(rt, "atk")),
					CritChancePct:  float64(rapid.IntRange(0, 100).Draw(rt, "chance")),
					CritMultiplier: float64(rapid.IntRange(1, 4).Draw(rt, "mult")),
				}
				r := rapid.Float64Range(0, 0.9999999).Draw(rt, "roll")
				before := s.BossHealth()
				wasFighting := s.Phase() == combat.PhaseFighting
				_, _ = s.Attack(eff, func() float64 { return r })
				if !wasFighting && s.BossHealth() != before {
					rt.Fatalf("health changed outside fighting")
				}
			case 2:
				sched.Advance(rapid.IntRange(1, 5).Draw(rt, "ticks"))
			case 3:
				_ = s.Reset()
			}
			if h := s.BossHealth(); h < 0 || h > d.BossMaxHealth {
				rt.Fatalf("boss health %d out of [0,%d]", h, d.BossMaxHealth)
			}
			if tr := s.TimeRemaining(); tr < 0 || tr > d.TimeLimitSeconds {
				rt.Fatalf("time remaining %d out of [0,%d]", tr, d.TimeLimitSeconds)
			}
		}

		for i := 1; i < len(phases); i++ {
			if !combat.CanTransition(phases[i-1], phases[i]) {
				rt.Fatalf("illegal transition %s -> %s", phases[i-1], phases[i])
			}
		}
	})
}
