// Package gameserver hosts per-player boss fights and exposes them over gRPC
// and a websocket event feed.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
	"github.com/cory-johannsen/dungeonclicker/internal/observability"
	"github.com/cory-johannsen/dungeonclicker/internal/scripting"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . DungeonSource,CombatantSource,OutcomeSink

// ErrLevelTooLow is returned when a player selects a dungeon above their level.
var ErrLevelTooLow = errors.New("player level too low")

// ErrFightNotFound is returned when a player has no fight in progress.
var ErrFightNotFound = errors.New("fight not found")

// ErrHandlerClosed is returned after Close.
var ErrHandlerClosed = errors.New("fight handler closed")

// DungeonSource supplies dungeon definitions.
type DungeonSource interface {
	Get(ctx context.Context, id int64) (combat.Dungeon, error)
	// List returns every dungeon ordered by level.
	List(ctx context.Context) ([]combat.Dungeon, error)
}

// CombatantSource supplies the attacker's current level and stats. It is
// consulted before every attack so equipment changes apply mid-fight.
type CombatantSource interface {
	Combatant(ctx context.Context, playerID int64) (combat.Combatant, error)
}

// OutcomeSink receives every finished fight exactly once.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, playerID int64, outcome combat.FightOutcome) error
}

// Narrator produces optional flavor text for fight events.
type Narrator interface {
	Narrate(hook string, info scripting.FightInfo) string
}

// SchedulerFactory builds the countdown Scheduler of one fight. dispatch
// queues a tick on that fight's event loop; schedulers MUST deliver ticks
// through it so ticks and attacks are applied in arrival order.
type SchedulerFactory func(dispatch func(fn func())) combat.Scheduler

// TickerSchedulers is the production SchedulerFactory.
func TickerSchedulers(dispatch func(fn func())) combat.Scheduler {
	return combat.TickerScheduler{Dispatch: dispatch}
}

// FightEvent is a session event tagged with the fight it belongs to.
type FightEvent struct {
	FightID  string
	PlayerID int64
	combat.Event
}

// FightView is a read-only view of one player's fight.
type FightView struct {
	FightID  string
	PlayerID int64
	combat.Snapshot
}

// AttackView is the result of one attack.
type AttackView struct {
	FightView
	Outcome combat.AttackOutcome
}

// HandlerOptions configures a FightHandler.
type HandlerOptions struct {
	// TickInterval is the real time between countdown ticks.
	TickInterval time.Duration
	// EventBuffer is the per-subscriber channel capacity.
	EventBuffer int
	// OutcomeTimeout bounds one OutcomeSink call.
	OutcomeTimeout time.Duration
	// Schedulers defaults to TickerSchedulers.
	Schedulers SchedulerFactory
	// Narrator may be nil.
	Narrator Narrator
}

// FightHandler owns one fight loop per player. All methods are safe for
// concurrent use; each fight's session is only touched by its own loop.
type FightHandler struct {
	dungeons   DungeonSource
	combatants CombatantSource
	outcomes   OutcomeSink
	rng        combat.RNG
	opts       HandlerOptions
	logger     *zap.Logger

	mu      sync.Mutex
	fights  map[int64]*fightLoop
	closed  bool
	pending sync.WaitGroup
}

// NewFightHandler creates a FightHandler.
//
// Precondition: dungeons, combatants, outcomes, rng and logger must be non-nil;
// opts.TickInterval > 0 and opts.EventBuffer >= 1.
// Postcondition: Returns a handler with no fights.
func NewFightHandler(
	dungeons DungeonSource,
	combatants CombatantSource,
	outcomes OutcomeSink,
	rng combat.RNG,
	opts HandlerOptions,
	logger *zap.Logger,
) *FightHandler {
	if opts.Schedulers == nil {
		opts.Schedulers = TickerSchedulers
	}
	if opts.OutcomeTimeout <= 0 {
		opts.OutcomeTimeout = 5 * time.Second
	}
	return &FightHandler{
		dungeons:   dungeons,
		combatants: combatants,
		outcomes:   outcomes,
		rng:        rng,
		opts:       opts,
		logger:     logger,
		fights:     make(map[int64]*fightLoop),
	}
}

// ListDungeons returns every dungeon ordered by level.
func (h *FightHandler) ListDungeons(ctx context.Context) ([]combat.Dungeon, error) {
	ds, err := h.dungeons.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing dungeons: %w", err)
	}
	return ds, nil
}

// SelectDungeon prepares a fight against dungeonID for playerID, discarding
// any fight in progress.
//
// Postcondition: Returns an error wrapping ErrLevelTooLow when the player's
// level is below the dungeon's requirement; the current fight is untouched.
func (h *FightHandler) SelectDungeon(ctx context.Context, playerID, dungeonID int64) (FightView, error) {
	d, err := h.dungeons.Get(ctx, dungeonID)
	if err != nil {
		return FightView{}, fmt.Errorf("loading dungeon %d: %w", dungeonID, err)
	}
	c, err := h.combatants.Combatant(ctx, playerID)
	if err != nil {
		return FightView{}, fmt.Errorf("loading player %d: %w", playerID, err)
	}
	if c.Level < d.RequiredPlayerLevel {
		return FightView{}, fmt.Errorf("%w: dungeon %d requires level %d, player %d is level %d",
			ErrLevelTooLow, d.ID, d.RequiredPlayerLevel, playerID, c.Level)
	}

	loop, err := h.acquire(playerID, true)
	if err != nil {
		return FightView{}, err
	}
	defer h.release(loop)
	var view FightView
	err = loop.do(ctx, func() error {
		if err := loop.session.SelectDungeon(d); err != nil {
			return err
		}
		view = loop.view()
		return nil
	})
	if err == nil {
		h.mu.Lock()
		loop.selected = true
		h.mu.Unlock()
	}
	return view, err
}

// StartFight starts the countdown of the selected dungeon.
//
// Postcondition: Returns an error wrapping combat.ErrInvalidStateTransition
// unless the fight is in PhaseSelect with a dungeon selected.
func (h *FightHandler) StartFight(ctx context.Context, playerID int64) (FightView, error) {
	return h.control(ctx, playerID, (*combat.Session).Start)
}

// ResetFight abandons the current attempt and returns to PhaseSelect with
// the same dungeon refilled.
func (h *FightHandler) ResetFight(ctx context.Context, playerID int64) (FightView, error) {
	return h.control(ctx, playerID, (*combat.Session).Reset)
}

// Attack resolves one attack for playerID using freshly loaded stats.
//
// Postcondition: Returns an error wrapping combat.ErrInvalidStateTransition
// outside PhaseFighting; boss health is unchanged in that case.
func (h *FightHandler) Attack(ctx context.Context, playerID int64) (AttackView, error) {
	loop, err := h.acquire(playerID, false)
	if err != nil {
		return AttackView{}, err
	}
	defer h.release(loop)
	c, err := h.combatants.Combatant(ctx, playerID)
	if err != nil {
		return AttackView{}, fmt.Errorf("loading player %d: %w", playerID, err)
	}
	eff := combat.Resolve(c.Stats)

	var out AttackView
	err = loop.do(ctx, func() error {
		res, err := loop.session.Attack(eff, h.rng)
		if err != nil {
			return err
		}
		out = AttackView{FightView: loop.view(), Outcome: res.Outcome}
		return nil
	})
	return out, err
}

// GetFight returns the player's fight state.
func (h *FightHandler) GetFight(ctx context.Context, playerID int64) (FightView, error) {
	loop, err := h.acquire(playerID, false)
	if err != nil {
		return FightView{}, err
	}
	defer h.release(loop)
	var view FightView
	err = loop.do(ctx, func() error {
		view = loop.view()
		return nil
	})
	return view, err
}

// AbandonFight discards the player's fight and closes its subscriptions.
//
// Postcondition: Later operations for playerID return ErrFightNotFound until
// the next SelectDungeon.
func (h *FightHandler) AbandonFight(ctx context.Context, playerID int64) error {
	h.mu.Lock()
	loop, ok := h.fights[playerID]
	if ok {
		delete(h.fights, playerID)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("player %d: %w", playerID, ErrFightNotFound)
	}

	err := loop.do(ctx, func() error {
		loop.session.Discard()
		return nil
	})
	loop.stop()
	return err
}

// Subscribe streams the player's fight events, creating an idle fight when
// none exists so clients can watch before selecting a dungeon. The channel
// is closed when the fight is abandoned or the handler closes. Slow
// subscribers lose events rather than stall the fight.
//
// Precondition: playerID must name a known player.
// Postcondition: cancel must be called to release the subscription. An idle
// fight with no dungeon selected is discarded when its last subscriber cancels.
func (h *FightHandler) Subscribe(ctx context.Context, playerID int64) (events <-chan FightEvent, cancel func(), err error) {
	if _, err := h.combatants.Combatant(ctx, playerID); err != nil {
		return nil, nil, fmt.Errorf("loading player %d: %w", playerID, err)
	}
	loop, err := h.acquire(playerID, true)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := loop.broker.subscribe()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			h.release(loop)
		})
	}, nil
}

// ActiveFights returns the number of live fight loops.
func (h *FightHandler) ActiveFights() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fights)
}

// Close stops every fight and waits for pending outcomes to be recorded.
func (h *FightHandler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	loops := h.fights
	h.fights = make(map[int64]*fightLoop)
	h.mu.Unlock()

	for _, loop := range loops {
		_ = loop.do(context.Background(), func() error {
			loop.session.Discard()
			return nil
		})
		loop.stop()
	}
	h.pending.Wait()
}

func (h *FightHandler) control(ctx context.Context, playerID int64, op func(*combat.Session) error) (FightView, error) {
	loop, err := h.acquire(playerID, false)
	if err != nil {
		return FightView{}, err
	}
	defer h.release(loop)
	var view FightView
	err = loop.do(ctx, func() error {
		if err := op(loop.session); err != nil {
			return err
		}
		view = loop.view()
		return nil
	})
	return view, err
}

// acquire returns playerID's fight loop with one more reference held.
// Every successful acquire must be paired with release.
func (h *FightHandler) acquire(playerID int64, create bool) (*fightLoop, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandlerClosed
	}
	loop, ok := h.fights[playerID]
	if !ok {
		if !create {
			return nil, fmt.Errorf("player %d: %w", playerID, ErrFightNotFound)
		}
		loop = h.newLoop(playerID)
		h.fights[playerID] = loop
	}
	loop.refs++
	return loop, nil
}

// release drops a reference. A loop that never had a dungeon selected is
// stopped once nothing references it.
func (h *FightHandler) release(loop *fightLoop) {
	h.mu.Lock()
	loop.refs--
	idle := loop.refs == 0 && !loop.selected && h.fights[loop.playerID] == loop
	if idle {
		delete(h.fights, loop.playerID)
	}
	h.mu.Unlock()
	if idle {
		loop.stop()
		loop.logger.Debug("idle fight loop released")
	}
}

func (h *FightHandler) newLoop(playerID int64) *fightLoop {
	id := uuid.NewString()
	logger := observability.ForFight(h.logger, playerID, id)
	loop := &fightLoop{
		id:       id,
		playerID: playerID,
		queue:    make(chan func(), 64),
		done:     make(chan struct{}),
		broker:   newBroker(h.opts.EventBuffer, logger),
		logger:   logger,
	}
	timer := combat.NewTimer(h.opts.Schedulers(loop.dispatch), h.opts.TickInterval)
	loop.session = combat.NewSession(timer, func(e combat.Event) { h.onEvent(loop, e) }, logger)
	go loop.run()
	logger.Debug("fight loop started")
	return loop
}

// onEvent runs on the fight loop. It narrates, fans out, and hands
// outcomes to the sink.
func (h *FightHandler) onEvent(loop *fightLoop, e combat.Event) {
	if h.opts.Narrator != nil {
		switch {
		case e.Kind == combat.EventPhase && e.Phase == combat.PhaseFighting:
			e.Narrative = h.opts.Narrator.Narrate(scripting.HookFightStart, loop.fightInfo(nil))
		case e.Kind == combat.EventOutcome && e.Outcome != nil:
			hook := scripting.HookDefeat
			if e.Outcome.Result == combat.ResultVictory {
				hook = scripting.HookVictory
			}
			e.Narrative = h.opts.Narrator.Narrate(hook, loop.fightInfo(e.Outcome))
		}
	}

	loop.broker.publish(FightEvent{FightID: loop.id, PlayerID: loop.playerID, Event: e})

	if e.Kind == combat.EventOutcome && e.Outcome != nil {
		h.recordOutcome(loop, *e.Outcome)
	}
}

func (h *FightHandler) recordOutcome(loop *fightLoop, outcome combat.FightOutcome) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.OutcomeTimeout)
		defer cancel()
		if err := h.outcomes.RecordOutcome(ctx, loop.playerID, outcome); err != nil {
			h.logger.Error("recording fight outcome",
				zap.Int64("player_id", loop.playerID),
				zap.String("fight_id", loop.id),
				zap.Error(err),
			)
		}
	}()
}
