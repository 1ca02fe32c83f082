package gameserver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
	"github.com/cory-johannsen/dungeonclicker/internal/scripting"
)

// fightLoop serializes every access to one session. Control calls, attacks
// and timer ticks all run on the loop goroutine in arrival order.
type fightLoop struct {
	id       string
	playerID int64
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
	broker   *broker
	session  *combat.Session
	logger   *zap.Logger

	// Guarded by FightHandler.mu.
	refs     int
	selected bool
}

func (l *fightLoop) run() {
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-l.done:
			return
		}
	}
}

// dispatch queues a timer tick. Ticks arriving after stop are dropped.
func (l *fightLoop) dispatch(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// do runs fn on the loop and waits for its result.
//
// Postcondition: Returns ctx.Err() if ctx ends before fn is queued or
// finishes; ErrFightNotFound if the loop is stopped.
func (l *fightLoop) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case l.queue <- func() { result <- fn() }:
	case <-l.done:
		return ErrFightNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrFightNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop ends the loop and closes every subscription.
func (l *fightLoop) stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.broker.close()
	})
}

// view must run on the loop.
func (l *fightLoop) view() FightView {
	return FightView{FightID: l.id, PlayerID: l.playerID, Snapshot: l.session.Snapshot()}
}

// fightInfo must run on the loop.
func (l *fightLoop) fightInfo(outcome *combat.FightOutcome) scripting.FightInfo {
	snap := l.session.Snapshot()
	d, _ := l.session.Dungeon()
	info := scripting.FightInfo{
		DungeonID:     d.ID,
		DungeonName:   d.Name,
		DungeonLevel:  d.Level,
		BossName:      d.BossName,
		TimeLimit:     d.TimeLimitSeconds,
		TimeRemaining: snap.TimeRemaining,
		Clicks:        snap.Clicks,
	}
	if outcome != nil {
		info.Clicks = outcome.Clicks
		info.ElapsedSeconds = outcome.ElapsedSeconds
	}
	return info
}

// broker fans fight events out to subscribers. A full subscriber channel
// drops the event.
type broker struct {
	buffer int
	logger *zap.Logger

	mu     sync.Mutex
	next   int
	subs   map[int]chan FightEvent
	closed bool
}

func newBroker(buffer int, logger *zap.Logger) *broker {
	if buffer < 1 {
		buffer = 1
	}
	return &broker{buffer: buffer, logger: logger, subs: make(map[int]chan FightEvent)}
}

func (b *broker) subscribe() (<-chan FightEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan FightEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broker) publish(e FightEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("dropping fight event for slow subscriber",
				zap.Int("subscriber", id),
				zap.Stringer("kind", e.Kind),
			)
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
