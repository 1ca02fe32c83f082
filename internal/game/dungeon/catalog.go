package dungeon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

// ErrDungeonNotFound is returned when no dungeon has the requested ID.
var ErrDungeonNotFound = errors.New("dungeon not found")

// repositoryTimeout bounds one shared repository lookup. The lookup outlives
// the caller that started it, so it cannot borrow that caller's deadline.
const repositoryTimeout = 5 * time.Second

// Repository is the persistent dungeon store consulted on catalog misses.
type Repository interface {
	// GetDungeon returns the dungeon with id, or an error wrapping ErrDungeonNotFound.
	GetDungeon(ctx context.Context, id int64) (combat.Dungeon, error)
	// ListDungeons returns every stored dungeon.
	ListDungeons(ctx context.Context) ([]combat.Dungeon, error)
}

// Catalog serves dungeon definitions from memory and falls back to a
// Repository on misses. Concurrent misses for the same ID share one
// repository call. All methods are safe for concurrent use.
type Catalog struct {
	repo   Repository
	logger *zap.Logger
	group  singleflight.Group

	mu   sync.RWMutex
	byID map[int64]combat.Dungeon
}

// NewCatalog creates an empty Catalog.
//
// Precondition: logger must be non-nil. repo may be nil for a memory-only catalog.
func NewCatalog(repo Repository, logger *zap.Logger) *Catalog {
	return &Catalog{
		repo:   repo,
		logger: logger,
		byID:   make(map[int64]combat.Dungeon),
	}
}

// Add registers dungeons in memory, replacing any with the same ID.
//
// Postcondition: Returns an error wrapping combat.ErrInvalidDungeonDefinition
// for the first invalid dungeon; none of ds is registered in that case.
func (c *Catalog) Add(ds ...combat.Dungeon) error {
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("adding dungeon %d: %w", d.ID, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range ds {
		c.byID[d.ID] = d
	}
	return nil
}

// Get returns the dungeon with id.
//
// Postcondition: Returns an error wrapping ErrDungeonNotFound when neither
// memory nor the repository has it. A caller whose ctx ends stops waiting
// without failing other callers sharing the same lookup.
func (c *Catalog) Get(ctx context.Context, id int64) (combat.Dungeon, error) {
	c.mu.RLock()
	d, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}
	if c.repo == nil {
		return combat.Dungeon{}, fmt.Errorf("dungeon %d: %w", id, ErrDungeonNotFound)
	}

	flight := c.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), repositoryTimeout)
		defer cancel()
		d, err := c.repo.GetDungeon(ctx, id)
		if err != nil {
			return combat.Dungeon{}, err
		}
		if err := d.Validate(); err != nil {
			return combat.Dungeon{}, fmt.Errorf("stored dungeon %d: %w", id, err)
		}
		c.mu.Lock()
		c.byID[id] = d
		c.mu.Unlock()
		return d, nil
	})

	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return combat.Dungeon{}, fmt.Errorf("dungeon %d: %w", id, ctx.Err())
	}
	if res.Err != nil {
		return combat.Dungeon{}, res.Err
	}
	c.logger.Debug("dungeon loaded from repository",
		zap.Int64("dungeon_id", id),
		zap.Bool("shared", res.Shared),
	)
	return res.Val.(combat.Dungeon), nil
}

// List returns every known dungeon ordered by level. Repository entries
// are merged with memory entries; memory wins on ID collisions.
func (c *Catalog) List(ctx context.Context) ([]combat.Dungeon, error) {
	merged := make(map[int64]combat.Dungeon)
	if c.repo != nil {
		stored, err := c.repo.ListDungeons(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing stored dungeons: %w", err)
		}
		for _, d := range stored {
			merged[d.ID] = d
		}
	}

	c.mu.RLock()
	for id, d := range c.byID {
		merged[id] = d
	}
	c.mu.RUnlock()

	out := make([]combat.Dungeon, 0, len(merged))
	for _, d := range merged {
		out = append(out, d)
	}
	SortByLevel(out)
	return out, nil
}

// Len returns the number of dungeons held in memory.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
