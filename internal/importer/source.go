package importer

import (
	"context"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
	"github.com/cory-johannsen/dungeonclicker/internal/game/dungeon"
)

// Source loads validated dungeon definitions from a content location.
//
// Postcondition: returns the dungeons ordered by level, or a non-nil error.
type Source interface {
	Load(dir string) ([]combat.Dungeon, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(dir string) ([]combat.Dungeon, error)

// Load implements Source.
func (f SourceFunc) Load(dir string) ([]combat.Dungeon, error) { return f(dir) }

// YAMLSource reads a directory of dungeon YAML files.
var YAMLSource Source = SourceFunc(dungeon.LoadDir)

// Sink stores dungeon definitions. postgres.DungeonRepository satisfies it.
type Sink interface {
	UpsertDungeon(ctx context.Context, d combat.Dungeon) error
}

// Lister enumerates stored dungeons for Export.
type Lister interface {
	ListDungeons(ctx context.Context) ([]combat.Dungeon, error)
}
