// Package dungeon loads dungeon and boss definitions from YAML content files
// and serves them to fights through a Catalog.
package dungeon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

// BossFile is the boss section of a dungeon content file.
type BossFile struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	MaxHealth   int    `yaml:"max_health"`
	GoldReward  int    `yaml:"gold_reward"`
	ScoreReward int    `yaml:"score_reward"`
}

// File is one dungeon content file.
type File struct {
	ID                  int64    `yaml:"id"`
	Level               int      `yaml:"level"`
	Name                string   `yaml:"name"`
	Description         string   `yaml:"description"`
	RequiredPlayerLevel int      `yaml:"required_player_level"`
	TimeLimitSeconds    int      `yaml:"time_limit_seconds"`
	Boss                BossFile `yaml:"boss"`
}

// Dungeon converts the file into the definition consumed by fights.
func (f File) Dungeon() combat.Dungeon {
	return combat.Dungeon{
		ID:                  f.ID,
		Level:               f.Level,
		Name:                f.Name,
		Description:         f.Description,
		RequiredPlayerLevel: f.RequiredPlayerLevel,
		TimeLimitSeconds:    f.TimeLimitSeconds,
		BossID:              f.Boss.ID,
		BossName:            f.Boss.Name,
		BossMaxHealth:       f.Boss.MaxHealth,
		BossGoldReward:      f.Boss.GoldReward,
		BossScoreReward:     f.Boss.ScoreReward,
	}
}

// FileFor is the inverse of File.Dungeon.
func FileFor(d combat.Dungeon) File {
	return File{
		ID:                  d.ID,
		Level:               d.Level,
		Name:                d.Name,
		Description:         d.Description,
		RequiredPlayerLevel: d.RequiredPlayerLevel,
		TimeLimitSeconds:    d.TimeLimitSeconds,
		Boss: BossFile{
			ID:          d.BossID,
			Name:        d.BossName,
			MaxHealth:   d.BossMaxHealth,
			GoldReward:  d.BossGoldReward,
			ScoreReward: d.BossScoreReward,
		},
	}
}

// LoadFromBytes parses a single dungeon from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single File.
// Postcondition: Returns a validated dungeon, or an error wrapping
// combat.ErrInvalidDungeonDefinition when a field is missing or out of range.
func LoadFromBytes(data []byte) (combat.Dungeon, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return combat.Dungeon{}, fmt.Errorf("parsing dungeon YAML: %w", err)
	}
	d := f.Dungeon()
	if err := d.Validate(); err != nil {
		return combat.Dungeon{}, fmt.Errorf("dungeon %q: %w", f.Name, err)
	}
	return d, nil
}

// LoadDir reads all *.yaml and *.yml files in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the dungeons ordered by level then ID, or an error on
// the first parse or validate failure, or when two files share an ID or a level.
func LoadDir(dir string) ([]combat.Dungeon, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dungeon dir %q: %w", dir, err)
	}

	var out []combat.Dungeon
	byID := make(map[int64]string)
	byLevel := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		d, err := LoadFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		if prev, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("loading %q: dungeon id %d already defined in %q", path, d.ID, prev)
		}
		if prev, dup := byLevel[d.Level]; dup {
			return nil, fmt.Errorf("loading %q: dungeon level %d already defined in %q", path, d.Level, prev)
		}
		byID[d.ID] = path
		byLevel[d.Level] = path
		out = append(out, d)
	}
	SortByLevel(out)
	return out, nil
}

// SortByLevel orders dungeons by level, breaking ties by ID.
func SortByLevel(ds []combat.Dungeon) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Level != ds[j].Level {
			return ds[i].Level < ds[j].Level
		}
		return ds[i].ID < ds[j].ID
	})
}
