// Package importer moves dungeon content between YAML files and the database.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dungeonclicker/internal/game/dungeon"
)

// Importer orchestrates content import from a Source to a Sink.
type Importer struct {
	source Source
	sink   Sink
	logger *zap.Logger
}

// Report summarizes one Run or Export.
type Report struct {
	Dungeons int
	Elapsed  time.Duration
}

// New constructs an Importer.
//
// Precondition: source and logger must be non-nil. sink may be nil for Export-only use.
// Postcondition: returns a non-nil Importer.
func New(source Source, sink Sink, logger *zap.Logger) *Importer {
	return &Importer{source: source, sink: sink, logger: logger}
}

// Run loads every dungeon in sourceDir and upserts each into the sink.
// Nothing is written unless the whole directory loads and validates.
// With dryRun set, dungeons are loaded and validated only.
//
// Precondition: sourceDir must satisfy the source's layout requirements;
// sink must be non-nil unless dryRun.
// Postcondition: every dungeon is stored, or an error is returned. A
// failure part way leaves the dungeons before it stored.
func (imp *Importer) Run(ctx context.Context, sourceDir string, dryRun bool) (Report, error) {
	start := time.Now()

	ds, err := imp.source.Load(sourceDir)
	if err != nil {
		return Report{}, fmt.Errorf("loading source: %w", err)
	}
	imp.logger.Info("dungeons loaded",
		zap.String("dir", sourceDir),
		zap.Int("count", len(ds)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if dryRun {
		return Report{Dungeons: len(ds), Elapsed: time.Since(start)}, nil
	}
	if imp.sink == nil {
		return Report{}, fmt.Errorf("importer has no sink")
	}

	for i, d := range ds {
		if err := imp.sink.UpsertDungeon(ctx, d); err != nil {
			return Report{Dungeons: i, Elapsed: time.Since(start)}, fmt.Errorf("storing dungeon %d: %w", d.ID, err)
		}
		imp.logger.Debug("dungeon stored",
			zap.Int64("dungeon_id", d.ID),
			zap.Int("level", d.Level),
			zap.String("name", d.Name),
		)
	}
	return Report{Dungeons: len(ds), Elapsed: time.Since(start)}, nil
}

// Export writes every dungeon from lister to outputDir as <level>-<id>.yaml.
//
// Precondition: outputDir must exist or be creatable.
// Postcondition: every written file loads back through dungeon.LoadFromBytes.
func (imp *Importer) Export(ctx context.Context, lister Lister, outputDir string) (Report, error) {
	start := time.Now()

	ds, err := lister.ListDungeons(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing dungeons: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Report{}, fmt.Errorf("creating output directory %s: %w", outputDir, err)
	}

	for _, d := range ds {
		data, err := yaml.Marshal(dungeon.FileFor(d))
		if err != nil {
			return Report{}, fmt.Errorf("serialising dungeon %d: %w", d.ID, err)
		}

		// Validate output is loadable before writing.
		if _, err := dungeon.LoadFromBytes(data); err != nil {
			return Report{}, fmt.Errorf("dungeon %d failed validation: %w", d.ID, err)
		}

		outPath := filepath.Join(outputDir, fmt.Sprintf("%02d-%d.yaml", d.Level, d.ID))
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return Report{}, fmt.Errorf("writing dungeon %d to %s: %w", d.ID, outPath, err)
		}
		imp.logger.Debug("dungeon exported", zap.Int64("dungeon_id", d.ID), zap.String("path", outPath))
	}
	return Report{Dungeons: len(ds), Elapsed: time.Since(start)}, nil
}
