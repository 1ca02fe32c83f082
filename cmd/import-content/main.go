// Package main imports dungeon YAML content into the database, or exports
// stored dungeons back to YAML.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonclicker/internal/config"
	"github.com/cory-johannsen/dungeonclicker/internal/importer"
	"github.com/cory-johannsen/dungeonclicker/internal/observability"
	"github.com/cory-johannsen/dungeonclicker/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	sourceDir := flag.String("source", "", "dungeon YAML directory (default: content.dungeons_dir)")
	exportDir := flag.String("export", "", "write stored dungeons to this directory instead of importing")
	dryRun := flag.Bool("dry-run", false, "load and validate only; do not touch the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dir := *sourceDir
	if dir == "" {
		dir = cfg.Content.DungeonsDir
	}
	if dir == "" && *exportDir == "" {
		fmt.Fprintln(os.Stderr, "usage: import-content [-config <file>] [-source <dir> | -export <dir>] [-dry-run]")
		os.Exit(1)
	}

	ctx := context.Background()
	if *dryRun {
		rep, err := importer.New(importer.YAMLSource, nil, logger).Run(ctx, dir, true)
		if err != nil {
			logger.Fatal("validating content", zap.Error(err))
		}
		fmt.Printf("validated %d dungeon(s) in %s\n", rep.Dungeons, rep.Elapsed.Round(time.Millisecond))
		return
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	repo := postgres.NewDungeonRepository(pool.DB())
	imp := importer.New(importer.YAMLSource, repo, logger)

	if *exportDir != "" {
		rep, err := imp.Export(ctx, repo, *exportDir)
		if err != nil {
			logger.Fatal("exporting dungeons", zap.Error(err))
		}
		fmt.Printf("exported %d dungeon(s) to %s in %s\n", rep.Dungeons, *exportDir, rep.Elapsed.Round(time.Millisecond))
		return
	}

	rep, err := imp.Run(ctx, dir, false)
	if err != nil {
		logger.Fatal("importing dungeons", zap.Error(err), zap.Int("stored", rep.Dungeons))
	}
	fmt.Printf("import complete: %d dungeon(s) in %s\n", rep.Dungeons, rep.Elapsed.Round(time.Millisecond))
}
