// Package main provides the fight server binary: the per-player boss fight
// loops exposed over gRPC plus a websocket event feed.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/dungeonclicker/internal/config"
	"github.com/cory-johannsen/dungeonclicker/internal/game/dice"
	"github.com/cory-johannsen/dungeonclicker/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonclicker/internal/game/progression"
	"github.com/cory-johannsen/dungeonclicker/internal/gameserver"
	"github.com/cory-johannsen/dungeonclicker/internal/observability"
	"github.com/cory-johannsen/dungeonclicker/internal/scripting"
	"github.com/cory-johannsen/dungeonclicker/internal/server"
	"github.com/cory-johannsen/dungeonclicker/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight calls on shutdown")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting fight server",
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.String("web_addr", cfg.Web.Addr()),
	)

	var src dice.Source
	if cfg.Fight.Seed != 0 {
		src = dice.NewSeededSource(cfg.Fight.Seed)
		logger.Warn("attack rolls are deterministic", zap.Uint64("seed", cfg.Fight.Seed))
	} else {
		src = dice.NewCryptoSource()
	}
	roller := dice.NewLoggedRoller(src, logger)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	dungeonRepo := postgres.NewDungeonRepository(pool.DB())
	playerRepo := postgres.NewPlayerRepository(pool.DB())

	catalog := dungeon.NewCatalog(dungeonRepo, logger)
	if cfg.Content.DungeonsDir != "" {
		ds, err := dungeon.LoadDir(cfg.Content.DungeonsDir)
		if err != nil {
			logger.Fatal("loading dungeons", zap.String("dir", cfg.Content.DungeonsDir), zap.Error(err))
		}
		if err := catalog.Add(ds...); err != nil {
			logger.Fatal("registering dungeons", zap.Error(err))
		}
		logger.Info("dungeons loaded", zap.Int("count", catalog.Len()))
	}

	opts := gameserver.HandlerOptions{
		TickInterval:   cfg.Fight.TickInterval,
		EventBuffer:    cfg.Fight.EventBuffer,
		OutcomeTimeout: cfg.Fight.OutcomeTimeout,
	}
	var scriptMgr *scripting.Manager
	if cfg.Content.ScriptsDir != "" {
		scriptMgr = scripting.NewManager(roller, cfg.Content.ScriptInstructionLimit, logger)
		if err := scriptMgr.LoadTree(cfg.Content.ScriptsDir); err != nil {
			logger.Fatal("loading scripts", zap.String("dir", cfg.Content.ScriptsDir), zap.Error(err))
		}
		if scriptMgr.Loaded() {
			opts.Narrator = scriptMgr
		}
	}

	progress := progression.NewService(playerRepo, cfg.Fight.OutcomeTimeout, logger)
	fights := gameserver.NewFightHandler(catalog, playerRepo, progress, roller.Draw, opts, logger)

	grpcServer := grpc.NewServer()
	gameserver.RegisterFightServiceServer(grpcServer, gameserver.NewFightService(fights, logger))

	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		logger.Fatal("listening for grpc", zap.String("addr", cfg.GRPC.Addr()), zap.Error(err))
	}
	webLis, err := net.Listen("tcp", cfg.Web.Addr())
	if err != nil {
		logger.Fatal("listening for websocket feed", zap.String("addr", cfg.Web.Addr()), zap.Error(err))
	}
	httpServer := &http.Server{
		Handler:           gameserver.NewEventsHandler(fights, cfg.Web.InsecureSkipVerify, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Stopped in reverse: fights first so watch streams and feeds end
	// before the listeners drain.
	lifecycle := server.NewLifecycle(logger, *shutdownTimeout)
	lifecycle.Add("grpc", server.GRPCService(grpcServer, grpcLis))
	lifecycle.Add("web", server.HTTPService(httpServer, webLis))
	fightsDone := make(chan struct{})
	lifecycle.Add("fights", &server.FuncService{
		StartFn: func() error {
			<-fightsDone
			return nil
		},
		StopFn: func(context.Context) error {
			fights.Close()
			close(fightsDone)
			return nil
		},
	})
	if scriptMgr != nil {
		lifecycle.OnShutdown("scripting", scriptMgr.Close)
	}
	lifecycle.OnShutdown("database", pool.Close)

	logger.Info("fight server ready",
		zap.String("grpc_addr", grpcLis.Addr().String()),
		zap.String("web_addr", webLis.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("fight server exited", zap.Error(err))
	}
}
