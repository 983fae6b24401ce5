package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	"github.com/campusmatch/engine/internal/cache"
	"github.com/campusmatch/engine/internal/config"
	"github.com/campusmatch/engine/internal/db"
	"github.com/campusmatch/engine/internal/jobs"
	"github.com/campusmatch/engine/internal/lock"
	"github.com/campusmatch/engine/internal/logger"
	"github.com/campusmatch/engine/internal/realtime"
	"github.com/campusmatch/engine/internal/realtime/gateway"
	"github.com/campusmatch/engine/internal/server"
	"github.com/campusmatch/engine/internal/service/block"
	"github.com/campusmatch/engine/internal/service/chat"
	"github.com/campusmatch/engine/internal/service/notification"
	"github.com/campusmatch/engine/internal/service/plan"
	"github.com/campusmatch/engine/internal/service/reaction"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg, log)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	hub := realtime.NewHub(log)
	appCtx := app.New(cfg, database, redisCache, log, hub)
	if cfg.Lock.Backend == "redis" {
		appCtx.Locker = lock.NewRedis(redisCache.Client, cfg.Lock.TTL)
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	jwt := auth.NewJWT(cfg.Auth.JWTSecret)
	public := []server.Registrar{
		gateway.NewRegistrar(gateway.New(appCtx, hub, jwt)),
	}
	protected := []server.Registrar{
		reaction.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
		plan.NewRegistrar(appCtx),
		notification.NewRegistrar(appCtx),
		block.NewRegistrar(appCtx),
	}
	router := server.NewRouter(appCtx, jwt, public, protected)

	scheduler, err := jobs.NewScheduler(appCtx)
	if err != nil {
		log.Error("failed to schedule jobs", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ServeHTTP(ctx, appCtx, router, hub.CloseAll) })
	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.StartGRPCServer(ctx, cfg)
	})
	g.Go(func() error { return scheduler.Run(ctx) })

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
