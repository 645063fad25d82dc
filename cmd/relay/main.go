package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/internal/gateway"
	"github.com/SloanRudderham/tl-quotes-relay/internal/hub"
	"github.com/SloanRudderham/tl-quotes-relay/internal/limiter"
	"github.com/SloanRudderham/tl-quotes-relay/internal/relay"
	"github.com/SloanRudderham/tl-quotes-relay/internal/store"
	"github.com/SloanRudderham/tl-quotes-relay/internal/upstream"
	"github.com/SloanRudderham/tl-quotes-relay/internal/watchdog"
	"github.com/SloanRudderham/tl-quotes-relay/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.App)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	st := store.New()
	h := hub.New(st, cfg.App.Env, logger)

	var lim limiter.Limiter = limiter.Noop{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		lim = limiter.NewRedisLimiter(rdb, cfg.Redis.RateMax, cfg.Redis.RateWindow)
	}

	var src upstream.Source
	var live upstream.Liveness
	switch cfg.Upstream.Mode {
	case "kafka":
		ks := upstream.NewKafkaSource(cfg.Kafka, cfg.Upstream.EventBuffer, logger)
		src, live = ks, ks
	default:
		wsrc := upstream.NewWSSource(cfg.Upstream, logger)
		src, live = wsrc, wsrc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := src.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Upstream source stopped", zap.Error(err))
		}
	}()

	pipeline := relay.New(src.Events(), st, h, logger)
	go pipeline.Run(ctx)

	wd := watchdog.New(live, cfg.Watchdog.StalenessThreshold, cfg.Watchdog.PollInterval, logger)
	go wd.Run(ctx)

	server := gateway.NewServer(st, h, live, lim, cfg.App, cfg.Stream, logger)
	srv := &http.Server{Addr: cfg.App.Port, Handler: server.Routes()}

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.String("env", cfg.App.Env),
			zap.String("upstream_mode", cfg.Upstream.Mode))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-stop:
		logger.Info("Shutdown signal received")
	case <-wd.Fired():
		// Fail fast: let the supervisor restart a fresh process instead of
		// serving quotes nobody is updating.
		logger.Error("Watchdog fired, exiting for supervisor restart")
		exitCode = 1
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("Shutdown Complete")
	logger.Sync()
	os.Exit(exitCode)
}
