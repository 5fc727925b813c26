package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizlive/internal/clock"
	"quizlive/internal/config"
	"quizlive/internal/connreg"
	"quizlive/internal/metrics"
	"quizlive/internal/pubsub"
	"quizlive/internal/quizdef"
	"quizlive/internal/recovery"
	"quizlive/internal/sessionstore"
	"quizlive/internal/transport"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	transport.SetupLogger(cfg.Log.Level)
	transport.SetProduction(cfg)

	log.Info().Msg("starting quiz session core")

	ctx := context.Background()

	rdb, err := sessionstore.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	durableDB, err := sessionstore.NewPostgresDB(cfg.Durable.URL, cfg.Server.Env, cfg.Durable.MaxConns, cfg.Durable.MinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to durable store")
	}
	durableSQL, err := durableDB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to obtain durable store handle")
	}
	defer durableSQL.Close()

	durable := sessionstore.NewLoggedDurableStore(sessionstore.NewGormDurableStore(durableDB))

	store := sessionstore.NewRedisStore(rdb, sessionstore.CompositeIntScorer{}, cfg.GetSessionIdleTTL())
	quizzes := quizdef.NewPostgresStore(durableDB)
	bus := pubsub.NewRedisBus(rdb)
	registry := connreg.New()
	clk := clock.Real{}
	rec := recovery.New(store, quizzes, clk)

	collector := metrics.New(map[string]metrics.Pinger{
		"redis":   redisPinger{rdb},
		"durable": durable,
	})
	go collector.Run(ctx, 15*time.Second)

	hub := transport.NewHub(cfg, store, durable, quizzes, bus, registry, rec, clk, collector)

	rateLimiter := transport.NewRateLimiter(cfg)
	adminAuth := transport.NewAdminAuth(cfg)
	router := transport.NewRouter(hub, rateLimiter, adminAuth)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// redisPinger adapts *redis.Client to metrics.Pinger.
type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Health(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
