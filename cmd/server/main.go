package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dxxy/mss-sync/internal/clickhouse"
	"github.com/dxxy/mss-sync/internal/db"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/httpapi"
	"github.com/dxxy/mss-sync/internal/push"
	"github.com/dxxy/mss-sync/internal/redislock"
	"github.com/dxxy/mss-sync/internal/runner"
	"github.com/dxxy/mss-sync/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Fatal().Str("key", k).Str("value", v).Msg("invalid integer in environment")
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatal().Str("key", k).Str("value", v).Msg("invalid duration in environment")
		}
		return d
	}
	return def
}

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "mss-sync").Logger()

	// Pretty logging for local dev
	if env("ENV", "dev") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	mysqlDSN := env("MYSQL_DSN", "")
	if mysqlDSN == "" {
		log.Fatal().Msg("MYSQL_DSN is required")
	}
	gatewayURL := env("GATEWAY_URL", "")
	if gatewayURL == "" {
		log.Fatal().Msg("GATEWAY_URL is required")
	}

	mysql, err := db.OpenMySQL(ctx, mysqlDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	defer mysql.Close()

	rdb, err := db.OpenRedis(ctx, db.RedisOptions{
		Addr:     env("REDIS_ADDR", "localhost:6379"),
		Password: env("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	chCluster, err := clickhouse.Open(ctx, clickhouse.Options{
		Addrs:    strings.Split(env("CLICKHOUSE_ADDRS", "localhost:9000"), ","),
		Database: env("CLICKHOUSE_DATABASE", "DXXY_LOCAL"),
		Username: env("CLICKHOUSE_USER", "default"),
		Password: env("CLICKHOUSE_PASSWORD", ""),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to clickhouse")
	}
	defer chCluster.Close()

	gw := gateway.New(gateway.Config{
		BaseURL: gatewayURL,
		Source:  uint32(envInt("GATEWAY_SOURCE", 0)),
		Target:  uint32(envInt("GATEWAY_TARGET", 0)),
	})

	sink := store.NewSink(mysql)
	marks := store.NewWatermarkStore(mysql)
	locker := redislock.New(rdb)

	syncRunner := runner.New(locker, marks, gw, sink)
	pushEngine := push.NewEngine(mysql, chCluster, gw)

	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()

	sched := runner.NewScheduler(syncRunner, envDuration("SYNC_INTERVAL", 5*time.Minute))
	go sched.Run(schedCtx)

	pushSched := push.NewScheduler(pushEngine, envDuration("PUSH_INTERVAL", 24*time.Hour))
	go pushSched.Run(schedCtx)

	// HTTP server setup
	srv := &httpapi.Server{Sync: syncRunner, Push: pushEngine}

	httpAddr := env("HTTP_ADDR", ":8081")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	stopSched()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
