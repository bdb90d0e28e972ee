package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tarbo/litmus-platform/config"
	"github.com/Tarbo/litmus-platform/experiments"
	"github.com/Tarbo/litmus-platform/logger"
	"github.com/Tarbo/litmus-platform/observability"
	"github.com/Tarbo/litmus-platform/redisclient"
	"github.com/Tarbo/litmus-platform/router"
	"github.com/Tarbo/litmus-platform/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("litmus platform starting")

	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — continuing without Redis")
		} else if err := rc.Ping(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — continuing without Redis")
		} else {
			log.Info().Msg("redis connected")
		}
	} else {
		log.Info().Msg("no REDIS_URL configured — rate limiter stays in-memory")
	}

	coordinator := experiments.New(store.NewMemory())
	metrics := observability.NewMetrics(log)

	r := router.NewRouter(cfg, log, coordinator, metrics)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("litmus platform listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("litmus platform stopped gracefully")
	}
}
