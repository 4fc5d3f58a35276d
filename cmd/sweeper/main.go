package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"editorial-queue/internal/adapters/repo"
	"editorial-queue/internal/infra/config"
	"editorial-queue/internal/infra/db"
	"editorial-queue/internal/infra/log"
	"editorial-queue/internal/infra/metrics"
	"editorial-queue/internal/usecase/lifecycle"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	service := lifecycle.NewService(repoAdapter, repoAdapter, logger)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))

	sweep := func(now time.Time) {
		expired, err := service.Expire(ctx, now.UTC())
		if err != nil {
			metrics.ExpireSweepFailures.Inc()
			logger.Error().Err(err).Msg("sweeper: развёртка не удалась")
			return
		}
		if expired > 0 {
			logger.Info().Int("expired", expired).Msg("sweeper: элементы истекли")
		}
	}

	sweep(time.Now())
	ticker := time.NewTicker(cfg.Sweeper.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sweeper: остановка")
			return
		case now := <-ticker.C:
			sweep(now)
		}
	}
}
