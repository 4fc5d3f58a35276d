package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"editorial-queue/internal/adapters/article"
	"editorial-queue/internal/adapters/generation"
	"editorial-queue/internal/adapters/repo"
	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/config"
	"editorial-queue/internal/infra/db"
	"editorial-queue/internal/infra/log"
	"editorial-queue/internal/infra/metrics"
	"editorial-queue/internal/infra/queue"
	"editorial-queue/internal/usecase/relink"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("relinker: нет подключения к БД")
	}
	defer pool.Close()

	var jobs domain.ReindexQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitReindexQueue(cfg.AMQPURL, cfg.Queues.Reindex)
		if err != nil {
			logger.Fatal().Err(err).Msg("relinker: нет подключения к брокеру")
		}
		defer rabbit.Close()
		jobs = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobs = queue.NewRedisReindexQueue(redisClient, cfg.Queues.Reindex)
	}

	repoAdapter := repo.NewPostgres(pool)
	notifier := generation.NewNotifier(cfg.Generation.NotifyURL, 0)
	service := relink.NewService(repoAdapter, article.NewParser(), repoAdapter, notifier, repoAdapter, logger)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))

	logger.Info().Str("queue", cfg.Queues.Reindex).Msg("relinker: запущен")
	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("relinker: остановка")
				return
			}
			logger.Error().Err(err).Msg("relinker: ошибка чтения очереди")
			continue
		}

		processErr := service.ProcessJob(ctx, job)
		if processErr != nil {
			logger.Error().Err(processErr).Str("post", job.PostID).Msg("relinker: задача не обработана")
		}
		if err := ack(processErr == nil); err != nil {
			logger.Error().Err(err).Str("post", job.PostID).Msg("relinker: не удалось подтвердить задачу")
		}
	}
}
