package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"editorial-queue/internal/adapters/candidates"
	"editorial-queue/internal/adapters/repo"
	"editorial-queue/internal/adapters/scoring"
	"editorial-queue/internal/infra/cache"
	"editorial-queue/internal/infra/config"
	"editorial-queue/internal/infra/db"
	"editorial-queue/internal/infra/log"
	"editorial-queue/internal/infra/metrics"
	"editorial-queue/internal/usecase/importer"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("importer: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	guard := cache.NewRedis(redisClient)

	repoAdapter := repo.NewPostgres(pool)
	rawSource := candidates.NewRSSSource(cfg.Importer.RawFeeds)
	synthesisSource := candidates.NewSynthesisClient(cfg.Importer.SynthesisURL, 0)
	uniquenessScorer := scoring.NewUniquenessClient(cfg.Importer.UniquenessURL, 0)
	service := importer.NewService(repoAdapter, rawSource, synthesisSource, uniquenessScorer, cfg.Importer.ItemTTL, logger)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))

	runImport := func(now time.Time) {
		date := now.UTC()
		// Замок на дату: параллельные экземпляры не импортируют день дважды.
		// Дедупликация по source_item_id подстрахует, если замок истечёт раньше времени.
		key := "import:" + date.Format("2006-01-02")
		err := guard.Once(key, cfg.Importer.RunInterval, func() error {
			rawReport, err := service.ImportRaw(ctx, date)
			if err != nil {
				return fmt.Errorf("импорт сырых материалов: %w", err)
			}
			logger.Info().Int("added", rawReport.Added).Int("skipped", rawReport.Skipped).Msg("importer: сырые материалы")

			synthReport, err := service.ImportSynthesis(ctx, date)
			if err != nil {
				return fmt.Errorf("импорт синтезированных кандидатов: %w", err)
			}
			logger.Info().Int("added", synthReport.Added).Int("skipped", synthReport.Skipped).Int("failed", len(synthReport.Failed)).Msg("importer: синтезированные кандидаты")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("importer: запуск не удался")
		}
	}

	runImport(time.Now())
	ticker := time.NewTicker(cfg.Importer.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("importer: остановка")
			return
		case now := <-ticker.C:
			runImport(now)
		}
	}
}
