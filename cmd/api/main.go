package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"editorial-queue/internal/adapters/article"
	"editorial-queue/internal/adapters/candidates"
	"editorial-queue/internal/adapters/generation"
	"editorial-queue/internal/adapters/httpapi"
	"editorial-queue/internal/adapters/repo"
	"editorial-queue/internal/adapters/scoring"
	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/config"
	"editorial-queue/internal/infra/db"
	"editorial-queue/internal/infra/http"
	"editorial-queue/internal/infra/log"
	"editorial-queue/internal/infra/metrics"
	"editorial-queue/internal/infra/queue"
	"editorial-queue/internal/usecase/importer"
	"editorial-queue/internal/usecase/lifecycle"
	"editorial-queue/internal/usecase/relink"
	"editorial-queue/internal/usecase/selection"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var jobs domain.ReindexQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitReindexQueue(cfg.AMQPURL, cfg.Queues.Reindex)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к брокеру")
		}
		defer rabbit.Close()
		jobs = rabbit
	}

	selectionService := selection.NewService(repoAdapter)
	lifecycleService := lifecycle.NewService(repoAdapter, repoAdapter, logger)

	rawSource := candidates.NewRSSSource(cfg.Importer.RawFeeds)
	synthesisSource := candidates.NewSynthesisClient(cfg.Importer.SynthesisURL, 0)
	uniquenessScorer := scoring.NewUniquenessClient(cfg.Importer.UniquenessURL, 0)
	importerService := importer.NewService(repoAdapter, rawSource, synthesisSource, uniquenessScorer, cfg.Importer.ItemTTL, logger)

	notifier := generation.NewNotifier(cfg.Generation.NotifyURL, 0)
	relinkService := relink.NewService(repoAdapter, article.NewParser(), repoAdapter, notifier, repoAdapter, logger)

	handler := httpapi.NewHandler(selectionService, lifecycleService, importerService, relinkService, jobs, cfg.Selection.MaxItems, logger)

	server := http.NewServer(logger)
	handler.Register(server.Router)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: не удалось корректно остановить сервер")
	}
}
