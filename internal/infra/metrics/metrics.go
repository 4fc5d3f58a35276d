package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ImportedItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_imported_items_total",
		Help: "Количество импортированных элементов очереди",
	}, []string{"path"})

	ImportFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_import_failures_total",
		Help: "Кандидаты, пропущенные из-за сбоев внешних сервисов",
	}, []string{"path"})

	LifecycleTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_lifecycle_transitions_total",
		Help: "Переходы жизненного цикла элементов очереди",
	}, []string{"transition"})

	SelectionBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_selection_build_seconds",
		Help:    "Время расчёта сбалансированной выборки",
		Buckets: prometheus.DefBuckets,
	})

	ReindexUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relink_updates_total",
		Help: "Иллюстрации, переиндексированные при сверке",
	})

	ReindexDeletionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relink_deletions_total",
		Help: "Иллюстрации, удалённые каскадом при сверке",
	})

	ReindexMissingTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relink_missing_total",
		Help: "Секции без иллюстраций, переданные генератору",
	})

	ExpireSweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_expire_sweep_failures_total",
		Help: "Ошибки развёртки истечения",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ImportedItemsTotal,
		ImportFailuresTotal,
		LifecycleTransitionsTotal,
		SelectionBuildSeconds,
		ReindexUpdatesTotal,
		ReindexDeletionsTotal,
		ReindexMissingTotal,
		ExpireSweepFailures,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// AddImportedItems учитывает импортированные элементы по пути импорта.
func AddImportedItems(path string, count int) {
	if count > 0 {
		ImportedItemsTotal.WithLabelValues(path).Add(float64(count))
	}
}

// AddImportFailures учитывает кандидатов, отложенных из-за внешних сбоев.
func AddImportFailures(path string, count int) {
	if count > 0 {
		ImportFailuresTotal.WithLabelValues(path).Add(float64(count))
	}
}

// IncLifecycleTransition учитывает переходы жизненного цикла.
func IncLifecycleTransition(transition string, count int) {
	if count > 0 {
		LifecycleTransitionsTotal.WithLabelValues(transition).Add(float64(count))
	}
}

// ObserveReindex учитывает результат одной сверки иллюстраций.
func ObserveReindex(updated, deleted, missing int) {
	ReindexUpdatesTotal.Add(float64(updated))
	ReindexDeletionsTotal.Add(float64(deleted))
	ReindexMissingTotal.Add(float64(missing))
}
