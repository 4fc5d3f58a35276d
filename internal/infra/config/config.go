package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов очереди.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int    `envconfig:"PG_MAX_CONNS" default:"5"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Queues struct {
		Reindex string `envconfig:"REINDEX_QUEUE_KEY" default:"reindex_jobs"`
	} `envconfig:""`

	Selection struct {
		MaxItems int `envconfig:"SELECTION_MAX_ITEMS" default:"10"`
	} `envconfig:""`

	Importer struct {
		ItemTTL       time.Duration `envconfig:"ITEM_TTL" default:"72h"`
		RunInterval   time.Duration `envconfig:"IMPORT_INTERVAL" default:"1h"`
		RawFeeds      []string      `envconfig:"RAW_FEED_URLS"`
		SynthesisURL  string        `envconfig:"SYNTHESIS_SOURCE_URL"`
		UniquenessURL string        `envconfig:"UNIQUENESS_SCORER_URL"`
	} `envconfig:""`

	Sweeper struct {
		Interval time.Duration `envconfig:"EXPIRE_SWEEP_INTERVAL" default:"10m"`
	} `envconfig:""`

	Generation struct {
		NotifyURL string `envconfig:"GENERATION_NOTIFY_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
