package config

import (
	"time"

	"github.com/joho/godotenv"

	"github.com/rickshauling/ticketdrop/internal/shared/env"
)

const defaultCompany = "Rick's Oilfield Hauling"

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	StoreDriver string
	DatabaseURL string

	OutboxBatchSize         int
	OutboxPollInterval      time.Duration
	OutboxProcessingTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	VocabCacheTTL time.Duration

	VocabularyFile string
	JWTSecret      string
	ExportDir      string
	CompanyName    string
}

// Load reads .env (if present, without overriding the process environment)
// and then the environment itself.
func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{
		AppEnv:      env.String("APP_ENV", "dev"),
		HTTPAddr:    env.String("HTTP_ADDR", ":8080"),
		MetricsAddr: env.String("METRICS_ADDR", ":9090"),

		StoreDriver: env.String("STORE_DRIVER", "memory"),
		DatabaseURL: env.String("DATABASE_URL", ""),

		OutboxBatchSize:         env.Int("OUTBOX_BATCH_SIZE", 50),
		OutboxPollInterval:      env.Duration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxProcessingTimeout: env.Duration("OUTBOX_PROCESSING_TIMEOUT", 30*time.Second),

		KafkaBrokers: env.StringsCSV("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:   env.String("KAFKA_TOPIC", "tickets.events"),
		KafkaGroupID: env.String("KAFKA_GROUP_ID", ""),

		RedisAddr:     env.String("REDIS_ADDR", ""),
		RedisPassword: env.String("REDIS_PASSWORD", ""),
		RedisDB:       env.Int("REDIS_DB", 0),
		VocabCacheTTL: env.Duration("VOCAB_CACHE_TTL", 5*time.Minute),

		VocabularyFile: env.String("VOCABULARY_FILE", ""),
		JWTSecret:      env.String("JWT_SECRET", ""),
		ExportDir:      env.String("EXPORT_DIR", ".tmp"),
		CompanyName:    env.String("COMPANY_NAME", defaultCompany),
	}

	if cfg.DatabaseURL != "" && cfg.StoreDriver == "memory" && env.String("STORE_DRIVER", "") == "" {
		cfg.StoreDriver = "postgres"
	}

	return cfg
}
