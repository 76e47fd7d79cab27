package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Драйверы основного хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы поисковой проекции.
const (
	SearchDriverMemory = "memory"
	SearchDriverMongo  = "mongo"
)

const envPrefix = "STOREFRONT_"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	SearchDriver  string
	MongoURI      string
	MongoDatabase string

	KafkaBrokers         []string
	KafkaProjectionTopic string
	KafkaDLQTopic        string
	KafkaConsumerGroup   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending: порог backlog, после которого /healthz отвечает degraded.
	OutboxMaxPending int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	CORSOrigins []string
	// BootstrapAdmin: имя администратора, создаваемого при старте, если его ещё нет.
	BootstrapAdmin  string
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		SearchDriver:                SearchDriverMemory,
		MongoDatabase:               "storefront",
		KafkaProjectionTopic:        kafka.TopicProjectionEvents,
		KafkaDLQTopic:               kafka.TopicDeadLetterQueue,
		KafkaConsumerGroup:          "storefront-projection",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           5,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyTTL:              domain.DefaultIdempotencyTTL,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		JWTIssuer:                   "storefront",
		ShutdownTimeout:             5 * time.Second,
	}
}

// ConfigFromEnv накладывает переменные STOREFRONT_* на DefaultConfig.
// Пустая переменная оставляет значение по умолчанию.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{getenv: getenv}

	env.str("HTTP_ADDR", &cfg.HTTPAddr)
	env.str("GRPC_ADDR", &cfg.GRPCAddr)
	env.str("METRICS_ADDR", &cfg.MetricsAddr)

	env.str("STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	env.str("SEARCH_DRIVER", &cfg.SearchDriver)
	env.str("MONGO_URI", &cfg.MongoURI)
	env.str("MONGO_DATABASE", &cfg.MongoDatabase)

	env.list("KAFKA_BROKERS", &cfg.KafkaBrokers)
	env.str("KAFKA_PROJECTION_TOPIC", &cfg.KafkaProjectionTopic)
	env.str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)
	env.str("KAFKA_CONSUMER_GROUP", &cfg.KafkaConsumerGroup)

	env.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	env.integer("OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)

	env.duration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	env.duration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	env.str("JWT_SECRET", &cfg.JWTSecret)
	env.str("JWT_ISSUER", &cfg.JWTIssuer)
	env.str("JWT_AUDIENCE", &cfg.JWTAudience)

	env.list("CORS_ORIGINS", &cfg.CORSOrigins)
	env.str("BOOTSTRAP_ADMIN", &cfg.BootstrapAdmin)
	env.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if env.err != nil {
		return Config{}, env.err
	}
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.SearchDriver = strings.ToLower(cfg.SearchDriver)
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек драйверов.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%sPOSTGRES_DSN is required for storage driver %q", envPrefix, c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.SearchDriver {
	case SearchDriverMemory:
	case SearchDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("%sMONGO_URI is required for search driver %q", envPrefix, c.SearchDriver)
		}
	default:
		return fmt.Errorf("unsupported search driver %q", c.SearchDriver)
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("%sJWT_SECRET is required", envPrefix)
	}
	return nil
}

// envReader запоминает первую ошибку разбора, чтобы не проверять каждую переменную.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) lookup(key string) (string, bool) {
	raw := strings.TrimSpace(r.getenv(envPrefix + key))
	return raw, raw != ""
}

func (r *envReader) fail(key, raw string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("parse %s%s=%q: %w", envPrefix, key, raw, err)
	}
}

func (r *envReader) str(key string, dst *string) {
	if raw, ok := r.lookup(key); ok {
		*dst = raw
	}
}

func (r *envReader) list(key string, dst *[]string) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (r *envReader) boolean(key string, dst *bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) integer(key string, dst *int) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) duration(key string, dst *time.Duration) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}
