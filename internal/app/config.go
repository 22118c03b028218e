package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/messaging/kafka"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "STOREFRONT_"

const minJWTSecretLen = 16

// devJWTSecret — значение по умолчанию, допустимое только с памятью вместо хранилища.
const devJWTSecret = "dev-only-change-me-please"

// Config описывает настройки запуска витрины. Значения читаются из STOREFRONT_*.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":50051"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	StorageDriver           string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN             string        `env:"POSTGRES_DSN"`
	PostgresAutoMigrate     bool          `env:"POSTGRES_AUTO_MIGRATE" envDefault:"true"`
	PostgresMaxConns        int           `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	MongoURI                string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase           string        `env:"MONGO_DATABASE" envDefault:"coffeeshop"`

	// При пустом RedisAddr кеш каталога выключен.
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`

	// При пустом KafkaBrokers события заказа обрабатываются в процессе.
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string   `env:"KAFKA_TOPIC" envDefault:"storefront.order.events"`
	KafkaDLQTopic      string   `env:"KAFKA_DLQ_TOPIC" envDefault:"storefront.dlq"`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"storefront-order-notifier"`
	KafkaMaxRetries    int      `env:"KAFKA_MAX_RETRIES" envDefault:"3"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"3"`
	OutboxRetryDelay   time.Duration `env:"OUTBOX_RETRY_DELAY" envDefault:"50ms"`
	// OutboxMaxPending — порог backlog, после которого health показывает degraded.
	OutboxMaxPending int `env:"OUTBOX_MAX_PENDING" envDefault:"1000"`

	IdempotencyTTL              time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyCleanupInterval  time.Duration `env:"IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"1m"`
	IdempotencyCleanupBatchSize int           `env:"IDEMPOTENCY_CLEANUP_BATCH_SIZE" envDefault:"500"`

	JWTSecret  string        `env:"JWT_SECRET" envDefault:"dev-only-change-me-please"`
	JWTTTL     time.Duration `env:"JWT_TTL" envDefault:"720h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	Currency                   string `env:"CURRENCY" envDefault:"USD"`
	DeliveryFeeMinor           int64  `env:"DELIVERY_FEE_MINOR" envDefault:"299"`
	FreeDeliveryThresholdMinor int64  `env:"FREE_DELIVERY_THRESHOLD_MINOR" envDefault:"2500"`

	PaymentGatewayURL      string        `env:"PAYMENT_GATEWAY_URL" envDefault:"https://pay.coffeeshop.example/checkout"`
	DeepLinkScheme         string        `env:"DEEP_LINK_SCHEME" envDefault:"coffeeshop"`
	PaymentBreakerFailures int           `env:"PAYMENT_BREAKER_FAILURES" envDefault:"5"`
	PaymentBreakerReset    time.Duration `env:"PAYMENT_BREAKER_RESET" envDefault:"30s"`

	MailFrom      string `env:"MAIL_FROM" envDefault:"Coffee Shop <orders@coffeeshop.example>"`
	StoreName     string `env:"STORE_NAME" envDefault:"Coffee Shop"`
	DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"en"`

	SeedCatalog bool `env:"SEED_CATALOG" envDefault:"false"`
}

// DefaultConfig возвращает значения envDefault без чтения окружения.
func DefaultConfig() Config {
	var cfg Config
	// Пустое окружение: применяются только envDefault, ошибка невозможна.
	_ = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	return cfg
}

// LoadConfig читает STOREFRONT_* из окружения процесса и проверяет результат.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

func loadConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var problems []string
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			problems = append(problems, "STOREFRONT_POSTGRES_DSN is required for postgres storage")
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" || strings.TrimSpace(c.MongoDatabase) == "" {
			problems = append(problems, "STOREFRONT_MONGO_URI and STOREFRONT_MONGO_DATABASE are required for mongo storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported storage driver %q", c.StorageDriver))
	}
	switch {
	case len(c.JWTSecret) < minJWTSecretLen:
		problems = append(problems, fmt.Sprintf("STOREFRONT_JWT_SECRET must be at least %d bytes", minJWTSecretLen))
	case c.JWTSecret == devJWTSecret && c.StorageDriver != StorageDriverMemory:
		problems = append(problems, "STOREFRONT_JWT_SECRET must be set for persistent storage")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(c.Currency) == "" {
		problems = append(problems, "STOREFRONT_CURRENCY is required")
	}
	if c.DeliveryFeeMinor < 0 || c.FreeDeliveryThresholdMinor < 0 {
		problems = append(problems, "delivery fee and free delivery threshold must be non-negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// KafkaEnabled сообщает, что события уходят в брокер, а не обрабатываются в процессе.
func (c Config) KafkaEnabled() bool {
	return len(c.Brokers()) > 0
}

// Brokers — список брокеров без пустых элементов.
func (c Config) Brokers() []string {
	return kafka.ParseBrokers(c.KafkaBrokers...)
}

// ConfigureLogger применяет уровень логирования и формат cmd-бинарников.
func ConfigureLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
