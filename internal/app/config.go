package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

const (
	envGRPCAddr             = "SHOP_GRPC_ADDR"
	envMetricsAddr          = "SHOP_METRICS_ADDR"
	envStorageDriver        = "SHOP_STORAGE_DRIVER"
	envPostgresDSN          = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate  = "SHOP_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns     = "SHOP_POSTGRES_MAX_CONNS"
	envKafkaBrokers         = "SHOP_KAFKA_BROKERS"
	envKafkaTopicOrders     = "SHOP_KAFKA_TOPIC_ORDERS"
	envKafkaTopicNotices    = "SHOP_KAFKA_TOPIC_NOTIFICATIONS"
	envOutboxPollInterval   = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize      = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts    = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxMaxPending     = "SHOP_OUTBOX_MAX_PENDING"
	envPointAccrualBPS      = "SHOP_POINT_ACCRUAL_BPS"
	envImageCacheSize       = "SHOP_IMAGE_CACHE_SIZE"
	envImageCacheTTL        = "SHOP_IMAGE_CACHE_TTL"
	envNotifyWorkers        = "SHOP_NOTIFY_WORKERS"
	envNotifyTimeout        = "SHOP_NOTIFY_TIMEOUT"
	envLogLevel             = "SHOP_LOG_LEVEL"
	envShutdownGracePeriod  = "SHOP_SHUTDOWN_GRACE_PERIOD"
	maxPointAccrualBPS      = 10000
	defaultPointAccrualBPS  = 50
	defaultShutdownGrace    = 5 * time.Second
	defaultNotifyTimeout    = 5 * time.Second
	defaultOutboxMaxPending = 1000
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	KafkaBrokers            []string
	KafkaTopicOrders        string
	KafkaTopicNotifications string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	// OutboxMaxPending задаёт порог backlog, после которого /healthz сообщает degraded.
	OutboxMaxPending int

	PointAccrualBPS int64

	ImageCacheSize int
	ImageCacheTTL  time.Duration

	NotifyWorkers int
	NotifyTimeout time.Duration

	LogLevel            log.Level
	ShutdownGracePeriod time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                ":50051",
		MetricsAddr:             ":9090",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		PostgresMaxConns:        postgres.DefaultMaxConns,
		KafkaTopicOrders:        kafka.TopicOrderEvents,
		KafkaTopicNotifications: kafka.TopicNotifications,
		OutboxPollInterval:      time.Second,
		OutboxBatchSize:         100,
		OutboxMaxAttempts:       3,
		OutboxMaxPending:        defaultOutboxMaxPending,
		PointAccrualBPS:         defaultPointAccrualBPS,
		ImageCacheSize:          10000,
		ImageCacheTTL:           5 * time.Minute,
		NotifyWorkers:           8,
		NotifyTimeout:           defaultNotifyTimeout,
		LogLevel:                log.InfoLevel,
		ShutdownGracePeriod:     defaultShutdownGrace,
	}
}

// EnvLookup совпадает по сигнатуре с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Все некорректные значения собираются в одну ошибку.
func LoadConfigFromEnv(lookup EnvLookup) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	setString := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int, valid func(int) bool, rule string) {
		if v, ok := get(key); ok {
			parsed, err := parseInt(v, valid, rule)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	positive := func(v int) bool { return v > 0 }

	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := get(envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := get(envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envPostgresAutoMigrate, err))
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	setInt(envPostgresMaxConns, &cfg.PostgresMaxConns, positive, "must be > 0")
	if v, ok := get(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(envKafkaTopicOrders, &cfg.KafkaTopicOrders)
	setString(envKafkaTopicNotices, &cfg.KafkaTopicNotifications)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval)
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setInt(envOutboxMaxPending, &cfg.OutboxMaxPending, func(v int) bool { return v >= 0 }, "must be >= 0")

	bps := int(cfg.PointAccrualBPS)
	setInt(envPointAccrualBPS, &bps, func(v int) bool { return v >= 0 && v <= maxPointAccrualBPS }, "must be within 0..10000")
	cfg.PointAccrualBPS = int64(bps)

	setInt(envImageCacheSize, &cfg.ImageCacheSize, positive, "must be > 0")
	setDuration(envImageCacheTTL, &cfg.ImageCacheTTL)
	setInt(envNotifyWorkers, &cfg.NotifyWorkers, positive, "must be > 0")
	setDuration(envNotifyTimeout, &cfg.NotifyTimeout)
	setDuration(envShutdownGracePeriod, &cfg.ShutdownGracePeriod)

	if v, ok := get(envLogLevel); ok {
		level, err := log.ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envLogLevel, err))
		} else {
			cfg.LogLevel = level
		}
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

// Validate проверяет согласованность настроек между собой.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s is required for storage driver %q", envPostgresDSN, StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q (use %s|%s)", c.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid bool value %q", raw)
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func splitList(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
