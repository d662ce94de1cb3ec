package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Elastic  ElasticsearchConfig
	Order    OrderConfig
	I18n     I18nConfig
}

type ServerConfig struct {
	AppEnv          string
	HTTPPort        string
	GRPCPort        string
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
	AutoMigrate     bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	OrderEventsTopic string
	StockEventsTopic string
	GroupID          string
}

type ElasticsearchConfig struct {
	Enabled      bool
	Addresses    []string
	Username     string
	Password     string
	OrderIndex   string
	ProductIndex string
}

type OrderConfig struct {
	IdempotencyTTL    time.Duration
	TransitionRetries int
}

// I18nConfig.LocalesDir holds optional active.*.json files loaded over the
// embedded messages.
type I18nConfig struct {
	LocalesDir string
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:          getEnv("APP_ENV", "dev"),
			HTTPPort:        getEnv("HTTP_PORT", ":8080"),
			GRPCPort:        getEnv("GRPC_PORT", ":8082"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Enabled:         getEnvBool("POSTGRES_ENABLED", true),
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_backoffice"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
			AutoMigrate:     getEnvBool("POSTGRES_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:          getEnvBool("KAFKA_ENABLED", true),
			Brokers:          getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrderEventsTopic: getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
			StockEventsTopic: getEnv("KAFKA_TOPIC_STOCK", "stock.events"),
			GroupID:          getEnv("KAFKA_GROUP_INVENTORY", "inventory"),
		},
		Elastic: ElasticsearchConfig{
			Enabled:      getEnvBool("ELASTICSEARCH_ENABLED", true),
			Addresses:    getEnvSlice("ELASTICSEARCH_ADDRESSES", []string{"http://localhost:9200"}),
			Username:     getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:     getEnv("ELASTICSEARCH_PASSWORD", ""),
			OrderIndex:   getEnv("ELASTICSEARCH_ORDER_INDEX", "orders"),
			ProductIndex: getEnv("ELASTICSEARCH_PRODUCT_INDEX", "products"),
		},
		Order: OrderConfig{
			IdempotencyTTL:    getEnvDuration("ORDER_IDEMPOTENCY_TTL", 24*time.Hour),
			TransitionRetries: getEnvInt("ORDER_TRANSITION_RETRIES", 3),
		},
		I18n: I18nConfig{
			LocalesDir: getEnv("I18N_LOCALES_DIR", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
