package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMongoDB  = "mongodb"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

type Config struct {
	RabbitMQ RabbitMQConfig

	HTTPHost    string
	HTTPPort    int
	LogLevel    string
	Environment string

	StoreDriver string
	MongoURI    string
	MongoDB     string
	SQLitePath  string
	DatabaseURL string

	RedisAddr string
	CacheTTL  time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	ConsumerPrefetch      int
	ConsumerRetryInterval time.Duration
	ConsumerMaxRetries    int
	ShutdownGrace         time.Duration
	DeadLetterEnabled     bool

	RetentionDays     int
	RetentionInterval time.Duration

	CORSAllowedOrigins []string
}

var defaults = map[string]interface{}{
	"RABBITMQ_HOST":             "localhost",
	"RABBITMQ_PORT":             5672,
	"RABBITMQ_USER":             "guest",
	"RABBITMQ_PASSWORD":         "guest",
	"RABBITMQ_VHOST":            "/",
	"NOTIFICATION_SERVICE_HOST": "0.0.0.0",
	"NOTIFICATION_SERVICE_PORT": 8000,
	"LOG_LEVEL":                 "INFO",
	"ENVIRONMENT":               "development",
	"STORE_DRIVER":              StoreMongoDB,
	"MONGODB_URI":               "mongodb://localhost:27017",
	"MONGODB_DB":                "notifications",
	"SQLITE_PATH":               "./notifications.db",
	"DATABASE_URL":              "",
	"REDIS_ADDR":                "localhost:6379",
	"CACHE_TTL":                 "30s",
	"KAFKA_BROKERS":             "",
	"KAFKA_TOPIC":               "task_events",
	"KAFKA_GROUP_ID":            "notification-service",
	"CONSUMER_PREFETCH":         1,
	"CONSUMER_RETRY_INTERVAL":   "5s",
	"CONSUMER_MAX_RETRIES":      0,
	"SHUTDOWN_GRACE":            "10s",
	"DEAD_LETTER_ENABLED":       false,
	"RETENTION_DAYS":            30,
	"RETENTION_INTERVAL":        "1h",
	"CORS_ALLOWED_ORIGINS":      "*",
}

// LoadConfig lee la configuración del entorno. Si envFile existe (formato .env)
// sus valores se usan como base; las variables de entorno siempre tienen prioridad.
func LoadConfig(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		RabbitMQ: RabbitMQConfig{
			Host:     v.GetString("RABBITMQ_HOST"),
			Port:     v.GetInt("RABBITMQ_PORT"),
			User:     v.GetString("RABBITMQ_USER"),
			Password: v.GetString("RABBITMQ_PASSWORD"),
			VHost:    v.GetString("RABBITMQ_VHOST"),
		},
		HTTPHost:    v.GetString("NOTIFICATION_SERVICE_HOST"),
		HTTPPort:    v.GetInt("NOTIFICATION_SERVICE_PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Environment: v.GetString("ENVIRONMENT"),

		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		MongoURI:    v.GetString("MONGODB_URI"),
		MongoDB:     v.GetString("MONGODB_DB"),
		SQLitePath:  v.GetString("SQLITE_PATH"),
		DatabaseURL: v.GetString("DATABASE_URL"),

		RedisAddr: v.GetString("REDIS_ADDR"),
		CacheTTL:  v.GetDuration("CACHE_TTL"),

		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		KafkaGroupID: v.GetString("KAFKA_GROUP_ID"),

		ConsumerPrefetch:      v.GetInt("CONSUMER_PREFETCH"),
		ConsumerRetryInterval: v.GetDuration("CONSUMER_RETRY_INTERVAL"),
		ConsumerMaxRetries:    v.GetInt("CONSUMER_MAX_RETRIES"),
		ShutdownGrace:         v.GetDuration("SHUTDOWN_GRACE"),
		DeadLetterEnabled:     v.GetBool("DEAD_LETTER_ENABLED"),

		RetentionDays:     v.GetInt("RETENTION_DAYS"),
		RetentionInterval: v.GetDuration("RETENTION_INTERVAL"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rechaza combinaciones que impedirían arrancar.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongoDB, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		return fmt.Errorf("invalid RABBITMQ_PORT %d", c.RabbitMQ.Port)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid NOTIFICATION_SERVICE_PORT %d", c.HTTPPort)
	}
	if c.ConsumerPrefetch < 1 {
		return fmt.Errorf("CONSUMER_PREFETCH must be >= 1, got %d", c.ConsumerPrefetch)
	}
	if c.ConsumerRetryInterval <= 0 {
		return fmt.Errorf("CONSUMER_RETRY_INTERVAL must be > 0, got %s", c.ConsumerRetryInterval)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("SHUTDOWN_GRACE must be > 0, got %s", c.ShutdownGrace)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must be >= 0, got %d", c.RetentionDays)
	}
	return nil
}

// RabbitMQURL compone la URL AMQP. El vhost por defecto "/" se expresa como ruta vacía.
func (c *Config) RabbitMQURL() string {
	r := c.RabbitMQ
	vhost := ""
	if r.VHost != "" && r.VHost != "/" {
		vhost = url.PathEscape(strings.TrimPrefix(r.VHost, "/"))
	}
	return fmt.Sprintf("amqp://%s@%s/%s",
		url.UserPassword(r.User, r.Password).String(),
		net.JoinHostPort(r.Host, strconv.Itoa(r.Port)),
		vhost,
	)
}

// HTTPAddr es la dirección de escucha del servidor HTTP.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

// KafkaEnabled indica si hay brokers de Kafka configurados.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
