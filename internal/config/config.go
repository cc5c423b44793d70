package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Service   ServiceConfig   `yaml:"service"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Workers   WorkersConfig   `yaml:"workers"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"API_HTTP_PORT" env-default:"8080"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" env:"API_SHUTDOWN_GRACE" env-default:"15s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT" env-default:"30s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"API_ALLOWED_ORIGINS" env-separator:","`
}

type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	URL            string `yaml:"url" env:"DATABASE_URL"`
	Host           string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password       string `yaml:"password" env:"DB_PASSWORD" env-default:"postgres"`
	Name           string `yaml:"name" env:"DB_NAME" env-default:"servicemaster"`
	SSLMode        string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	MaxConns       int    `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"25"`
	MinConns       int    `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"5"`
	AutoMigrate    bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"true"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DSN returns DATABASE_URL when set, otherwise a URL assembled from the DB_* settings.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("pool_max_conns", fmt.Sprint(c.MaxConns))
	q.Set("pool_min_conns", fmt.Sprint(c.MinConns))
	u.RawQuery = q.Encode()
	return u.String()
}

type KafkaConfig struct {
	Brokers     string `yaml:"brokers" env:"KAFKA_BROKERS"`
	TopicPrefix string `yaml:"topic_prefix" env:"KAFKA_TOPIC_PREFIX"`
	Version     string `yaml:"version" env:"KAFKA_VERSION" env-default:"3.6.0"`
	ClientID    string `yaml:"client_id" env:"KAFKA_CLIENT_ID" env-default:"servicemaster-api"`
}

type TelemetryConfig struct {
	LogLevel      string  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	OTelEndpoint  string  `yaml:"otel_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTracing bool    `yaml:"enable_tracing" env:"OTEL_ENABLE_TRACING" env-default:"true"`
	EnableMetrics bool    `yaml:"enable_metrics" env:"OTEL_ENABLE_METRICS" env-default:"true"`
	SampleRate    float64 `yaml:"sample_rate" env:"OTEL_SAMPLE_RATE" env-default:"1.0"`
}

// Level parses LogLevel, falling back to info.
func (c TelemetryConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type ServiceConfig struct {
	Name        string `yaml:"name" env:"API_SERVICE_NAME" env-default:"servicemaster-api"`
	Version     string `yaml:"version" env:"SERVICE_VERSION" env-default:"0.1.0"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:3000"`
}

type PaymentsConfig struct {
	Currency        string        `yaml:"currency" env:"PAYMENT_CURRENCY" env-default:"eur"`
	ProviderTimeout time.Duration `yaml:"provider_timeout" env:"PAYMENT_PROVIDER_TIMEOUT" env-default:"10s"`
	Card            CardConfig    `yaml:"card"`
	Wallet          WalletConfig  `yaml:"wallet"`
	Bank            BankConfig    `yaml:"bank"`
}

type CardConfig struct {
	APIURL        string `yaml:"api_url" env:"CARD_API_URL" env-default:"https://api.stripe.com"`
	SecretKey     string `yaml:"secret_key" env:"CARD_SECRET_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"CARD_WEBHOOK_SECRET"`
}

type WalletConfig struct {
	APIURL        string `yaml:"api_url" env:"WALLET_API_URL" env-default:"https://api-m.sandbox.paypal.com"`
	ClientID      string `yaml:"client_id" env:"WALLET_CLIENT_ID"`
	ClientSecret  string `yaml:"client_secret" env:"WALLET_CLIENT_SECRET"`
	WebhookSecret string `yaml:"webhook_secret" env:"WALLET_WEBHOOK_SECRET"`
}

type BankConfig struct {
	AccountName string `yaml:"account_name" env:"BANK_ACCOUNT_NAME"`
	IBAN        string `yaml:"iban" env:"BANK_IBAN"`
	BIC         string `yaml:"bic" env:"BANK_BIC"`
	BankName    string `yaml:"bank_name" env:"BANK_NAME"`
}

type WorkersConfig struct {
	EntitlementRetryAttempts uint          `yaml:"entitlement_retry_attempts" env:"ENTITLEMENT_RETRY_ATTEMPTS" env-default:"3"`
	EntitlementRetryDelay    time.Duration `yaml:"entitlement_retry_delay" env:"ENTITLEMENT_RETRY_DELAY" env-default:"50ms"`
	OrderPendingTTL          time.Duration `yaml:"order_pending_ttl" env:"ORDER_PENDING_TTL" env-default:"24h"`
	OrderSweepInterval       time.Duration `yaml:"order_sweep_interval" env:"ORDER_SWEEP_INTERVAL" env-default:"10m"`
	IdempotencyTTL           time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL" env-default:"24h"`
}

// Load reads the YAML file named by CONFIG_PATH when set, otherwise the
// environment alone. Environment variables override file values.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Payments.Currency = strings.ToLower(strings.TrimSpace(cfg.Payments.Currency))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that defaults cannot make safe.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("API_HTTP_PORT %d out of range", c.HTTP.Port))
	}
	switch c.Database.Driver {
	case StorageMemory, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Database.Driver))
	}
	if len(c.Payments.Currency) != 3 {
		errs = append(errs, fmt.Errorf("PAYMENT_CURRENCY must be a 3-letter code, got %q", c.Payments.Currency))
	}
	if c.Payments.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_PROVIDER_TIMEOUT must be positive"))
	}
	if c.Workers.OrderSweepInterval <= 0 {
		errs = append(errs, errors.New("ORDER_SWEEP_INTERVAL must be positive"))
	}
	if c.Workers.OrderPendingTTL <= 0 {
		errs = append(errs, errors.New("ORDER_PENDING_TTL must be positive"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.Telemetry.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
