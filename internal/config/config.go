package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	BaseURL     string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Billing       BillingProviderConfig
	Redis         RedisConfig
	Storage       StorageConfig
	SMTP          SMTPConfig
	Events        EventsConfig
	SyncMetrics   SyncMetricsConfig
	Admin         AdminBootstrapConfig
	Observability ObservabilityConfig
}

// BillingProviderConfig configures the remote billing provider client.
type BillingProviderConfig struct {
	Provider       string
	APIKey         string
	WebhookSecret  string
	APIBaseURL     string
	Currency       string
	RequestTimeout time.Duration
	// SyncOnCreate pushes new products to the provider as part of the create request.
	SyncOnCreate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CheckoutRatePerMinute is the per-client token refill rate on checkout endpoints.
	CheckoutRatePerMinute int
	CheckoutBurst         int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type StorageConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	MaxWidth      int
}

func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

type SyncMetricsConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OTelEnabled   bool
	OTLPProtocol  string
	SamplingRatio float64
	// SlowQuery is the duration above which a SQL statement is logged at warn.
	SlowQuery time.Duration
	// UntracedPaths are served without a server span.
	UntracedPaths []string
}

type AdminBootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "cookiejar"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		BaseURL:      strings.TrimRight(getenv("BASE_URL", "http://localhost:3000"), "/"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cookiejar"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Billing: BillingProviderConfig{
			Provider:       strings.ToLower(getenv("BILLING_PROVIDER", "stripe")),
			APIKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:  strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			APIBaseURL:     strings.TrimRight(getenv("STRIPE_API_BASE_URL", "https://api.stripe.com"), "/"),
			Currency:       strings.ToLower(getenv("BILLING_CURRENCY", "usd")),
			RequestTimeout: getenvDuration("BILLING_REQUEST_TIMEOUT", 15*time.Second),
			SyncOnCreate:   getenvBool("BILLING_SYNC_ON_CREATE", true),
		},
		Redis: RedisConfig{
			Addr:                  strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:              getenv("REDIS_PASSWORD", ""),
			DB:                    getenvInt("REDIS_DB", 0),
			CheckoutRatePerMinute: getenvInt("CHECKOUT_RATE_PER_MINUTE", 20),
			CheckoutBurst:         getenvInt("CHECKOUT_BURST", 10),
		},
		Storage: StorageConfig{
			Endpoint:      strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			Region:        getenv("S3_REGION", "us-east-1"),
			Bucket:        strings.TrimSpace(getenv("S3_BUCKET", "")),
			AccessKey:     getenv("S3_ACCESS_KEY", ""),
			SecretKey:     getenv("S3_SECRET_KEY", ""),
			PublicBaseURL: strings.TrimRight(getenv("S3_PUBLIC_BASE_URL", ""), "/"),
			MaxWidth:      getenvInt("UPLOAD_MAX_WIDTH", 1600),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "orders@cookiejar.local"),
		},
		Events: EventsConfig{
			AMQPURL:  strings.TrimSpace(getenv("AMQP_URL", "")),
			Exchange: getenv("AMQP_EXCHANGE", "cookiejar.orders"),
		},
		SyncMetrics: SyncMetricsConfig{
			Exporter:  strings.ToLower(getenv("SYNC_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("SYNC_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("SYNC_METRICS_AUTH_TOKEN", "")),
		},
		Admin: AdminBootstrapConfig{
			Email:    strings.ToLower(strings.TrimSpace(getenv("ADMIN_EMAIL", ""))),
			Password: getenv("ADMIN_PASSWORD", ""),
			Name:     getenv("ADMIN_NAME", "Store Owner"),
		},
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "")),
			OTelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SlowQuery:     getenvDuration("DB_SLOW_QUERY", 200*time.Millisecond),
			UntracedPaths: getenvList("OTEL_UNTRACED_PATHS", []string{"/health", "/metrics"}),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvList splits a comma separated value, dropping empty entries.
func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
