package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Gateway GatewayConfig
	Loyalty LoyaltyConfig
	Sweep   SweepConfig
	Metrics MetricsConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OrderTaxBps is the order-level tax rate in basis points (800 = 8%).
	OrderTaxBps int64
}

// GatewayConfig carries the external payment gateway credentials. The
// adapter receives this struct in its constructor; nothing reads the
// environment after startup.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Currency      string
	ReturnBaseURL string
	TimeoutSec    int
}

type LoyaltyConfig struct {
	// PointRateBps is the laari value of one point in hundredths of a
	// laari: 50 means one point is worth 0.5 laari.
	PointRateBps int64
	HoldTTLMin   int
}

type SweepConfig struct {
	Enabled            bool
	HoldIntervalSec    int
	PaymentIntervalSec int
	PaymentStuckAfterM int
}

type MetricsConfig struct {
	Enabled  bool
	Exporter string
	Endpoint string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "atolpos"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "atolpos"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "atolpos.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Gateway: GatewayConfig{
			BaseURL:       strings.TrimRight(getenv("GATEWAY_BASE_URL", ""), "/"),
			APIKey:        strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
			Currency:      getenv("GATEWAY_CURRENCY", "MVR"),
			ReturnBaseURL: strings.TrimRight(getenv("GATEWAY_RETURN_BASE_URL", "http://localhost:8080"), "/"),
			TimeoutSec:    getenvInt("GATEWAY_TIMEOUT_SEC", 30),
		},
		Loyalty: LoyaltyConfig{
			PointRateBps: getenvInt64("LOYALTY_POINT_RATE_BPS", 50),
			HoldTTLMin:   getenvInt("LOYALTY_HOLD_TTL_MIN", 15),
		},
		Sweep: SweepConfig{
			Enabled:            getenvBool("SWEEP_ENABLED", true),
			HoldIntervalSec:    getenvInt("SWEEP_HOLD_INTERVAL_SEC", 60),
			PaymentIntervalSec: getenvInt("SWEEP_PAYMENT_INTERVAL_SEC", 300),
			PaymentStuckAfterM: getenvInt("SWEEP_PAYMENT_STUCK_AFTER_MIN", 10),
		},
		Metrics: MetricsConfig{
			Enabled:  getenvBool("METRICS_ENABLED", false),
			Exporter: strings.ToLower(getenv("METRICS_EXPORTER", "grpc")),
			Endpoint: strings.TrimSpace(getenv("METRICS_ENDPOINT", "localhost:4317")),
		},

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		OrderTaxBps: getenvInt64("ORDER_TAX_BPS", 800),
	}
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
