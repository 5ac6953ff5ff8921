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

	HTTPAddr      string
	AuthJWTSecret string

	LogLevel string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

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

	Scanner   ScannerConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig

	// PlanConfigPath points at the optional plans.yml catalog override file.
	PlanConfigPath string

	// UploadDir is the local directory receipt images are stored in; it is
	// served under /uploads.
	UploadDir string
}

// ScannerConfig configures the external AI receipt scanner.
type ScannerConfig struct {
	Provider       string // gemini or mock
	Endpoint       string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// PaymentConfig configures the payment gateway and webhook verification.
type PaymentConfig struct {
	Provider            string
	Endpoint            string
	APIKey              string
	IyzicoWebhookSecret string
	StripeWebhookSecret string
}

// RateLimitConfig configures the redis token bucket guarding scan requests.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	ScanRate      float64
	ScanBurst     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "smartreceipt"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		LogLevel: getenv("LOG_LEVEL", "info"),

		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "smartreceipt"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Scanner: ScannerConfig{
			Provider:       strings.ToLower(getenv("SCANNER_PROVIDER", "mock")),
			Endpoint:       getenv("SCANNER_ENDPOINT", "https://generativelanguage.googleapis.com"),
			APIKey:         strings.TrimSpace(getenv("SCANNER_API_KEY", "")),
			Model:          getenv("SCANNER_MODEL", "gemini-2.0-flash"),
			TimeoutSeconds: getenvInt("SCANNER_TIMEOUT_SECONDS", 30),
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(getenv("PAYMENT_PROVIDER", "iyzico")),
			Endpoint:            getenv("PAYMENT_ENDPOINT", "https://api.iyzipay.com"),
			APIKey:              strings.TrimSpace(getenv("PAYMENT_API_KEY", "")),
			IyzicoWebhookSecret: strings.TrimSpace(getenv("IYZICO_WEBHOOK_SECRET", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			ScanRate:      getenvFloat("RATE_LIMIT_SCAN_RATE", 1),
			ScanBurst:     getenvInt("RATE_LIMIT_SCAN_BURST", 5),
		},

		PlanConfigPath: getenv("PLAN_CONFIG_PATH", "."),
		UploadDir:      getenv("UPLOAD_DIR", "uploads"),
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
