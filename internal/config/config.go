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
	HTTPAddr    string

	OTLPEndpoint string

	Datastore         string
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
	DBMigrate         bool

	Redis RedisConfig

	Payment PaymentConfig

	Email EmailConfig

	// SeedUsers is a comma list of id:customer[:email] entries loaded into
	// the users table at startup.
	SeedUsers string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type PaymentConfig struct {
	Client         string
	Provider       string
	APIKey         string
	WebhookSecrets []string
	// Livemode restricts accepted events to live or test mode. Nil accepts
	// both.
	Livemode *bool
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

const (
	DatastoreSQL    = "sql"
	DatastoreMemory = "memory"

	PaymentClientStripe = "stripe"
	PaymentClientFake   = "fake"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "subsync"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		Datastore:         normalizeDatastore(getenv("DATASTORE", DatastoreSQL)),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMigrate:         getenvBool("DATABASE_MIGRATE", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Payment: PaymentConfig{
			Client:         normalizePaymentClient(getenv("PAYMENT_CLIENT", PaymentClientStripe)),
			Provider:       strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "stripe"))),
			APIKey:         strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			WebhookSecrets: parseList(getenv("STRIPE_WEBHOOK_SECRETS", getenv("STRIPE_WEBHOOK_SECRET", ""))),
			Livemode:       getenvOptionalBool("STRIPE_LIVEMODE"),
		},
		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", false),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@localhost"),
		},
		SeedUsers: strings.TrimSpace(getenv("SEED_USERS", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeDatastore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DatastoreMemory:
		return DatastoreMemory
	default:
		return DatastoreSQL
	}
}

func normalizePaymentClient(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case PaymentClientFake, "memory":
		return PaymentClientFake
	default:
		return PaymentClientStripe
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

func getenvOptionalBool(key string) *bool {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return nil
	}
	on := getenvBool(key, true)
	if on != getenvBool(key, false) {
		return nil
	}
	return &on
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
