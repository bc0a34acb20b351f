package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port string
	Env  string

	// BotToken is the shared secret init data is signed with.
	BotToken       string
	InitDataMaxAge time.Duration

	LedgerBackend string
	RedisURL      string
	RedisPass     string
	RedisDB       int
	DatabaseURL   string

	LedgerTimeout  time.Duration
	AuditTimeout   time.Duration
	AuditQueueSize int
	AuditWorkers   int

	WebhookSecret  string
	AdminJWTSecret string
	DrawSeed       string

	PriceStars         int64
	OpensPerPurchase   int64
	InvoiceTitle       string
	InvoiceDescription string
	TelegramAPIURL     string

	CatalogPath   string
	OpenRateLimit int

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("APP_ENV", "development"),

		BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", BackendRedis)),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:     os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		WebhookSecret:  os.Getenv("TG_WEBHOOK_SECRET"),
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		DrawSeed:       os.Getenv("DRAW_SEED"),

		InvoiceTitle:       getEnv("INVOICE_TITLE", "Case opening"),
		InvoiceDescription: getEnv("INVOICE_DESCRIPTION", "1 case opening"),
		TelegramAPIURL:     getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		CatalogPath: os.Getenv("CATALOG_PATH"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.InitDataMaxAge, err = getDuration("INIT_DATA_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LedgerTimeout, err = getDuration("LEDGER_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.AuditTimeout, err = getDuration("AUDIT_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.AuditQueueSize, err = getInt("AUDIT_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.AuditWorkers, err = getInt("AUDIT_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.OpenRateLimit, err = getInt("OPEN_RATE_LIMIT", 30); err != nil {
		return nil, err
	}

	price, err := getInt("PRICE_STARS", 1)
	if err != nil {
		return nil, err
	}
	cfg.PriceStars = int64(price)

	opens, err := getInt("OPENS_PER_PURCHASE", 1)
	if err != nil {
		return nil, err
	}
	cfg.OpensPerPurchase = int64(opens)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	switch c.LedgerBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND: %q", c.LedgerBackend)
	}

	if c.PriceStars < 1 {
		return fmt.Errorf("PRICE_STARS must be positive")
	}
	if c.OpensPerPurchase < 1 {
		return fmt.Errorf("OPENS_PER_PURCHASE must be positive")
	}
	if c.InitDataMaxAge < 0 || c.LedgerTimeout <= 0 || c.AuditTimeout <= 0 {
		return fmt.Errorf("durations must not be negative and timeouts must be set")
	}
	if c.AuditQueueSize < 1 || c.AuditWorkers < 1 {
		return fmt.Errorf("audit queue size and workers must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return d, nil
}
