package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Blob storage
	StoragePath string

	// Default admin account, created on first start
	AdminEmail    string
	AdminPassword string

	// Orphan reaper
	ReaperInterval time.Duration
	ReaperGrace    time.Duration

	// Observability (optional)
	SentryDSN string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppName: envString("APP_NAME", "servepics"),
		AppEnv:  envString("APP_ENV", "development"),

		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/servepics.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		StoragePath: envString("STORAGE_PATH", "./data/uploads"),

		AdminEmail:    envString("ADMIN_EMAIL", "admin@servepics.com"),
		AdminPassword: envString("ADMIN_PASSWORD", "admin123"),

		ReaperInterval: envDuration("REAPER_INTERVAL", 1*time.Hour),
		ReaperGrace:    envDuration("REAPER_GRACE", 1*time.Hour),

		SentryDSN: envString("SENTRY_DSN", ""),
	}

	// Production: never ship the default admin credentials
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

func validateProduction(cfg *Config) {
	if cfg.AdminPassword == "admin123" {
		slog.Error("production deployment requires ADMIN_PASSWORD",
			"hint", "set APP_ENV=development for local testing with the default credentials")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
