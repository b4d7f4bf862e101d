package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"

	DefaultTimezone = "Europe/Berlin"
)

type Config struct {
	TelegramToken    string
	ObfuscationToken string

	Mode          string
	HTTPAddr      string
	BasePublicURL string
	SweepInterval time.Duration

	RatingAPIURL  string
	RatingSiteURL string
	RatingRPS     float64

	StoreBackend             string
	RedisURL                 string
	DatabaseURL              string
	DatastoreProjectID       string
	DatastoreKind            string
	GoogleServiceAccountJSON string
	SpreadsheetID            string

	DefaultTimezone string
	LogLevel        string
}

func FromEnv() (Config, error) {
	var c Config
	c.TelegramToken = env("TELEGRAM_API_TOKEN", "")
	c.ObfuscationToken = env("OBFUSCATION_TOKEN", "")

	c.Mode = env("BOT_MODE", ModeWebhook)
	c.HTTPAddr = env("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(env("PUBLIC_BASE_URL", ""), "/")

	c.RatingAPIURL = strings.TrimRight(env("RATING_API_URL", "https://api.rating.chgk.net"), "/")
	c.RatingSiteURL = strings.TrimRight(env("RATING_SITE_URL", "https://rating.chgk.info"), "/")

	c.StoreBackend = env("STORE_BACKEND", "memory")
	c.RedisURL = env("REDIS_URL", "")
	c.DatabaseURL = env("DATABASE_URL", "")
	c.DatastoreProjectID = env("DATASTORE_PROJECT_ID", "")
	c.DatastoreKind = env("DATASTORE_KIND", c.DatastoreProjectID)
	c.GoogleServiceAccountJSON = env("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	c.SpreadsheetID = env("SPREADSHEET_ID", "")

	c.DefaultTimezone = env("DEFAULT_TIMEZONE", DefaultTimezone)
	c.LogLevel = env("LOG_LEVEL", "info")

	var err error
	if c.SweepInterval, err = time.ParseDuration(env("SWEEP_INTERVAL", "1m")); err != nil {
		return c, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	if c.RatingRPS, err = strconv.ParseFloat(env("RATING_RPS", "5"), 64); err != nil {
		return c, fmt.Errorf("RATING_RPS: %w", err)
	}

	if c.TelegramToken == "" {
		return c, fmt.Errorf("TELEGRAM_API_TOKEN is empty")
	}
	if c.ObfuscationToken == "" {
		return c, fmt.Errorf("OBFUSCATION_TOKEN is empty")
	}
	if c.Mode != ModeWebhook && c.Mode != ModePolling {
		return c, fmt.Errorf("unknown BOT_MODE: %s", c.Mode)
	}
	if c.SweepInterval <= 0 {
		return c, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return c, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}

	return c, c.validateStore()
}

func (c Config) validateStore() error {
	switch c.StoreBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is empty")
		}
	case "datastore":
		if c.DatastoreProjectID == "" {
			return fmt.Errorf("DATASTORE_PROJECT_ID is empty")
		}
	case "sheets":
		if c.SpreadsheetID == "" {
			return fmt.Errorf("SPREADSHEET_ID is empty")
		}
		if c.GoogleServiceAccountJSON == "" {
			return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is empty")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND: %s", c.StoreBackend)
	}
	return nil
}

// WebhookURL is the public address Telegram posts updates to.
func (c Config) WebhookURL() string {
	return c.BasePublicURL + "/command" + c.ObfuscationToken
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
