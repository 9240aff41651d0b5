package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Gin mode: debug, release or test
		Mode string `env:"GIN_MODE" envDefault:"release"`

		AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

		// Maximum accepted size of an uploaded import file, in bytes
		MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	}

	Database Database

	Import struct {
		// Continue scanning the remaining rows after a duplicate has been resolved.
		// When false only the first duplicate of a batch is handled and the rows
		// after it are reported as unprocessed.
		ResumeAfterDecision bool `env:"IMPORT_RESUME_AFTER_DECISION" envDefault:"false"`

		// Number of categories persisted concurrently
		CategoryWorkers int `env:"IMPORT_CATEGORY_WORKERS" envDefault:"4"`

		DefaultCategoryIcon string `env:"IMPORT_DEFAULT_CATEGORY_ICON" envDefault:"store"`

		// Geocode rows that carry an address but no coordinates
		Geocode bool `env:"IMPORT_GEOCODE" envDefault:"false"`

		GeocodeCacheDir string `env:"IMPORT_GEOCODE_CACHE_DIR"`
	}

	Telegram struct {
		Enabled  bool   `env:"TELEGRAM_ENABLED" envDefault:"false"`
		BotToken string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `env:"TELEGRAM_CHAT_ID"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}
}

// Database selects and configures the relational store.
type Database struct {
	Driver     string `env:"DB_DRIVER" envDefault:"sqlite"`
	SQLitePath string `env:"DB_SQLITE_PATH" envDefault:"database/rentalhub.db"`
	DSN        string `env:"DB_DSN"`
}

// DefaultEnvFile is loaded when present if no env file is named
const DefaultEnvFile = ".env"

// LoadConfig loads envFile and parses the environment. An empty envFile
// loads DefaultEnvFile and tolerates it being absent; a named file must exist.
func LoadConfig(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", DefaultEnvFile, err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations env tags cannot express.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("DB_SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Import.CategoryWorkers <= 0 {
		c.Import.CategoryWorkers = 1
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when Telegram is enabled")
	}
	return nil
}
