package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/crashmap/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Query    QueryConfig    `mapstructure:"query"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DataConfig describes where collision records are loaded from
type DataConfig struct {
	Source         string        `mapstructure:"source"` // csv, sqlite or postgres
	Path           string        `mapstructure:"path"`
	URL            string        `mapstructure:"url"` // takes precedence over path for csv
	DSN            string        `mapstructure:"dsn"`
	Table          string        `mapstructure:"table"`
	MaxRows        int           `mapstructure:"max_rows"` // 0 reads every row
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// QueryConfig holds the default dashboard parameters and analysis tuning
type QueryConfig struct {
	Hour           int     `mapstructure:"hour"`
	MinInjured     int     `mapstructure:"min_injured"`
	MaxInjured     int     `mapstructure:"max_injured"` // upper bound of the injured-persons slider
	InjuryClass    string  `mapstructure:"injury_class"`
	TopK           int     `mapstructure:"top_k"`
	HexRadiusM     float64 `mapstructure:"hex_radius_m"`
	CenterFallback string  `mapstructure:"center_fallback"` // snapshot or fixed
	FallbackLat    float64 `mapstructure:"fallback_lat"`
	FallbackLon    float64 `mapstructure:"fallback_lon"`
}

// CacheConfig holds query result cache configuration
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Size    int  `mapstructure:"size"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory, if present, is loaded into the
// environment first; variables already set are not overwritten.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. CRASHMAP_DATA_PATH
	v.SetEnvPrefix("CRASHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key has a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.path", "./data/Motor_Vehicle_Collisions_-_Crashes.csv")
	v.SetDefault("data.url", "")
	v.SetDefault("data.dsn", "")
	v.SetDefault("data.table", "collisions")
	v.SetDefault("data.max_rows", 100000)
	v.SetDefault("data.timeout", "60s")
	v.SetDefault("data.max_retries", 3)
	v.SetDefault("data.retry_delay_base", "2s")

	// Query defaults
	v.SetDefault("query.hour", 0)
	v.SetDefault("query.min_injured", 0)
	v.SetDefault("query.max_injured", 19)
	v.SetDefault("query.injury_class", "pedestrians")
	v.SetDefault("query.top_k", 5)
	v.SetDefault("query.hex_radius_m", 100)
	v.SetDefault("query.center_fallback", "snapshot")
	v.SetDefault("query.fallback_lat", 40.7128)
	v.SetDefault("query.fallback_lon", -74.0060)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 256)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Data config
	switch c.Data.Source {
	case "csv":
		if c.Data.Path == "" && c.Data.URL == "" {
			return fmt.Errorf("data.path or data.url is required for csv source")
		}
	case "sqlite", "postgres":
		if c.Data.DSN == "" {
			return fmt.Errorf("data.dsn is required for %s source", c.Data.Source)
		}
		if c.Data.Table == "" {
			return fmt.Errorf("data.table is required for %s source", c.Data.Source)
		}
	default:
		return fmt.Errorf("data.source must be one of: csv, sqlite, postgres")
	}
	if c.Data.MaxRows < 0 {
		return fmt.Errorf("data.max_rows must not be negative")
	}
	if c.Data.Timeout < 1*time.Second {
		return fmt.Errorf("data.timeout must be at least 1 second")
	}
	if c.Data.MaxRetries < 1 {
		return fmt.Errorf("data.max_retries must be at least 1")
	}

	// Validate Query config
	if c.Query.Hour < 0 || c.Query.Hour > 23 {
		return fmt.Errorf("query.hour must be between 0 and 23")
	}
	if c.Query.MaxInjured < 0 {
		return fmt.Errorf("query.max_injured must not be negative")
	}
	if c.Query.MinInjured < 0 || c.Query.MinInjured > c.Query.MaxInjured {
		return fmt.Errorf("query.min_injured must be between 0 and query.max_injured (%d)", c.Query.MaxInjured)
	}
	if _, err := models.ParseInjuryClass(c.Query.InjuryClass); err != nil {
		return fmt.Errorf("query.injury_class: %w", err)
	}
	if c.Query.TopK < 1 {
		return fmt.Errorf("query.top_k must be at least 1")
	}
	if c.Query.HexRadiusM <= 0 {
		return fmt.Errorf("query.hex_radius_m must be positive")
	}
	if c.Query.CenterFallback != "snapshot" && c.Query.CenterFallback != "fixed" {
		return fmt.Errorf("query.center_fallback must be one of: snapshot, fixed")
	}
	if c.Query.FallbackLat < -85 || c.Query.FallbackLat > 85 {
		return fmt.Errorf("query.fallback_lat must be between -85 and 85")
	}
	if c.Query.FallbackLon < -180 || c.Query.FallbackLon > 180 {
		return fmt.Errorf("query.fallback_lon must be between -180 and 180")
	}

	// Validate Cache config
	if c.Cache.Enabled && c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be at least 1 when cache is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// CSVPath returns the file path or URL a csv source reads.
func (c *DataConfig) CSVPath() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Path
}
