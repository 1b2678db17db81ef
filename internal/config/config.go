package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Business  BusinessConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Env          string
	ReadTimeout  string
	WriteTimeout string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
	QueryTimeout    string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL string
}

type SchedulerConfig struct {
	OverdueSpec   string
	LookbackDays  int
	LookaheadDays int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type BusinessConfig struct {
	// CurrencyScale is the number of minor-unit digits premium amounts carry.
	CurrencyScale int
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("SERVER_READ_TIMEOUT", "10s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("DATABASE_MAX_OPEN_CONNS", 20)
	viper.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DATABASE_QUERY_TIMEOUT", "5s")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_CACHE_TTL", "15m")
	viper.SetDefault("SCHEDULER_OVERDUE_SPEC", "0 0 0 * * *")
	viper.SetDefault("SCHEDULER_LOOKBACK_DAYS", 90)
	viper.SetDefault("SCHEDULER_LOOKAHEAD_DAYS", 7)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("CURRENCY_SCALE", 2)

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read from .env file (optional)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = viper.ReadInConfig()

	config := Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Env:          viper.GetString("ENV"),
			ReadTimeout:  viper.GetString("SERVER_READ_TIMEOUT"),
			WriteTimeout: viper.GetString("SERVER_WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:             viper.GetString("DATABASE_URL"),
			MaxOpenConns:    viper.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    viper.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: viper.GetString("DATABASE_CONN_MAX_LIFETIME"),
			QueryTimeout:    viper.GetString("DATABASE_QUERY_TIMEOUT"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			CacheTTL: viper.GetString("REDIS_CACHE_TTL"),
		},
		Scheduler: SchedulerConfig{
			OverdueSpec:   viper.GetString("SCHEDULER_OVERDUE_SPEC"),
			LookbackDays:  viper.GetInt("SCHEDULER_LOOKBACK_DAYS"),
			LookaheadDays: viper.GetInt("SCHEDULER_LOOKAHEAD_DAYS"),
		},
		Logging: LoggingConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Business: BusinessConfig{
			CurrencyScale: viper.GetInt("CURRENCY_SCALE"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Business.CurrencyScale < 0 {
		return fmt.Errorf("CURRENCY_SCALE must be non-negative")
	}

	if c.Scheduler.LookbackDays < 0 || c.Scheduler.LookaheadDays < 0 {
		return fmt.Errorf("scheduler day windows must be non-negative")
	}

	for name, value := range map[string]string{
		"SERVER_READ_TIMEOUT":        c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":       c.Server.WriteTimeout,
		"DATABASE_CONN_MAX_LIFETIME": c.Database.ConnMaxLifetime,
		"DATABASE_QUERY_TIMEOUT":     c.Database.QueryTimeout,
		"REDIS_CACHE_TTL":            c.Redis.CacheTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", name, err)
		}
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetReadTimeout returns the server read timeout as duration
func (c *Config) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ReadTimeout)
	return d
}

// GetWriteTimeout returns the server write timeout as duration
func (c *Config) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.WriteTimeout)
	return d
}

// GetConnMaxLifetime returns the database connection lifetime as duration
func (c *Config) GetConnMaxLifetime() time.Duration {
	d, _ := time.ParseDuration(c.Database.ConnMaxLifetime)
	return d
}

// GetQueryTimeout returns the per-call storage timeout as duration
func (c *Config) GetQueryTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Database.QueryTimeout)
	return d
}

// GetCacheTTL returns the plan cache TTL as duration
func (c *Config) GetCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Redis.CacheTTL)
	return d
}
