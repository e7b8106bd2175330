package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig
	Logging      LoggingConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Quota        QuotaConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Services     []ServiceConfig
}

type ServerConfig struct {
	Port                    string
	Environment             string
	RequestLogBuffer        int
	RequestLogRetentionDays int
}

type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
	File   string // rotated with lumberjack when set
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Rate limiting settings for the shared counter store
type RateLimitConfig struct {
	Window       time.Duration
	BlockTTL     time.Duration
	Base         int
	Mid          int
	Top          int
	StoreTimeout time.Duration

	CircuitMaxFailures int
	CircuitTimeout     time.Duration
}

type QuotaConfig struct {
	Timezone         string
	Location         *time.Location
	ResetEnabled     bool
	ResetAt          string // HH:MM in Location
	ResetConcurrency int
}

type AuthConfig struct {
	JWTSecret      string
	JWTExpiryHours int
	AdminEmails    []string // registered with the admin role
}

type NotificationConfig struct {
	Buffer int
}

// Upstream product API exposed under /api/<name>
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Target  string `yaml:"target"`
	Feature string `yaml:"feature"`
}

type servicesFile struct {
	Services []ServiceConfig `yaml:"services"`
}

func Load() (*Config, error) {
	// Load .env if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			RequestLogBuffer: getEnvInt("REQUEST_LOG_BUFFER", 1024),

			RequestLogRetentionDays: getEnvInt("REQUEST_LOG_RETENTION_DAYS", 30),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Window:             getEnvSeconds("RATE_LIMIT_TTL", 60*time.Second),
			BlockTTL:           getEnvSeconds("RATE_LIMIT_BLOCK_TTL", time.Hour),
			Base:               getEnvInt("RATE_LIMIT_BASE", 500),
			Mid:                getEnvInt("RATE_LIMIT_MID", 1500),
			Top:                getEnvInt("RATE_LIMIT_TOP", 10000),
			StoreTimeout:       getEnvDuration("RATE_LIMIT_STORE_TIMEOUT", 250*time.Millisecond),
			CircuitMaxFailures: getEnvInt("CIRCUIT_MAX_FAILURES", 5),
			CircuitTimeout:     getEnvDuration("CIRCUIT_TIMEOUT", 30*time.Second),
		},
		Quota: QuotaConfig{
			Timezone:         getEnv("TIMEZONE", "UTC"),
			ResetEnabled:     getEnvBool("QUOTA_RESET_ENABLED", true),
			ResetAt:          getEnv("QUOTA_RESET_AT", "00:00"),
			ResetConcurrency: getEnvInt("QUOTA_RESET_CONCURRENCY", 8),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTExpiryHours: getEnvInt("JWT_EXPIRY_HOURS", 24),
			AdminEmails:    getEnvList("ADMIN_EMAILS"),
		},
		Notification: NotificationConfig{
			Buffer: getEnvInt("NOTIFICATION_BUFFER", 1024),
		},
	}

	services, err := loadServices(getEnv("SERVICES_FILE", "services.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Services = services

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Checks required values and resolves the quota timezone
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		if c.Server.Environment == "production" {
			return errors.New("JWT_SECRET is required in production")
		}
		c.Auth.JWTSecret = "dev-secret-change-me"
	}

	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_TTL must be positive")
	}
	if c.RateLimit.BlockTTL < 0 {
		return errors.New("RATE_LIMIT_BLOCK_TTL must not be negative")
	}
	if c.RateLimit.Base <= 0 || c.RateLimit.Mid <= 0 || c.RateLimit.Top <= 0 {
		return fmt.Errorf("tier limits must be positive, got base=%d mid=%d top=%d",
			c.RateLimit.Base, c.RateLimit.Mid, c.RateLimit.Top)
	}

	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Quota.Timezone, err)
	}
	c.Quota.Location = loc

	if _, _, err := ParseClock(c.Quota.ResetAt); err != nil {
		return err
	}
	if c.Quota.ResetConcurrency <= 0 {
		c.Quota.ResetConcurrency = 1
	}

	for i, svc := range c.Services {
		if svc.Name == "" || svc.Target == "" {
			return fmt.Errorf("service entries need a name and a target: %+v", svc)
		}
		c.Services[i].Target = strings.TrimRight(svc.Target, "/")
	}

	return nil
}

// ParseClock parses an "HH:MM" wall clock time
func ParseClock(value string) (int, int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q, expected HH:MM", value)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}

	return hour, minute, nil
}

func loadServices(path string) ([]ServiceConfig, error) {
	file, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}

	var parsed servicesFile
	if err := yaml.Unmarshal(file, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse services file: %w", err)
	}

	return parsed.Services, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

// Comma separated, blanks dropped
func getEnvList(key string) []string {
	var values []string
	for _, value := range strings.Split(os.Getenv(key), ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Reads a whole number of seconds
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if s, err := strconv.Atoi(value); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return fallback
}
