package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	HTTP    HTTPConfig
	Log     LogConfig
	Gemini  GeminiConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Scraper ScraperConfig
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level      string
	Format     string
	Output     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	ContextTTL   time.Duration
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type ScraperConfig struct {
	DefaultPostcode string
	DefaultRadiusKm float64
	MinEvents       int
	MaxExpansions   int
	RequestTimeout  time.Duration
	Parallelism     int
	RequestDelay    time.Duration
}

func Load() (*Config, error) {
	// .env is optional, real deployments use the environment directly
	_ = godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getIntEnv("PORT", 8080),
			ReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			MaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntEnv("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 28),
		},
		Gemini: GeminiConfig{
			APIKey:      os.Getenv("GEMINI_API_KEY"),
			Model:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			MaxTokens:   getIntEnv("GEMINI_MAX_TOKENS", 8192),
			Temperature: getFloatEnv("GEMINI_TEMPERATURE", 0.7),
			Timeout:     getDurationEnv("GEMINI_TIMEOUT", 45*time.Second),
			MaxRetries:  getIntEnv("GEMINI_MAX_RETRIES", 3),
			RetryDelay:  getDurationEnv("GEMINI_RETRY_DELAY", 2*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ContextTTL:   getDurationEnv("REDIS_CONTEXT_TTL", 24*time.Hour),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGODB_DATABASE", "pulse_newsletters"),
			Collection: getEnv("MONGODB_COLLECTION", "newsletters"),
			Timeout:    getDurationEnv("MONGODB_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			DefaultPostcode: getEnv("DEFAULT_POSTCODE", "TS1 3BA"),
			DefaultRadiusKm: getFloatEnv("DEFAULT_RADIUS_KM", 10),
			MinEvents:       getIntEnv("SCRAPER_MIN_EVENTS", 5),
			MaxExpansions:   getIntEnv("SCRAPER_MAX_EXPANSIONS", 4),
			RequestTimeout:  getDurationEnv("SCRAPER_REQUEST_TIMEOUT", 30*time.Second),
			Parallelism:     getIntEnv("SCRAPER_PARALLELISM", 2),
			RequestDelay:    getDurationEnv("SCRAPER_REQUEST_DELAY", 1*time.Second),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (config *Config) validate() error {
	if config.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	if config.HTTP.Port <= 0 || config.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", config.HTTP.Port)
	}

	if config.Gemini.MaxRetries < 1 {
		return fmt.Errorf("GEMINI_MAX_RETRIES must be at least 1")
	}

	return nil
}

func (config *Config) IsDevelopment() bool {
	return config.Environment == "development"
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
