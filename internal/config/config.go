package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Security  SecurityConfig
	Reference ReferenceConfig
	Pipeline  PipelineConfig
	Tax       TaxConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver     string
	DSN        string
	SQLitePath string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
	MaxUploadBytes  int64
}

type ReferenceConfig struct {
	CustomerMasterPath string
	GeoPath            string
}

type PipelineConfig struct {
	FiscalYearStartMonth int
	DecodeWorkers        int
	MaxBatchFiles        int
}

type TaxConfig struct {
	HomeState     string
	DefaultRate   float64
	CategoryRates map[string]float64
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	rates, err := parseCategoryRates(getEnvStringSlice("TAX_CATEGORY_RATES", nil))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite")),
			DSN:        getEnvString("DATABASE_URL", ""),
			SQLitePath: getEnvString("SQLITE_PATH", "data/sales.db"),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			MaxUploadBytes:  int64(getEnvInt("SECURITY_MAX_UPLOAD_MB", 64)) << 20,
		},
		Reference: ReferenceConfig{
			CustomerMasterPath: getEnvString("CUSTOMER_MASTER_PATH", ""),
			GeoPath:            getEnvString("GEO_REFERENCE_PATH", ""),
		},
		Pipeline: PipelineConfig{
			FiscalYearStartMonth: getEnvInt("FISCAL_YEAR_START_MONTH", 4),
			DecodeWorkers:        getEnvInt("UPLOAD_DECODE_WORKERS", 4),
			MaxBatchFiles:        getEnvInt("UPLOAD_MAX_BATCH_FILES", 20),
		},
		Tax: TaxConfig{
			HomeState:     strings.ToUpper(strings.TrimSpace(getEnvString("TAX_HOME_STATE", ""))),
			DefaultRate:   getEnvFloat("TAX_DEFAULT_RATE", 18),
			CategoryRates: rates,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	validDrivers := []string{"memory", "sqlite", "postgres"}
	if !slices.Contains(validDrivers, c.Database.Driver) {
		return fmt.Errorf("invalid database driver %q, must be one of: %s", c.Database.Driver, strings.Join(validDrivers, ", "))
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		return fmt.Errorf("SQLite path cannot be empty")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Security.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	if c.Pipeline.FiscalYearStartMonth < 1 || c.Pipeline.FiscalYearStartMonth > 12 {
		return fmt.Errorf("fiscal year start month must be between 1 and 12, got %d", c.Pipeline.FiscalYearStartMonth)
	}

	if c.Pipeline.DecodeWorkers <= 0 {
		return fmt.Errorf("decode workers must be positive")
	}

	if c.Pipeline.MaxBatchFiles <= 0 {
		return fmt.Errorf("max batch files must be positive")
	}

	if c.Tax.DefaultRate < 0 || c.Tax.DefaultRate > 100 {
		return fmt.Errorf("default tax rate must be between 0 and 100, got %v", c.Tax.DefaultRate)
	}

	return nil
}

// parseCategoryRates reads entries of the form CATEGORY=RATE.
func parseCategoryRates(entries []string) (map[string]float64, error) {
	rates := make(map[string]float64, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("tax category rate %q must look like CATEGORY=RATE", entry)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate < 0 || rate > 100 {
			return nil, fmt.Errorf("tax category rate %q has an invalid rate", entry)
		}
		rates[strings.ToUpper(strings.TrimSpace(name))] = rate
	}
	return rates, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
