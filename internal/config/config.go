// Package config loads process configuration with the precedence
// flags > environment > .env file > defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // LOAN_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
	Chaos     ChaosConfig
}

type AppConfig struct {
	Environment string
	// Location decides which calendar day "today" is for loans.
	Location *time.Location
}

type LoggerConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig describes the Postgres pool. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Migrate         bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig bounds loan creation. PerMinute == 0 disables the limiter.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string
	ServiceName string
}

// ChaosConfig drives cmd/chaos. The API server ignores it.
type ChaosConfig struct {
	APIURL      string
	Concurrency int
	Duration    time.Duration
	Interval    time.Duration
	Pause       time.Duration
	// ReportPath, when set, receives the game day results as JSON.
	ReportPath string
}

// DSN returns the connection string for lib/pq.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" && c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is not set (or provide DATABASE_URL)"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1, got %d", c.Database.MaxOpenConns))
	}
	if c.Database.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS must not be negative, got %d", c.Database.MaxIdleConns))
	}
	if c.RateLimit.PerMinute < 0 {
		errs = append(errs, fmt.Errorf("LOAN_RATE_LIMIT must not be negative, got %d", c.RateLimit.PerMinute))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("LOAN_RATE_BURST must not be negative, got %d", c.RateLimit.Burst))
	}
	return errors.Join(errs...)
}

// Load parses args (without the program name) and the environment, then
// validates the result.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("libraloans", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, text)")
	port := fs.String("port", "", "HTTP port (default: 3000)")
	dbURL := fs.String("database-url", "", "Postgres connection URL")
	migrate := fs.String("migrate", "", "Apply the embedded schema on start (default: false)")
	timezone := fs.String("timezone", "", "IANA zone used for loan dates (default: Local)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Server: ServerConfig{
			Port: getConfigValue(*port, "PORT", "3000"),
		},
		Database: DatabaseConfig{
			URL:          getConfigValue(*dbURL, "DATABASE_URL", ""),
			Host:         getConfigValue("", "DB_HOST", "localhost"),
			Name:         getConfigValue("", "DB_NAME", "biblioteca_db"),
			User:         getConfigValue("", "DB_USER", "postgres"),
			Password:     getConfigValue("", "DB_PASSWORD", ""),
			SSLMode:      getConfigValue("", "DB_SSLMODE", "disable"),
			Migrate:      getBoolConfigValue(*migrate, "DB_MIGRATE", false),
			MaxIdleConns: 5,
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getConfigValue("", "CORS_ALLOWED_ORIGINS", "*")),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    getConfigValue("", "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: getConfigValue("", "OTEL_SERVICE_NAME", "libraloans"),
		},
		Chaos: ChaosConfig{
			APIURL:     getConfigValue("", "CHAOS_API_URL", "http://localhost:3000"),
			ReportPath: getConfigValue("", "CHAOS_REPORT", ""),
		},
	}

	var errs []error
	intValue := func(key string, def int) int {
		v, err := getIntConfigValue("", key, def)
		errs = append(errs, err)
		return v
	}
	durationValue := func(key, def string) time.Duration {
		v, err := getDurationConfigValue(key, def)
		errs = append(errs, err)
		return v
	}

	cfg.Database.Port = intValue("DB_PORT", 5432)
	cfg.Database.MaxOpenConns = intValue("DB_MAX_OPEN_CONNS", 10)
	cfg.Database.MaxIdleConns = intValue("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = durationValue("DB_CONN_MAX_LIFETIME", "1h")
	cfg.Database.ConnMaxIdleTime = durationValue("DB_CONN_MAX_IDLE_TIME", "5m")
	cfg.RateLimit.PerMinute = intValue("LOAN_RATE_LIMIT", 60)
	cfg.RateLimit.Burst = intValue("LOAN_RATE_BURST", 10)
	cfg.Server.ReadTimeout = durationValue("SERVER_READ_TIMEOUT", "15s")
	cfg.Server.WriteTimeout = durationValue("SERVER_WRITE_TIMEOUT", "15s")
	cfg.Server.IdleTimeout = durationValue("SERVER_IDLE_TIMEOUT", "60s")
	cfg.Server.ShutdownTimeout = durationValue("SERVER_SHUTDOWN_TIMEOUT", "10s")
	cfg.Chaos.Concurrency = intValue("CHAOS_CONCURRENCY", 10)
	cfg.Chaos.Duration = durationValue("CHAOS_DURATION", "5s")
	cfg.Chaos.Interval = durationValue("CHAOS_INTERVAL", "1s")
	cfg.Chaos.Pause = durationValue("CHAOS_PAUSE", "2s")

	zone := getConfigValue(*timezone, "LOAN_TIMEZONE", "Local")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid LOAN_TIMEZONE %q: %w", zone, err))
	}
	cfg.App.Location = loc

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getConfigValue returns the flag value, then the environment variable, then the default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	value := getConfigValue(flagValue, envKey, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) (int, error) {
	value := getConfigValue(flagValue, envKey, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, value, err)
	}
	return n, nil
}

func getDurationConfigValue(envKey, defaultValue string) (time.Duration, error) {
	value := getConfigValue("", envKey, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, value, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
