package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// Database
	DatabaseURL      string
	DatabaseDriver   string
	DatabaseMaxConns int
	SQLitePath       string
	LocalMode        bool

	// Redis
	RedisURL            string
	LiveSnapshotEnabled bool

	// Event bus
	RabbitMQURL  string
	EventBusMode string

	// Scheduling engine
	CollisionWindow    time.Duration
	ReconcileInterval  time.Duration
	RetryMax           int
	RetryBaseDelay     time.Duration
	RetryMultiplier    float64
	BusinessHoursStart int
	BusinessHoursEnd   int
	SpacingJitterMax   time.Duration

	// Orchestration loop
	LoopTickInterval         time.Duration
	LoopHistoryWindowHours   int
	DeliveryTimeout          time.Duration
	DeliveryConcurrency      int
	MaintenanceThresholdDays int
	ContactsFile             string

	// Delivery channels
	GmailClientID           string
	GmailClientSecret       string
	GmailRefreshToken       string
	GmailSender             string
	TelegramBotToken        string
	SlackBotToken           string
	DeliverySimulateUnwired bool
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	// Worker
	WorkerHealthAddr string
	StatsInterval    time.Duration

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	databaseURL := getEnv("DATABASE_URL", "")
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:      databaseURL,
		DatabaseDriver:   getEnv("DATABASE_DRIVER", defaultDriver(databaseURL)),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),
		SQLitePath:       getEnv("SQLITE_PATH", defaultSQLitePath()),
		LocalMode:        getBoolEnv("CADENCE_LOCAL_MODE", databaseURL == ""),

		RedisURL:            getEnv("REDIS_URL", ""),
		LiveSnapshotEnabled: getBoolEnv("LIVE_SNAPSHOT_ENABLED", true),

		RabbitMQURL:  getEnv("RABBITMQ_URL", ""),
		EventBusMode: getEnv("EVENTBUS_MODE", "inprocess"),

		CollisionWindow:    getDurationEnv("COLLISION_WINDOW", time.Hour),
		ReconcileInterval:  getDurationEnv("RECONCILE_INTERVAL", 15*time.Second),
		RetryMax:           getIntEnv("RETRY_MAX", 3),
		RetryBaseDelay:     getDurationEnv("RETRY_BASE_DELAY", 60*time.Second),
		RetryMultiplier:    getFloatEnv("RETRY_MULTIPLIER", 2),
		BusinessHoursStart: getIntEnv("BUSINESS_HOURS_START", 9),
		BusinessHoursEnd:   getIntEnv("BUSINESS_HOURS_END", 17),
		SpacingJitterMax:   getDurationEnv("SPACING_JITTER_MAX", 30*time.Minute),

		LoopTickInterval:         getDurationEnv("LOOP_TICK_INTERVAL", 30*time.Second),
		LoopHistoryWindowHours:   getIntEnv("LOOP_HISTORY_WINDOW_HOURS", 24),
		DeliveryTimeout:          getDurationEnv("DELIVERY_TIMEOUT", 30*time.Second),
		DeliveryConcurrency:      getIntEnv("DELIVERY_CONCURRENCY", 8),
		MaintenanceThresholdDays: getIntEnv("MAINTENANCE_THRESHOLD_DAYS", 30),
		ContactsFile:             getEnv("CONTACTS_FILE", ""),

		GmailClientID:           getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret:       getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRefreshToken:       getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailSender:             getEnv("GMAIL_SENDER", ""),
		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		SlackBotToken:           getEnv("SLACK_BOT_TOKEN", ""),
		DeliverySimulateUnwired: getBoolEnv("DELIVERY_SIMULATE_UNWIRED", true),
		BreakerFailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerOpenTimeout:      getDurationEnv("BREAKER_OPEN_TIMEOUT", time.Minute),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		StatsInterval:    getDurationEnv("STATS_INTERVAL", 30*time.Second),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	return cfg, cfg.Validate()
}

// LoadFile loads configuration from the environment and overlays a YAML file.
// Keys in the file are the lower-case environment variable names; an
// explicitly set environment variable still wins over the file.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	o := overlay{v: v}
	o.str("app_env", &cfg.AppEnv)
	o.str("log_level", &cfg.LogLevel)
	o.str("database_url", &cfg.DatabaseURL)
	o.str("database_driver", &cfg.DatabaseDriver)
	o.integer("database_max_conns", &cfg.DatabaseMaxConns)
	o.str("sqlite_path", &cfg.SQLitePath)
	o.boolean("cadence_local_mode", &cfg.LocalMode)
	o.str("redis_url", &cfg.RedisURL)
	o.boolean("live_snapshot_enabled", &cfg.LiveSnapshotEnabled)
	o.str("rabbitmq_url", &cfg.RabbitMQURL)
	o.str("eventbus_mode", &cfg.EventBusMode)
	o.duration("collision_window", &cfg.CollisionWindow)
	o.duration("reconcile_interval", &cfg.ReconcileInterval)
	o.integer("retry_max", &cfg.RetryMax)
	o.duration("retry_base_delay", &cfg.RetryBaseDelay)
	o.float("retry_multiplier", &cfg.RetryMultiplier)
	o.integer("business_hours_start", &cfg.BusinessHoursStart)
	o.integer("business_hours_end", &cfg.BusinessHoursEnd)
	o.duration("spacing_jitter_max", &cfg.SpacingJitterMax)
	o.duration("loop_tick_interval", &cfg.LoopTickInterval)
	o.integer("loop_history_window_hours", &cfg.LoopHistoryWindowHours)
	o.duration("delivery_timeout", &cfg.DeliveryTimeout)
	o.integer("delivery_concurrency", &cfg.DeliveryConcurrency)
	o.integer("maintenance_threshold_days", &cfg.MaintenanceThresholdDays)
	o.str("contacts_file", &cfg.ContactsFile)
	o.str("gmail_client_id", &cfg.GmailClientID)
	o.str("gmail_client_secret", &cfg.GmailClientSecret)
	o.str("gmail_refresh_token", &cfg.GmailRefreshToken)
	o.str("gmail_sender", &cfg.GmailSender)
	o.str("telegram_bot_token", &cfg.TelegramBotToken)
	o.str("slack_bot_token", &cfg.SlackBotToken)
	o.boolean("delivery_simulate_unwired", &cfg.DeliverySimulateUnwired)
	o.integer("breaker_failure_threshold", &cfg.BreakerFailureThreshold)
	o.duration("breaker_open_timeout", &cfg.BreakerOpenTimeout)
	o.str("worker_health_addr", &cfg.WorkerHealthAddr)
	o.duration("stats_interval", &cfg.StatsInterval)
	o.str("mcp_addr", &cfg.MCPAddr)
	o.str("mcp_auth_token", &cfg.MCPAuthToken)

	if _, set := os.LookupEnv("DATABASE_DRIVER"); !set && !v.IsSet("database_driver") {
		cfg.DatabaseDriver = defaultDriver(cfg.DatabaseURL)
	}
	if _, set := os.LookupEnv("CADENCE_LOCAL_MODE"); !set && !v.IsSet("cadence_local_mode") {
		cfg.LocalMode = cfg.DatabaseURL == ""
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.BusinessHoursStart < 0 || c.BusinessHoursEnd > 24 || c.BusinessHoursStart >= c.BusinessHoursEnd {
		return fmt.Errorf("invalid business hours %d-%d", c.BusinessHoursStart, c.BusinessHoursEnd)
	}
	if c.RetryMax < 0 {
		return errors.New("retry max must not be negative")
	}
	if c.LoopTickInterval <= 0 {
		return errors.New("loop tick interval must be positive")
	}
	switch c.EventBusMode {
	case "inprocess", "rabbitmq":
	default:
		return fmt.Errorf("unknown event bus mode %q", c.EventBusMode)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MaintenanceThreshold returns the quiet period after which a contact needs a check-in.
func (c *Config) MaintenanceThreshold() time.Duration {
	return time.Duration(c.MaintenanceThresholdDays) * 24 * time.Hour
}

// overlay copies values from a config file unless the matching env var is set.
type overlay struct {
	v *viper.Viper
}

func (o overlay) wanted(key string) bool {
	if _, set := os.LookupEnv(strings.ToUpper(key)); set {
		return false
	}
	return o.v.IsSet(key)
}

func (o overlay) str(key string, dst *string) {
	if o.wanted(key) {
		*dst = o.v.GetString(key)
	}
}

func (o overlay) integer(key string, dst *int) {
	if o.wanted(key) {
		*dst = o.v.GetInt(key)
	}
}

func (o overlay) float(key string, dst *float64) {
	if o.wanted(key) {
		*dst = o.v.GetFloat64(key)
	}
}

func (o overlay) boolean(key string, dst *bool) {
	if o.wanted(key) {
		*dst = o.v.GetBool(key)
	}
}

func (o overlay) duration(key string, dst *time.Duration) {
	if o.wanted(key) {
		*dst = o.v.GetDuration(key)
	}
}

func defaultDriver(databaseURL string) string {
	if databaseURL == "" {
		return "sqlite"
	}
	return "postgres"
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cadence", "cadence.db")
	}
	return filepath.Join(home, ".cadence", "cadence.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
