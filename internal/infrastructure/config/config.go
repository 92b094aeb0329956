package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger backends
const (
	LedgerModeSimulated = "simulated"
	LedgerModeLive      = "live"
)

// Metadata mirroring modes on scan
const (
	MirrorModeAsync = "async"
	MirrorModeSync  = "sync"
)

// Adapter and lock backends shared by several sections
const (
	ModeStub   = "stub"
	ModeHTTP   = "http"
	ModeNoop   = "noop"
	ModeMemory = "memory"
	ModeGorm   = "gorm"
	ModeRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Ledger    LedgerConfig
	POS       POSConfig
	Variance  VarianceConfig
	Analysis  AnalysisConfig
	Lock      LockConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	ShutdownTimeout  time.Duration
	TrustedProxies   []string
	RateLimitEnabled bool
	RateLimitRPS     float64 // sustained requests per second per client IP
	RateLimitBurst   int
}

// LedgerConfig selects and configures the ledger backend
type LedgerConfig struct {
	Mode           string // simulated, live
	SimulatedStore string // memory, gorm
	Endpoint       string
	APIKey         string
	ContractID     string
	Timeout        time.Duration // per HTTP request
	ConfirmTimeout time.Duration // max wait for transaction inclusion
	PollInterval   time.Duration
	MirrorMode     string // async, sync
	MirrorTimeout  time.Duration
}

// POSConfig configures the point-of-sale adapter
type POSConfig struct {
	Mode        string // stub, http
	Endpoint    string
	APIKey      string
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables limiting
	RateBurst   int
	PageSize    int
	SnapshotTTL time.Duration // how long counts fetched by SyncSales answer GetPintCount
}

// VarianceConfig holds the absolute variance thresholds
type VarianceConfig struct {
	WarningThreshold  int
	CriticalThreshold int
}

// AnalysisConfig configures the external variance analyzer
type AnalysisConfig struct {
	Mode     string // noop, http
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// LockConfig configures per-keg mutual exclusion
type LockConfig struct {
	Mode string        // memory, redis
	TTL  time.Duration // redis lock expiry
	Wait time.Duration // how long to wait for a busy keg before ErrKegBusy
}

// SyncConfig configures POS batch sync
type SyncConfig struct {
	Concurrency     int
	ScheduleEnabled bool
	Interval        time.Duration
	Timeout         time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // non-TLS connection (development only)
	MetricsInterval   time.Duration
	LogsEnabled       bool // also ship zap entries to the collector
	DBTracing         bool
	SlowQuery         time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with KEG_ prefix (e.g., KEG_LEDGER_MODE)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("KEG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RateLimitEnabled: v.GetBool("http.rate_limit_enabled"),
			RateLimitRPS:     v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst:   v.GetInt("http.rate_limit_burst"),
		},
		Ledger: LedgerConfig{
			Mode:           strings.ToLower(v.GetString("ledger.mode")),
			SimulatedStore: strings.ToLower(v.GetString("ledger.simulated_store")),
			Endpoint:       v.GetString("ledger.endpoint"),
			APIKey:         v.GetString("ledger.api_key"),
			ContractID:     v.GetString("ledger.contract_id"),
			Timeout:        v.GetDuration("ledger.timeout"),
			ConfirmTimeout: v.GetDuration("ledger.confirm_timeout"),
			PollInterval:   v.GetDuration("ledger.poll_interval"),
			MirrorMode:     strings.ToLower(v.GetString("ledger.mirror_mode")),
			MirrorTimeout:  v.GetDuration("ledger.mirror_timeout"),
		},
		POS: POSConfig{
			Mode:        strings.ToLower(v.GetString("pos.mode")),
			Endpoint:    v.GetString("pos.endpoint"),
			APIKey:      v.GetString("pos.api_key"),
			Timeout:     v.GetDuration("pos.timeout"),
			RateLimit:   v.GetFloat64("pos.rate_limit"),
			RateBurst:   v.GetInt("pos.rate_burst"),
			PageSize:    v.GetInt("pos.page_size"),
			SnapshotTTL: v.GetDuration("pos.snapshot_ttl"),
		},
		Variance: VarianceConfig{
			WarningThreshold:  v.GetInt("variance.warning_threshold"),
			CriticalThreshold: v.GetInt("variance.critical_threshold"),
		},
		Analysis: AnalysisConfig{
			Mode:     strings.ToLower(v.GetString("analysis.mode")),
			Endpoint: v.GetString("analysis.endpoint"),
			APIKey:   v.GetString("analysis.api_key"),
			Timeout:  v.GetDuration("analysis.timeout"),
		},
		Lock: LockConfig{
			Mode: strings.ToLower(v.GetString("lock.mode")),
			TTL:  v.GetDuration("lock.ttl"),
			Wait: v.GetDuration("lock.wait"),
		},
		Sync: SyncConfig{
			Concurrency:     v.GetInt("sync.concurrency"),
			ScheduleEnabled: v.GetBool("sync.schedule_enabled"),
			Interval:        v.GetDuration("sync.interval"),
			Timeout:         v.GetDuration("sync.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
			SlowQuery:         v.GetDuration("telemetry.slow_query"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "kegledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "kegledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.RateLimitRPS == 0 {
		cfg.HTTP.RateLimitRPS = 20
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 40
	}
	if cfg.Ledger.Mode == "" {
		cfg.Ledger.Mode = LedgerModeSimulated
	}
	if cfg.Ledger.SimulatedStore == "" {
		cfg.Ledger.SimulatedStore = ModeGorm
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 10 * time.Second
	}
	if cfg.Ledger.ConfirmTimeout == 0 {
		cfg.Ledger.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.Ledger.PollInterval == 0 {
		cfg.Ledger.PollInterval = 2 * time.Second
	}
	if cfg.Ledger.MirrorMode == "" {
		cfg.Ledger.MirrorMode = MirrorModeAsync
	}
	if cfg.Ledger.MirrorTimeout == 0 {
		cfg.Ledger.MirrorTimeout = 30 * time.Second
	}
	if cfg.POS.Mode == "" {
		cfg.POS.Mode = ModeStub
	}
	if cfg.POS.Timeout == 0 {
		cfg.POS.Timeout = 10 * time.Second
	}
	if cfg.POS.RateBurst == 0 {
		cfg.POS.RateBurst = 1
	}
	if cfg.POS.PageSize == 0 {
		cfg.POS.PageSize = 100
	}
	if cfg.POS.SnapshotTTL == 0 {
		cfg.POS.SnapshotTTL = 30 * time.Second
	}
	if cfg.Variance.WarningThreshold == 0 {
		cfg.Variance.WarningThreshold = 5
	}
	if cfg.Variance.CriticalThreshold == 0 {
		cfg.Variance.CriticalThreshold = 20
	}
	if cfg.Analysis.Mode == "" {
		cfg.Analysis.Mode = ModeNoop
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 60 * time.Second
	}
	if cfg.Lock.Mode == "" {
		cfg.Lock.Mode = ModeMemory
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 8
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = 15 * time.Minute
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = 5 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "kegledger"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.Telemetry.SlowQuery == 0 {
		cfg.Telemetry.SlowQuery = 200 * time.Millisecond
	}

	// These depend on the ledger, POS and analysis timeouts set above
	bound := cfg.RetirementBound()
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = bound + 30*time.Second
	}
	if cfg.Lock.Wait == 0 {
		cfg.Lock.Wait = bound + 30*time.Second
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = max(5*time.Minute, bound+time.Minute)
	}
}

// RetirementBound is the longest a single retirement may hold its keg lock:
// the final POS read, a live burn with confirmation, and analysis dispatch.
func (c *Config) RetirementBound() time.Duration {
	return c.POS.Timeout + c.Ledger.Timeout + c.Ledger.ConfirmTimeout + c.Analysis.Timeout
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Ledger.Mode {
	case LedgerModeSimulated:
		if c.Ledger.SimulatedStore != ModeMemory && c.Ledger.SimulatedStore != ModeGorm {
			return fmt.Errorf("ledger.simulated_store must be %q or %q, got %q", ModeMemory, ModeGorm, c.Ledger.SimulatedStore)
		}
	case LedgerModeLive:
		if c.Ledger.Endpoint == "" {
			return fmt.Errorf("ledger.endpoint is required when ledger.mode is %q", LedgerModeLive)
		}
	default:
		return fmt.Errorf("ledger.mode must be %q or %q, got %q", LedgerModeSimulated, LedgerModeLive, c.Ledger.Mode)
	}
	if c.Ledger.MirrorMode != MirrorModeAsync && c.Ledger.MirrorMode != MirrorModeSync {
		return fmt.Errorf("ledger.mirror_mode must be %q or %q, got %q", MirrorModeAsync, MirrorModeSync, c.Ledger.MirrorMode)
	}

	switch c.POS.Mode {
	case ModeStub:
	case ModeHTTP:
		if c.POS.Endpoint == "" {
			return fmt.Errorf("pos.endpoint is required when pos.mode is %q", ModeHTTP)
		}
	default:
		return fmt.Errorf("pos.mode must be %q or %q, got %q", ModeStub, ModeHTTP, c.POS.Mode)
	}
	if c.POS.RateLimit < 0 {
		return fmt.Errorf("pos.rate_limit cannot be negative")
	}

	if c.Variance.WarningThreshold <= 0 {
		return fmt.Errorf("variance.warning_threshold must be positive")
	}
	if c.Variance.WarningThreshold >= c.Variance.CriticalThreshold {
		return fmt.Errorf("variance.warning_threshold (%d) must be less than variance.critical_threshold (%d)",
			c.Variance.WarningThreshold, c.Variance.CriticalThreshold)
	}

	switch c.Analysis.Mode {
	case ModeNoop:
	case ModeHTTP:
		if c.Analysis.Endpoint == "" {
			return fmt.Errorf("analysis.endpoint is required when analysis.mode is %q", ModeHTTP)
		}
	default:
		return fmt.Errorf("analysis.mode must be %q or %q, got %q", ModeNoop, ModeHTTP, c.Analysis.Mode)
	}

	if c.Lock.Mode != ModeMemory && c.Lock.Mode != ModeRedis {
		return fmt.Errorf("lock.mode must be %q or %q, got %q", ModeMemory, ModeRedis, c.Lock.Mode)
	}
	// A lock waiter must outlast a holder that is mid-retirement
	bound := c.RetirementBound()
	if c.Lock.Wait <= bound {
		return fmt.Errorf("lock.wait (%s) must exceed the retirement bound (%s)", c.Lock.Wait, bound)
	}
	if c.Lock.Mode == ModeRedis && c.Lock.TTL <= bound {
		return fmt.Errorf("lock.ttl (%s) must exceed the retirement bound (%s)", c.Lock.TTL, bound)
	}
	if c.HTTP.WriteTimeout <= bound {
		return fmt.Errorf("http.write_timeout (%s) must exceed the retirement bound (%s)", c.HTTP.WriteTimeout, bound)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Ledger.Mode == LedgerModeSimulated && c.Ledger.SimulatedStore == ModeMemory {
			return fmt.Errorf("ledger.simulated_store=memory loses tokens on restart and is not allowed in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
