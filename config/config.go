package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Parking  ParkingConfig  `yaml:"parking"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Reports  ReportsConfig  `yaml:"reports"`
	Notifier NotifierConfig `yaml:"notifier"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	RateLimitPerSec   float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst    int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds   int           `yaml:"cache_ttl_seconds"`
	AdminToken        string        `yaml:"admin_token"`
	SessionLogSize    int           `yaml:"session_log_size"`
	ShutdownTimeoutMS int           `yaml:"shutdown_timeout_ms"`
	ShutdownTimeout   time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// ParkingConfig holds the allocation rules of the lot.
type ParkingConfig struct {
	TotalSpots            int            `yaml:"total_spots"`
	Timezone              string         `yaml:"timezone"`
	StandardHours         int            `yaml:"standard_hours"`
	ExtendedHours         int            `yaml:"extended_hours"`
	ReservationGraceMin   int            `yaml:"reservation_grace_minutes"`
	ReservationRatio      float64        `yaml:"reservation_ratio"`
	RequestTimeoutSeconds int            `yaml:"request_timeout_seconds"`
	Location              *time.Location `yaml:"-"`
	StandardWindow        time.Duration  `yaml:"-"`
	ExtendedWindow        time.Duration  `yaml:"-"`
	ReservationGrace      time.Duration  `yaml:"-"`
	RequestTimeout        time.Duration  `yaml:"-"`
}

// SweepConfig holds the overdue-order sweep schedule.
type SweepConfig struct {
	Enabled           bool          `yaml:"enabled"`
	IntervalSeconds   int           `yaml:"interval_seconds"`
	StartDelaySeconds int           `yaml:"start_delay_seconds"`
	Interval          time.Duration `yaml:"-"`
	StartDelay        time.Duration `yaml:"-"`
}

// ReportsConfig holds the monthly snapshot generator settings.
type ReportsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotifierConfig holds the outbound notification channels.
type NotifierConfig struct {
	Enabled            bool       `yaml:"enabled"`
	WorkerPoolSize     int        `yaml:"worker_pool_size"`
	QueueSize          int        `yaml:"queue_size"`
	WebhookOrdersURL   string     `yaml:"webhook_orders_url"`
	WebhookRecoveryURL string     `yaml:"webhook_recovery_url"`
	Push               PushConfig `yaml:"push"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// LogConfig controls the logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// AdminConfig describes the bootstrap administrator account.
type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
}

// envOverrides are secrets that may come from the environment (or a .env file)
// instead of the YAML file. Variables are prefixed with BPARK_.
type envOverrides struct {
	DatabaseDSN        string `envconfig:"DATABASE_DSN"`
	WebhookOrdersURL   string `envconfig:"WEBHOOK_ORDERS_URL"`
	WebhookRecoveryURL string `envconfig:"WEBHOOK_RECOVERY_URL"`
	VAPIDPrivateKey    string `envconfig:"VAPID_PRIVATE_KEY"`
	AdminPassword      string `envconfig:"ADMIN_PASSWORD"`
	AdminToken         string `envconfig:"ADMIN_TOKEN"`
}

// Load reads the configuration from the given path, then applies environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not read .env file")
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("bpark", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if env.DatabaseDSN != "" {
		cfg.Database.DSN = env.DatabaseDSN
	}
	if env.WebhookOrdersURL != "" {
		cfg.Notifier.WebhookOrdersURL = env.WebhookOrdersURL
	}
	if env.WebhookRecoveryURL != "" {
		cfg.Notifier.WebhookRecoveryURL = env.WebhookRecoveryURL
	}
	if env.VAPIDPrivateKey != "" {
		cfg.Notifier.Push.PrivateKey = env.VAPIDPrivateKey
	}
	if env.AdminPassword != "" {
		cfg.Admin.Password = env.AdminPassword
	}
	if env.AdminToken != "" {
		cfg.Server.AdminToken = env.AdminToken
	}
	return nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5555
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Server.SessionLogSize <= 0 {
		cfg.Server.SessionLogSize = 500
	}
	if cfg.Server.ShutdownTimeoutMS <= 0 {
		cfg.Server.ShutdownTimeoutMS = 5000
	}
	cfg.Server.ShutdownTimeout = time.Duration(cfg.Server.ShutdownTimeoutMS) * time.Millisecond

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	p := &cfg.Parking
	if p.TotalSpots <= 0 {
		log.Warn("parking.total_spots is not set or invalid; defaulting to 100")
		p.TotalSpots = 100
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", p.Timezone, err)
	}
	p.Location = loc
	if p.StandardHours <= 0 {
		p.StandardHours = 4
	}
	if p.ExtendedHours <= 0 {
		p.ExtendedHours = 8
	}
	if p.ReservationGraceMin <= 0 {
		p.ReservationGraceMin = 15
	}
	if p.ReservationRatio <= 0 || p.ReservationRatio > 1 {
		p.ReservationRatio = 0.4
	}
	if p.RequestTimeoutSeconds <= 0 {
		p.RequestTimeoutSeconds = 5
	}
	p.StandardWindow = time.Duration(p.StandardHours) * time.Hour
	p.ExtendedWindow = time.Duration(p.ExtendedHours) * time.Hour
	p.ReservationGrace = time.Duration(p.ReservationGraceMin) * time.Minute
	p.RequestTimeout = time.Duration(p.RequestTimeoutSeconds) * time.Second

	if cfg.Sweep.IntervalSeconds <= 0 {
		cfg.Sweep.IntervalSeconds = 60
	}
	if cfg.Sweep.StartDelaySeconds < 0 {
		cfg.Sweep.StartDelaySeconds = 0
	}
	cfg.Sweep.Interval = time.Duration(cfg.Sweep.IntervalSeconds) * time.Second
	cfg.Sweep.StartDelay = time.Duration(cfg.Sweep.StartDelaySeconds) * time.Second

	if cfg.Notifier.WorkerPoolSize <= 0 {
		log.Info("notifier.worker_pool_size is not set or invalid; defaulting to 1")
		cfg.Notifier.WorkerPoolSize = 1
	}
	if cfg.Notifier.QueueSize <= 0 {
		cfg.Notifier.QueueSize = 64
	}
	if cfg.Notifier.Push.TTL <= 0 {
		cfg.Notifier.Push.TTL = 3600
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Admin.Name == "" {
		cfg.Admin.Name = "Administrator"
	}
	return nil
}

// Defaults returns a configuration with every default applied, for tests and tools.
func Defaults() *Config {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}
