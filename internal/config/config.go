package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tableside/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Auth          AuthConfig          `yaml:"auth"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Orders        OrdersConfig        `yaml:"orders"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Broker        BrokerConfig        `yaml:"broker"`
	Seed          SeedConfig          `yaml:"seed"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	Issuer        string        `yaml:"issuer"`
	GuestTokenTTL time.Duration `yaml:"guest_token_ttl"`
	StaffTokenTTL time.Duration `yaml:"staff_token_ttl"`
}

type SessionsConfig struct {
	SaltBytes          int           `yaml:"salt_bytes"`
	PasscodeLength     int           `yaml:"passcode_length"`
	PasscodeLifetime   string        `yaml:"passcode_lifetime"`
	JoinAttemptsLimit  int           `yaml:"join_attempts_limit"`
	JoinAttemptsWindow time.Duration `yaml:"join_attempts_window"`
}

type OrdersConfig struct {
	// AutoReleaseTable returns a table to empty once its last open order is closed or cancelled.
	AutoReleaseTable *bool `yaml:"auto_release_table"`
}

// ReleaseTables defaults to true when unset.
func (c OrdersConfig) ReleaseTables() bool {
	return c.AutoReleaseTable == nil || *c.AutoReleaseTable
}

type NotificationsConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type BrokerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type SeedConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional in containers where the environment is injected directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}

	switch c.Sessions.PasscodeLifetime {
	case models.PasscodeLifetimeSession, models.PasscodeLifetimeRolling:
	default:
		return fmt.Errorf("sessions.passcode_lifetime must be %q or %q, got %q",
			models.PasscodeLifetimeSession, models.PasscodeLifetimeRolling, c.Sessions.PasscodeLifetime)
	}

	if c.Sessions.SaltBytes < 8 {
		return errors.New("sessions.salt_bytes must be at least 8")
	}
	if c.Sessions.PasscodeLength < 4 {
		return errors.New("sessions.passcode_length must be at least 4")
	}

	if c.Broker.Enabled && c.Broker.AMQPURL == "" {
		return errors.New("broker.amqp_url is required when broker is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tableside"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Database.Backup.Enabled && c.Database.Backup.StoragePath == "" {
		c.Database.Backup.StoragePath = "backups"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = c.App.Name
	}
	if c.Auth.GuestTokenTTL <= 0 {
		c.Auth.GuestTokenTTL = models.DefaultGuestTokenTTL
	}
	if c.Auth.StaffTokenTTL <= 0 {
		c.Auth.StaffTokenTTL = models.DefaultStaffTokenTTL
	}

	// Session defaults
	if c.Sessions.SaltBytes == 0 {
		c.Sessions.SaltBytes = models.DefaultSaltBytes
	}
	if c.Sessions.PasscodeLength == 0 {
		c.Sessions.PasscodeLength = models.DefaultPasscodeLength
	}
	c.Sessions.PasscodeLifetime = strings.ToLower(strings.TrimSpace(c.Sessions.PasscodeLifetime))
	if c.Sessions.PasscodeLifetime == "" {
		c.Sessions.PasscodeLifetime = models.PasscodeLifetimeRolling
	}
	if c.Sessions.JoinAttemptsLimit == 0 {
		c.Sessions.JoinAttemptsLimit = models.DefaultJoinAttemptsLimit
	}
	if c.Sessions.JoinAttemptsWindow <= 0 {
		c.Sessions.JoinAttemptsWindow = models.DefaultJoinAttemptsWindow
	}

	if c.Notifications.SubscriberBuffer <= 0 {
		c.Notifications.SubscriberBuffer = models.DefaultSubscriberBuffer
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "tableside.notifications"
	}
}
