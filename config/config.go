// Package config loads server configuration from an optional YAML file and
// LEAVE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// EnvPrefix prefixes every environment override: server.port → LEAVE_SERVER_PORT.
const EnvPrefix = "LEAVE"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type DatabaseConfig struct {
	// Path of the sqlite file, or ":memory:".
	Path string `mapstructure:"path"`
}

// RedisConfig enables event publishing. When disabled, events are logged.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
	Queue    string `mapstructure:"queue"`
}

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

type NotifyConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens issued by the auth layer.
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type WorkflowConfig struct {
	// DefaultMode applies to profiles without their own approval mode.
	DefaultMode string `mapstructure:"default_mode"`
}

// Mode parses DefaultMode.
func (w WorkflowConfig) Mode() (workflow.Mode, error) {
	return workflow.ParseMode(w.DefaultMode)
}

type HolidayConfig struct {
	Date      string `mapstructure:"date"`
	Name      string `mapstructure:"name"`
	Recurring bool   `mapstructure:"recurring"`
}

// CalendarConfig lists holidays known at startup, on top of the stored ones.
type CalendarConfig struct {
	Holidays []HolidayConfig `mapstructure:"holidays"`
}

// ParseHolidays converts the static list. IDs are derived from the date so
// reloading the same file yields the same set.
func (c CalendarConfig) ParseHolidays() ([]generic.Holiday, error) {
	out := make([]generic.Holiday, 0, len(c.Holidays))
	for i, h := range c.Holidays {
		d, err := generic.ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar.holidays[%d]: %w", i, err)
		}
		if strings.TrimSpace(h.Name) == "" {
			return nil, fmt.Errorf("calendar.holidays[%d]: name is required", i)
		}
		out = append(out, generic.Holiday{
			ID:        "cfg-" + d.String(),
			Date:      d,
			Name:      h.Name,
			Recurring: h.Recurring,
		})
	}
	return out, nil
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath (skipped when empty) and applies LEAVE_* overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.path", "data/leave.db")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "leave.events")
	v.SetDefault("redis.queue", "")

	// Notify defaults
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.backoff", 200*time.Millisecond)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	// Workflow defaults
	v.SetDefault("workflow.default_mode", string(workflow.ModeManagerAndGM))

	v.SetDefault("calendar.holidays", []HolidayConfig{})

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Hour)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if _, err := c.Workflow.Mode(); err != nil {
		errs = append(errs, fmt.Errorf("workflow.default_mode: %w", err))
	}
	if _, err := c.Calendar.ParseHolidays(); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive when the scheduler is enabled"))
	}
	if c.Redis.Enabled && (c.Redis.Host == "" || c.Redis.Port == "") {
		errs = append(errs, errors.New("redis.host and redis.port are required when redis is enabled"))
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.format %q must be json or console", c.Logger.Format))
	}

	return errors.Join(errs...)
}
