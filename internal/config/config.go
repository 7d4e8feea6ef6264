package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. QUEUE_SERVER_PORT.
const EnvPrefix = "QUEUE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MetricsPort     int           `mapstructure:"metrics_port" split_words:"true"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" split_words:"true"`
}

// DSN returns URL when set and a key/value connection string otherwise.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	// URL empty keeps realtime fan-out inside the process.
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether outbound email is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type QueueConfig struct {
	Timezone              string        `mapstructure:"timezone"`
	DefaultServiceMinutes int           `mapstructure:"default_service_minutes" split_words:"true"`
	DynamicSampleSize     int           `mapstructure:"dynamic_sample_size" split_words:"true"`
	AdvanceOnAdmission    bool          `mapstructure:"advance_on_admission" split_words:"true"`
	ServiceCacheTTL       time.Duration `mapstructure:"service_cache_ttl" envconfig:"SERVICE_CACHE_TTL"`
	LeaseTTL              time.Duration `mapstructure:"lease_ttl" envconfig:"LEASE_TTL"`
	NotificationTimeout   time.Duration `mapstructure:"notification_timeout" split_words:"true"`
}

// Location resolves Timezone, which cuts the day partitions of walk-in queues.
func (c QueueConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type RealtimeConfig struct {
	Channel       string        `mapstructure:"channel"`
	EventBuffer   int           `mapstructure:"event_buffer" split_words:"true"`
	ClientBuffer  int           `mapstructure:"client_buffer" split_words:"true"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" split_words:"true"`
	PingInterval  time.Duration `mapstructure:"ping_interval" split_words:"true"`
	AllowedOrigin string        `mapstructure:"allowed_origin" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type ReminderConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	WindowStart time.Duration `mapstructure:"window_start" split_words:"true"`
	WindowEnd   time.Duration `mapstructure:"window_end" split_words:"true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.metrics_port", 9090)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "queue")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.issuer", "queue-api")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "no-reply@localhost")

	v.SetDefault("queue.timezone", "UTC")
	v.SetDefault("queue.default_service_minutes", 15)
	v.SetDefault("queue.dynamic_sample_size", 10)
	v.SetDefault("queue.advance_on_admission", true)
	v.SetDefault("queue.service_cache_ttl", time.Minute)
	v.SetDefault("queue.lease_ttl", 5*time.Second)
	v.SetDefault("queue.notification_timeout", 30*time.Second)

	v.SetDefault("realtime.channel", "queue_updates")
	v.SetDefault("realtime.event_buffer", 1024)
	v.SetDefault("realtime.client_buffer", 64)
	v.SetDefault("realtime.write_timeout", 10*time.Second)
	v.SetDefault("realtime.ping_interval", 30*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("reminder.interval", 5*time.Minute)
	v.SetDefault("reminder.window_start", 10*time.Minute)
	v.SetDefault("reminder.window_end", 25*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads config.yml from CONFIG_FILE or the usual search paths and
// applies QUEUE_* environment overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Queue.DynamicSampleSize <= 0 {
		return fmt.Errorf("queue.dynamic_sample_size must be positive")
	}
	if c.Reminder.WindowEnd <= c.Reminder.WindowStart {
		return fmt.Errorf("reminder.window_end must be after reminder.window_start")
	}
	if _, err := c.Queue.Location(); err != nil {
		return err
	}
	return nil
}
