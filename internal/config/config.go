package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config captures all runtime configuration. Values come from environment variables,
// optionally layered over a YAML file named by CONFIG_FILE. Secrets are env-only.
type Config struct {
	Port             string `yaml:"port" env:"PORT" env-default:"8080"`
	LogLevel         string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	JWTSecret        string `yaml:"-" env:"JWT_SECRET"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs" env:"SERVER_READ_TIMEOUT" env-default:"15"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs" env:"SERVER_WRITE_TIMEOUT" env-default:"15"`
	IdleTimeoutSecs  int    `yaml:"idle_timeout_secs" env:"SERVER_IDLE_TIMEOUT" env-default:"60"`

	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*" env-separator:","`

	DBURL             string `yaml:"-" env:"DB_URL"`
	DBMaxConns        int    `yaml:"db_max_conns" env:"DB_MAX_CONNS" env-default:"20"`
	DBMinConns        int    `yaml:"db_min_conns" env:"DB_MIN_CONNS" env-default:"2"`
	DBMaxIdleSecs     int    `yaml:"db_max_conn_idle_secs" env:"DB_MAX_CONN_IDLE_SECS" env-default:"300"`
	DBMaxLifeSecs     int    `yaml:"db_max_conn_lifetime_secs" env:"DB_MAX_CONN_LIFETIME_SECS" env-default:"3600"`
	DBConnTimeoutSecs int    `yaml:"db_conn_timeout_secs" env:"DB_CONN_TIMEOUT_SECS" env-default:"10"`
	DBStatementCache  int    `yaml:"db_statement_cache_capacity" env:"DB_STATEMENT_CACHE_CAPACITY" env-default:"256"`

	RatingMaxRetries      int `yaml:"rating_max_retries" env:"RATING_MAX_RETRIES" env-default:"3"`
	ReconcileIntervalSecs int `yaml:"reconcile_interval_secs" env:"RECONCILE_INTERVAL_SECS" env-default:"3600"`

	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig configures the optional event bus. An empty URL disables events.
type NATSConfig struct {
	URL                  string        `yaml:"url" env:"NATS_URL"`
	MaxReconnects        int           `yaml:"max_reconnects" env:"NATS_MAX_RECONNECTS" env-default:"5"`
	ReconnectWait        time.Duration `yaml:"reconnect_wait" env:"NATS_RECONNECT_WAIT" env-default:"2s"`
	Stream               string        `yaml:"stream" env:"NATS_STREAM" env-default:"POKERATE"`
	UserDeletedSubject   string        `yaml:"user_deleted_subject" env:"NATS_USER_DELETED_SUBJECT" env-default:"users.deleted"`
	RatingChangedSubject string        `yaml:"rating_changed_subject" env:"NATS_RATING_CHANGED_SUBJECT" env-default:"ratings.changed"`
	ConsumerName         string        `yaml:"consumer_name" env:"NATS_CONSUMER_NAME" env-default:"pokerate_user_deleted"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATSConfig) Enabled() bool {
	return strings.TrimSpace(n.URL) != ""
}

// Load reads configuration, applying defaults and validation. It does not require
// serving-only settings; call ValidateServe before starting the HTTP server.
func Load() (Config, error) {
	var cfg Config
	var err error
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.RatingMaxRetries < 0 {
		return Config{}, fmt.Errorf("RATING_MAX_RETRIES must be non-negative")
	}
	if cfg.ReconcileIntervalSecs < 0 {
		return Config{}, fmt.Errorf("RECONCILE_INTERVAL_SECS must be non-negative")
	}
	if cfg.NATS.Enabled() && cfg.NATS.UserDeletedSubject == cfg.NATS.RatingChangedSubject {
		return Config{}, fmt.Errorf("NATS_USER_DELETED_SUBJECT and NATS_RATING_CHANGED_SUBJECT must differ")
	}

	return cfg, nil
}

// ValidateServe checks the settings only the HTTP server needs.
func (c Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.ReadTimeoutSecs <= 0 || c.WriteTimeoutSecs <= 0 || c.IdleTimeoutSecs <= 0 {
		return fmt.Errorf("SERVER_*_TIMEOUT values must be positive")
	}
	return nil
}

// ReconcileInterval returns the reconciliation period; zero disables the job.
func (c Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSecs) * time.Second
}
