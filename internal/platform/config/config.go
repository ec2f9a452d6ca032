package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Medium backends selectable with DIGISAFE_MEDIUM.
const (
	MediumMemory   = "memory"
	MediumFile     = "file"
	MediumSQLite   = "sqlite"
	MediumPostgres = "postgres"
	MediumRedis    = "redis"
)

// Config is the full process configuration.
type Config struct {
	Medium  Medium
	Redis   RedisConfig
	Machine Machine
	Metrics Metrics
	Log     Log
	Audit   Audit
}

// Medium chooses where the code store's bytes live.
type Medium struct {
	Kind        string `env:"DIGISAFE_MEDIUM"        envDefault:"memory"`
	Size        int    `env:"DIGISAFE_MEDIUM_SIZE"   envDefault:"1024"`
	Path        string `env:"DIGISAFE_MEDIUM_PATH"   envDefault:"digisafe.img"`
	SQLitePath  string `env:"DIGISAFE_SQLITE_PATH"   envDefault:"digisafe.db"`
	PostgresDSN string `env:"DIGISAFE_POSTGRES_DSN"`
	// PostgresDriver is the database/sql driver name: "pgx" or "postgres" (lib/pq).
	PostgresDriver string `env:"DIGISAFE_POSTGRES_DRIVER" envDefault:"pgx"`
}

// RedisConfig configures the client behind the redis medium.
type RedisConfig struct {
	URL          string        `env:"DIGISAFE_REDIS_URL"`
	Key          string        `env:"DIGISAFE_REDIS_KEY"            envDefault:"digisafe:medium"`
	PoolSize     int           `env:"DIGISAFE_REDIS_POOL_SIZE"      envDefault:"4"`
	MinIdleConns int           `env:"DIGISAFE_REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout  time.Duration `env:"DIGISAFE_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"DIGISAFE_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"DIGISAFE_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// Machine holds the state machine timings.
type Machine struct {
	PollInterval   time.Duration `env:"DIGISAFE_POLL_INTERVAL"   envDefault:"10ms"`
	ErrorFlashes   int           `env:"DIGISAFE_ERROR_FLASHES"   envDefault:"3"`
	FlashInterval  time.Duration `env:"DIGISAFE_FLASH_INTERVAL"  envDefault:"200ms"`
	LockoutFlashes int           `env:"DIGISAFE_LOCKOUT_FLASHES" envDefault:"10"`
}

// Metrics configures the observability listener. An empty address disables it.
type Metrics struct {
	Addr string `env:"DIGISAFE_METRICS_ADDR" envDefault:":9090"`
}

type Log struct {
	Level  string `env:"DIGISAFE_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"DIGISAFE_LOG_FORMAT" envDefault:"text"`
}

// Audit configures the audit publisher. A zero buffer publishes
// synchronously. With a postgres medium the trail is stored alongside it.
type Audit struct {
	Buffer int `env:"DIGISAFE_AUDIT_BUFFER" envDefault:"64"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv builds and validates a Config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Medium.Kind {
	case MediumMemory, MediumFile, MediumSQLite:
	case MediumPostgres:
		if c.Medium.PostgresDSN == "" {
			errs = append(errs, errors.New("DIGISAFE_POSTGRES_DSN is required for the postgres medium"))
		}
		if c.Medium.PostgresDriver != "pgx" && c.Medium.PostgresDriver != "postgres" {
			errs = append(errs, fmt.Errorf("unknown postgres driver %q", c.Medium.PostgresDriver))
		}
	case MediumRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("DIGISAFE_REDIS_URL is required for the redis medium"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown medium %q", c.Medium.Kind))
	}
	if c.Medium.Size <= 0 {
		errs = append(errs, fmt.Errorf("medium size must be positive, got %d", c.Medium.Size))
	}
	if c.Machine.ErrorFlashes < 0 || c.Machine.LockoutFlashes < 0 {
		errs = append(errs, errors.New("flash counts must not be negative"))
	}
	if c.Audit.Buffer < 0 {
		errs = append(errs, errors.New("audit buffer must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
