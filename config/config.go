// Package config loads service configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory. The resulting Config is passed
// explicitly to constructors; nothing reads the environment after startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        int    `env:"PORT"         envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://recurring.db"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	SchedulerEnabled   bool          `env:"SCHEDULER_ENABLED"   envDefault:"true"`
	ProjectionInterval time.Duration `env:"PROJECTION_INTERVAL" envDefault:"1h"`
	LookaheadDays      int           `env:"LOOKAHEAD_DAYS"      envDefault:"30"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"   envDefault:"recurring.instance_created"`

	RedisAddr  string        `env:"REDIS_ADDR"`
	RunLockTTL time.Duration `env:"RUN_LOCK_TTL" envDefault:"10m"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
}

// Load reads .env files (missing files are ignored) then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.LookaheadDays < 1 {
		return fmt.Errorf("invalid LOOKAHEAD_DAYS %d", c.LookaheadDays)
	}
	if c.SchedulerEnabled && c.ProjectionInterval <= 0 {
		return fmt.Errorf("invalid PROJECTION_INTERVAL %s", c.ProjectionInterval)
	}
	if _, _, err := c.Database(); err != nil {
		return err
	}
	return nil
}

// Database splits DATABASE_URL into a driver name and a driver-specific DSN.
// sqlite://path and bare paths select SQLite; postgres:// and postgresql://
// are passed to lib/pq unchanged.
func (c Config) Database() (driver, dsn string, err error) {
	u := c.DatabaseURL
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return "postgres", u, nil
	case strings.HasPrefix(u, "sqlite://"):
		return "sqlite", strings.TrimPrefix(u, "sqlite://"), nil
	case u == "":
		return "", "", errors.New("DATABASE_URL is empty")
	case strings.Contains(u, "://"):
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme in %q", u)
	}
	return "sqlite", u, nil
}
