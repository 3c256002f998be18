// Package config loads all runtime configuration once at process start.
// Services receive settings through their constructors; nothing reads the
// environment at call sites.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// QueueConfig is the Redis and queue-name subset of the configuration. Tools
// that only talk to the queue load this instead of the full Config, so they
// run without a DATABASE_URL.
type QueueConfig struct {
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	ScrapingQueue string `env:"SCRAPING_QUEUE" envDefault:"scraping"`
	RefreshQueue  string `env:"REFRESH_QUEUE" envDefault:"refresh-materialized-view"`
}

// Config holds every setting the worker and scheduler processes need.
type Config struct {
	QueueConfig

	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	OpsAddr string `env:"OPS_ADDR" envDefault:":8082"`

	GeocodeBaseURL string        `env:"GEOCODE_BASE_URL" envDefault:"https://api-adresse.data.gouv.fr"`
	RefreshDelay   time.Duration `env:"REFRESH_DELAY" envDefault:"5m"`
	MaxJobAttempts int           `env:"MAX_JOB_ATTEMPTS" envDefault:"3"`

	// Departments scheduled for recurring listing/energy scrapes.
	Departments []int `env:"DEPARTMENTS" envSeparator:"," envDefault:"33,75,69"`

	// DeathsFile is the INSEE deaths export the scheduler enqueues decease
	// jobs for. Empty disables the recurring decease scrape.
	DeathsFile string `env:"DEATHS_FILE"`
}

// Load parses the environment and returns a validated Config.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return c, nil
}

// LoadQueue parses only the queue settings.
func LoadQueue() (QueueConfig, error) {
	var c QueueConfig
	if err := env.Parse(&c); err != nil {
		return QueueConfig{}, fmt.Errorf("parsing environment: %w", err)
	}
	return c, nil
}
