package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Circulate"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"circulate"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	// Policy holds the lifecycle constants: how long an unconfirmed hold
	// lives, how long a loan runs, and what a late day costs (in cents).
	Policy struct {
		HoldTTL               time.Duration `envconfig:"HOLD_TTL" default:"24h"`
		LoanPeriod            time.Duration `envconfig:"LOAN_PERIOD" default:"336h"`
		FineDailyRate         int64         `envconfig:"FINE_DAILY_RATE" default:"500"`
		SweepInterval         time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
		ExpiryWarningWindow   time.Duration `envconfig:"EXPIRY_WARNING_WINDOW" default:"6h"`
		MaxActivePerRequester int           `envconfig:"MAX_ACTIVE_PER_REQUESTER" default:"5"`
	}

	Token struct {
		Secret string `envconfig:"TOKEN_SECRET" required:"true"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
