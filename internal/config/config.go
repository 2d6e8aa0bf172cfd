package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"12h"`
	Port        int           `env:"PORT" envDefault:"8080"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`

	RoundingPlaces    int32   `env:"LEDGER_ROUNDING_PLACES" envDefault:"2"`
	AllowFallbackRate bool    `env:"FX_ALLOW_FALLBACK_RATE" envDefault:"false"`
	FallbackRate      float64 `env:"FX_FALLBACK_RATE" envDefault:"0"`

	LockBackend string        `env:"LOCK_BACKEND" envDefault:"local"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	NotifyBackend   string `env:"NOTIFY_BACKEND" envDefault:"log"`
	PubSubProjectID string `env:"PUBSUB_PROJECT_ID"`
	PubSubTopic     string `env:"PUBSUB_TOPIC" envDefault:"payment-received"`
	PubSubCredsFile string `env:"PUBSUB_CREDENTIALS_FILE"`

	RetryInterval    time.Duration `env:"RETRY_INTERVAL" envDefault:"30s"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"10"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
	DBConnectRetries  int           `env:"DB_CONNECT_RETRIES" envDefault:"5"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.RoundingPlaces < 0 || c.RoundingPlaces > 6 {
		return fmt.Errorf("LEDGER_ROUNDING_PLACES must be between 0 and 6, got %d", c.RoundingPlaces)
	}
	if c.AllowFallbackRate && c.FallbackRate <= 0 {
		return errors.New("FX_FALLBACK_RATE must be > 0 when FX_ALLOW_FALLBACK_RATE is set")
	}
	switch c.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("LOCK_BACKEND must be local or redis, got %q", c.LockBackend)
	}
	switch c.NotifyBackend {
	case "log", "pubsub":
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be log or pubsub, got %q", c.NotifyBackend)
	}
	if c.NotifyBackend == "pubsub" && c.PubSubProjectID == "" {
		return errors.New("PUBSUB_PROJECT_ID is required when NOTIFY_BACKEND=pubsub")
	}
	return nil
}
