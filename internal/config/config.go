// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is resolved once at startup and handed to each component constructor.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// RequestTimeout bounds one HTTP request end to end.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// CORSOrigin is the single browser origin allowed to call the API in this environment.
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"http://localhost:3000"`

	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Game      GameConfig      `envPrefix:"GAME_"`
	Queue     QueueConfig     `envPrefix:"QUEUE_"`
	Generator GeneratorConfig `envPrefix:"OPENAI_"`
	Worker    WorkerConfig    `envPrefix:"WORKER_"`
	Tracing   TracingConfig   `envPrefix:"OTEL_"`
}

type AuthConfig struct {
	Issuer   string `env:"ISSUER,notEmpty"`
	Audience string `env:"AUDIENCE,notEmpty"`
	// Exactly one of HMACSecret and PublicKeyFile must be set.
	HMACSecret    string        `env:"HMAC_SECRET"`
	PublicKeyFile string        `env:"PUBLIC_KEY_FILE"`
	Leeway        time.Duration `env:"LEEWAY" envDefault:"30s"`
	CachePrefix   string        `env:"CACHE_PREFIX" envDefault:"aiquiz:token:"`
}

type GameConfig struct {
	DefaultQuestionsLimit int           `env:"DEFAULT_QUESTIONS_LIMIT" envDefault:"15"`
	MaxQuestionsLimit     int           `env:"MAX_QUESTIONS_LIMIT" envDefault:"30"`
	MaxKeywords           int           `env:"MAX_KEYWORDS" envDefault:"10"`
	PageSize              int           `env:"PAGE_SIZE" envDefault:"25"`
	EnqueueClaimTTL       time.Duration `env:"ENQUEUE_CLAIM_TTL" envDefault:"1m"`
}

type QueueConfig struct {
	Name              string        `env:"NAME" envDefault:"aiquiz:generation"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"15m"`
}

type GeneratorConfig struct {
	BaseURL     string  `env:"BASE_URL"`
	Model       string  `env:"MODEL" envDefault:"gpt-4o-mini"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.9"`
	// APIKeyFile is read on every call so a rotated key is picked up without a restart.
	APIKeyFile string `env:"API_KEY_FILE"`
	// APIKeyEnv names the variable holding the key when no file is mounted.
	APIKeyEnv string `env:"API_KEY_ENV" envDefault:"OPENAI_API_KEY"`
}

type WorkerConfig struct {
	SafetyMargin time.Duration `env:"SAFETY_MARGIN" envDefault:"30s"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	MaxReceives  int           `env:"MAX_RECEIVES" envDefault:"5"`
}

// TracingConfig turns on span export. Tracing stays off while Endpoint is empty.
type TracingConfig struct {
	Endpoint string `env:"ENDPOINT"`
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	hasSecret := strings.TrimSpace(c.Auth.HMACSecret) != ""
	hasKey := strings.TrimSpace(c.Auth.PublicKeyFile) != ""
	if hasSecret == hasKey {
		errs = append(errs, errors.New("exactly one of AUTH_HMAC_SECRET and AUTH_PUBLIC_KEY_FILE must be set"))
	}
	if c.Game.MaxQuestionsLimit < 1 {
		errs = append(errs, errors.New("GAME_MAX_QUESTIONS_LIMIT must be positive"))
	}
	if c.Game.DefaultQuestionsLimit < 1 || c.Game.DefaultQuestionsLimit > c.Game.MaxQuestionsLimit {
		errs = append(errs, fmt.Errorf("GAME_DEFAULT_QUESTIONS_LIMIT must be within [1, %d]", c.Game.MaxQuestionsLimit))
	}
	if c.Game.PageSize < 1 {
		errs = append(errs, errors.New("GAME_PAGE_SIZE must be positive"))
	}
	if c.Worker.SafetyMargin <= 0 || c.Worker.SafetyMargin >= c.Queue.VisibilityTimeout {
		errs = append(errs, errors.New("WORKER_SAFETY_MARGIN must be positive and shorter than QUEUE_VISIBILITY_TIMEOUT"))
	}
	if c.Worker.MaxReceives < 1 {
		errs = append(errs, errors.New("WORKER_MAX_RECEIVES must be positive"))
	}
	return errors.Join(errs...)
}

// ProcessingDeadline is how long the worker may spend on one job: the queue's
// visibility timeout minus the safety margin, so a job finishes before it is redelivered.
func (c Config) ProcessingDeadline() time.Duration {
	return c.Queue.VisibilityTimeout - c.Worker.SafetyMargin
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}
