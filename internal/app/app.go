// Package app builds the component graph. Each builder takes its dependencies as
// arguments, so construction order is leaves first: connections, store, cache and
// queue, then the auth gate and generator, then the service, worker and router.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/aiquiz/internal/auth"
	"github.com/jason-s-yu/aiquiz/internal/cache"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/jason-s-yu/aiquiz/internal/database"
	"github.com/jason-s-yu/aiquiz/internal/generator"
	"github.com/jason-s-yu/aiquiz/internal/handlers"
	"github.com/jason-s-yu/aiquiz/internal/queue"
	"github.com/jason-s-yu/aiquiz/internal/secret"
	"github.com/jason-s-yu/aiquiz/internal/service"
	"github.com/jason-s-yu/aiquiz/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger: JSON in production, text elsewhere.
func NewLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
	}
	logger.SetLevel(level)
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Conns holds the network connections shared by components.
type Conns struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Connect opens Postgres and Redis.
func Connect(ctx context.Context, cfg config.Config) (*Conns, error) {
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Conns{Pool: pool, Redis: rdb}, nil
}

func (c *Conns) Close() {
	c.Redis.Close()
	c.Pool.Close()
}

func NewStore(pool *pgxpool.Pool) database.Store {
	return database.NewPostgres(pool)
}

func NewQueue(rdb redis.UniversalClient, cfg config.Config) *queue.RedisQ {
	return queue.New(rdb, cfg.Queue.Name, cfg.Queue.VisibilityTimeout)
}

func NewTokenCache(rdb redis.UniversalClient, cfg config.Config) *cache.TokenCache {
	return cache.NewTokenCache(rdb, cfg.Auth.CachePrefix)
}

func NewGate(cfg config.Config, tokens auth.TokenCache, logger *logrus.Logger) (*auth.Gate, error) {
	verifier, err := auth.NewJWTVerifier(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("token verifier: %w", err)
	}
	return auth.NewGate(verifier, tokens, logger), nil
}

func NewService(store database.Store, q service.JobQueue, cfg config.Config, logger *logrus.Logger) *service.QuizService {
	return service.New(store, q, service.Options{
		DefaultQuestionsLimit: cfg.Game.DefaultQuestionsLimit,
		MaxQuestionsLimit:     cfg.Game.MaxQuestionsLimit,
		MaxKeywords:           cfg.Game.MaxKeywords,
		PageSize:              cfg.Game.PageSize,
		EnqueueClaimTTL:       cfg.Game.EnqueueClaimTTL,
	}, logger)
}

func NewGenerator(cfg config.Config, logger *logrus.Logger) *generator.OpenAI {
	keys := secret.New(cfg.Generator.APIKeyFile, cfg.Generator.APIKeyEnv)
	return generator.NewOpenAI(cfg.Generator, keys, nil, logger)
}

func NewWorker(store database.Store, q worker.Queue, gen generator.Generator, cfg config.Config, logger *logrus.Logger) *worker.Worker {
	return worker.New(store, q, gen, worker.Options{
		Deadline:     cfg.ProcessingDeadline(),
		PollInterval: cfg.Worker.PollInterval,
		MaxReceives:  cfg.Worker.MaxReceives,
	}, logger)
}

func NewRouter(svc handlers.QuizAPI, tokens handlers.TokenValidator, cfg config.Config, logger *logrus.Logger) http.Handler {
	return handlers.NewRouter(svc, tokens, handlers.RouterOptions{
		AllowedOrigin:  cfg.CORSOrigin,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
}

// BuildAPI assembles the HTTP handler on top of open connections.
func BuildAPI(conns *Conns, cfg config.Config, logger *logrus.Logger) (http.Handler, error) {
	store := NewStore(conns.Pool)
	q := NewQueue(conns.Redis, cfg)
	gate, err := NewGate(cfg, NewTokenCache(conns.Redis, cfg), logger)
	if err != nil {
		return nil, err
	}
	svc := NewService(store, q, cfg, logger)
	return NewRouter(svc, gate, cfg, logger), nil
}

// BuildWorker assembles the generation worker on top of open connections.
func BuildWorker(conns *Conns, cfg config.Config, logger *logrus.Logger) *worker.Worker {
	store := NewStore(conns.Pool)
	q := NewQueue(conns.Redis, cfg)
	return NewWorker(store, q, NewGenerator(cfg, logger), cfg, logger)
}
